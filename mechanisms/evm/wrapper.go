package evm

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// WrapperCodec encodes and decodes counterfactual signature wrappers.
// The verifier only goes through this interface; byte layout lives here.
type WrapperCodec interface {
	Encode(wrapped WrappedSignature) ([]byte, error)
	Decode(sig []byte) (*WrappedSignature, error)
}

// ABIWrapperCodec implements WrapperCodec with the wire format
//
//	abi.encode(address factory, bytes factoryCalldata, bytes innerSignature) || 0x69696969
type ABIWrapperCodec struct {
	arguments abi.Arguments
}

// DefaultWrapperCodec is the codec used by the package-level helpers
var DefaultWrapperCodec = NewABIWrapperCodec()

// NewABIWrapperCodec creates the ABI-backed wrapper codec
func NewABIWrapperCodec() *ABIWrapperCodec {
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(fmt.Sprintf("evm: building address type: %v", err))
	}
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(fmt.Sprintf("evm: building bytes type: %v", err))
	}

	return &ABIWrapperCodec{
		arguments: abi.Arguments{
			{Type: addressTy}, // factory
			{Type: bytesTy},   // factoryCalldata
			{Type: bytesTy},   // innerSignature
		},
	}
}

// IsWrappedSignature checks if a signature ends with MagicMarker
//
// Signatures shorter than the marker are never wrapped.
func IsWrappedSignature(sig []byte) bool {
	if len(sig) < len(MagicMarker) {
		return false
	}
	return bytes.Equal(sig[len(sig)-len(MagicMarker):], MagicMarker[:])
}

// Encode packs the deployment data and inner signature, then appends MagicMarker
func (c *ABIWrapperCodec) Encode(wrapped WrappedSignature) ([]byte, error) {
	calldata := wrapped.Deployment.FactoryCalldata
	if calldata == nil {
		calldata = []byte{}
	}
	inner := wrapped.InnerSignature
	if inner == nil {
		inner = []byte{}
	}

	packed, err := c.arguments.Pack(wrapped.Deployment.Factory, calldata, inner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack wrapped signature: %w", err)
	}

	return append(packed, MagicMarker[:]...), nil
}

// Decode unwraps a counterfactual signature into its components
//
// Wire format:
//
//	abi.encode(address factory, bytes factoryCalldata, bytes innerSignature) || magicMarker
//
// Any input that is not marker-terminated or whose payload does not unpack
// into exactly (address, bytes, bytes) fails with ErrMalformedWrapper.
func (c *ABIWrapperCodec) Decode(sig []byte) (*WrappedSignature, error) {
	if !IsWrappedSignature(sig) {
		return nil, fmt.Errorf("%w: missing magic marker", ErrMalformedWrapper)
	}

	payload := sig[:len(sig)-len(MagicMarker)]

	unpacked, err := c.arguments.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWrapper, err)
	}

	if len(unpacked) != 3 {
		return nil, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedWrapper, len(unpacked))
	}

	factory, ok := unpacked[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: factory is not an address", ErrMalformedWrapper)
	}

	factoryCalldata, ok := unpacked[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: factoryCalldata is not bytes", ErrMalformedWrapper)
	}

	innerSignature, ok := unpacked[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: innerSignature is not bytes", ErrMalformedWrapper)
	}

	return &WrappedSignature{
		Deployment: DeploymentDescriptor{
			Factory:         factory,
			FactoryCalldata: factoryCalldata,
		},
		InnerSignature: innerSignature,
	}, nil
}

// EncodeWrappedSignature produces a counterfactual signature for a signer
// that will be deployed through deployment
func EncodeWrappedSignature(deployment DeploymentDescriptor, innerSignature []byte) ([]byte, error) {
	return DefaultWrapperCodec.Encode(WrappedSignature{
		Deployment:     deployment,
		InnerSignature: innerSignature,
	})
}

// DecodeWrappedSignature decodes a marker-terminated signature with the default codec
func DecodeWrappedSignature(sig []byte) (*WrappedSignature, error) {
	return DefaultWrapperCodec.Decode(sig)
}
