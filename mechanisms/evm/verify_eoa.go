package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PlainSignature is a 65-byte recoverable signature split into its fields
type PlainSignature struct {
	R [32]byte
	S [32]byte
	V byte // As received: 0, 1, 27 or 28
}

// RecoveryID returns the raw recovery id (0 or 1)
func (p *PlainSignature) RecoveryID() byte {
	return validRecoveryBytes[p.V]
}

// IsValidRecoveryByte reports whether v is an accepted recovery parameter
func IsValidRecoveryByte(v byte) bool {
	_, ok := validRecoveryBytes[v]
	return ok
}

// ParsePlainSignature splits a 65-byte r || s || v signature
//
// Returns ErrInvalidSignatureLength if the signature is not exactly 65 bytes and
// ErrInvalidRecoveryParameter if v is not one of 0, 1, 27, 28.
func ParsePlainSignature(signature []byte) (*PlainSignature, error) {
	if len(signature) != EOASignatureLength {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(signature))
	}

	v := signature[64]
	if !IsValidRecoveryByte(v) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRecoveryParameter, v)
	}

	sig := &PlainSignature{V: v}
	copy(sig.R[:], signature[:32])
	copy(sig.S[:], signature[32:64])
	return sig, nil
}

// EcrecoverRecoverer recovers addresses with go-ethereum's secp256k1 implementation
type EcrecoverRecoverer struct{}

// RecoverAddress implements AddressRecoverer
func (EcrecoverRecoverer) RecoverAddress(digest [32]byte, r, s [32]byte, v byte) (common.Address, error) {
	sig := make([]byte, EOASignatureLength)
	copy(sig[:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = v

	pubKey, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifyEOASignature verifies an ECDSA signature from an externally owned account (EOA)
//
// This uses secp256k1 public key recovery to check that the signature was
// created by the expected address. Ethereum v values (27/28) are normalised to
// the raw recovery id before recovery.
//
// Args:
//
//	recoverer: The recovery primitive (nil uses EcrecoverRecoverer)
//	digest: The 32-byte message hash that was signed
//	signature: The 65-byte ECDSA signature (r: 32 bytes, s: 32 bytes, v: 1 byte)
//	expectedAddress: The Ethereum address that should have signed the message
//
// Returns:
//
//	true if the signature recovers to the expected address
//	error describing why the signature is not valid
func VerifyEOASignature(
	recoverer AddressRecoverer,
	digest [32]byte,
	signature []byte,
	expectedAddress common.Address,
) (bool, error) {
	if recoverer == nil {
		recoverer = EcrecoverRecoverer{}
	}

	sig, err := ParsePlainSignature(signature)
	if err != nil {
		return false, err
	}

	recovered, err := recoverer.RecoverAddress(digest, sig.R, sig.S, sig.RecoveryID())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}

	if recovered != expectedAddress {
		return false, fmt.Errorf("%w: recovered %s", ErrSignerMismatch, recovered.Hex())
	}
	return true, nil
}
