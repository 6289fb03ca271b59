package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// VerifyEIP1271Signature verifies a signature from a smart contract wallet using EIP-1271
//
// EIP-1271 defines a standard way for contracts to verify signatures. This function
// calls isValidSignature(bytes32,bytes) on the wallet through the backend and checks
// that it returns the magic value 0x1626ba7e. The comparison is done here, never by
// the backend.
//
// Args:
//
//	ctx: Context for cancellation and timeout control
//	backend: The chain backend that performs the contract call
//	wallet: The smart contract wallet address
//	digest: The 32-byte message hash that was signed
//	signature: The signature bytes (format is wallet-specific)
//
// Returns:
//
//	true if the contract returns the EIP-1271 magic value
//	error wrapping ErrCallFailed if the call fails, ErrSignatureRejected otherwise
func VerifyEIP1271Signature(
	ctx context.Context,
	backend SignatureBackend,
	wallet common.Address,
	digest [32]byte,
	signature []byte,
) (bool, error) {
	returnedMagic, err := backend.IsValidSignature(ctx, wallet, digest, signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}

	if returnedMagic != eip1271MagicValue {
		return false, fmt.Errorf("%w: 0x%x", ErrSignatureRejected, returnedMagic[:])
	}
	return true, nil
}
