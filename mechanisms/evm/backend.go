package evm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SignerBackend adapts a FacilitatorEvmSigner to the SignatureBackend interface
type SignerBackend struct {
	signer FacilitatorEvmSigner
}

// NewSignerBackend wraps signer as a SignatureBackend
func NewSignerBackend(signer FacilitatorEvmSigner) *SignerBackend {
	return &SignerBackend{signer: signer}
}

// HasCode implements SignatureBackend
func (b *SignerBackend) HasCode(ctx context.Context, address common.Address) (bool, error) {
	code, err := b.signer.GetCode(ctx, address.Hex())
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Deploy deploys a counterfactual wallet through its factory
//
// The factory calldata already contains the complete encoded function call,
// so it is sent as-is. The transaction must be mined with success status.
func (b *SignerBackend) Deploy(ctx context.Context, factory common.Address, calldata []byte) error {
	txHash, err := b.signer.SendTransaction(ctx, factory.Hex(), calldata)
	if err != nil {
		return fmt.Errorf("factory deployment transaction failed: %w", err)
	}

	receipt, err := b.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("failed to wait for deployment: %w", err)
	}

	if receipt.Status != TxStatusSuccess {
		return fmt.Errorf("deployment transaction %s reverted", txHash)
	}

	return nil
}

// IsValidSignature implements SignatureBackend
func (b *SignerBackend) IsValidSignature(
	ctx context.Context,
	contract common.Address,
	digest [32]byte,
	signature []byte,
) ([4]byte, error) {
	var magic [4]byte

	result, err := b.signer.ReadContract(
		ctx,
		contract.Hex(),
		EIP1271ABI,
		"isValidSignature",
		digest,
		signature,
	)
	if err != nil {
		return magic, err
	}

	// ReadContract returns interface{}, so handle the concrete types it may produce
	switch v := result.(type) {
	case [4]byte:
		magic = v
	case []byte:
		if len(v) < 4 {
			return magic, errors.New("invalid return value from isValidSignature: too short")
		}
		copy(magic[:], v[:4])
	default:
		return magic, errors.New("invalid return type from isValidSignature: expected bytes4")
	}

	return magic, nil
}
