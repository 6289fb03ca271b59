package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Classify selects the verification branch for a signer/signature pair
//
// Code presence is checked first; the marker is only considered for signers
// without code. The only side effect is the backend's code read, so repeated
// calls against unchanged chain state return the same classification.
//
// Args:
//
//	ctx: Context for cancellation and timeout control
//	backend: Chain backend used for the code lookup
//	signer: The address that should have signed
//	signature: The raw signature bytes
//
// Returns:
//
//	ContractPresent, WrappedDeployment or PlainOrRecoverable
//	error (wrapping ErrCodeLookupFailed) if the code lookup fails
func Classify(
	ctx context.Context,
	backend SignatureBackend,
	signer common.Address,
	signature []byte,
) (Classification, error) {
	deployed, err := backend.HasCode(ctx, signer)
	if err != nil {
		return ClassificationUnknown, fmt.Errorf("%w: %v", ErrCodeLookupFailed, err)
	}
	if deployed {
		return ContractPresent, nil
	}
	if IsWrappedSignature(signature) {
		return WrappedDeployment, nil
	}
	return PlainOrRecoverable, nil
}
