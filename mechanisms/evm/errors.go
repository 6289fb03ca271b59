package evm

import "errors"

// Internal failure kinds. Every one of them collapses to OutcomeInvalid;
// they are only visible through VerificationReport and logs.
var (
	ErrMalformedWrapper         = errors.New("evm: malformed wrapped signature")
	ErrDeploymentFailed         = errors.New("evm: counterfactual deployment failed")
	ErrCallFailed               = errors.New("evm: isValidSignature call failed")
	ErrSignatureRejected        = errors.New("evm: isValidSignature returned non-magic value")
	ErrInvalidSignatureLength   = errors.New("evm: invalid EOA signature length: expected 65 bytes")
	ErrInvalidRecoveryParameter = errors.New("evm: invalid EOA recovery parameter")
	ErrRecoveryFailed           = errors.New("evm: public key recovery failed")
	ErrSignerMismatch           = errors.New("evm: recovered address does not match signer")
	ErrCodeLookupFailed         = errors.New("evm: failed to check signer code")
	ErrVerificationTimeout      = errors.New("evm: verification timed out")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrMalformedWrapper, ReasonMalformedWrapper},
	{ErrDeploymentFailed, ReasonDeploymentFailed},
	{ErrCallFailed, ReasonCallFailed},
	{ErrSignatureRejected, ReasonSignatureRejected},
	{ErrInvalidSignatureLength, ReasonInvalidSignatureLength},
	{ErrInvalidRecoveryParameter, ReasonInvalidRecoveryParameter},
	{ErrRecoveryFailed, ReasonRecoveryFailed},
	{ErrSignerMismatch, ReasonSignerMismatch},
	{ErrCodeLookupFailed, ReasonCodeLookupFailed},
	{ErrVerificationTimeout, ReasonVerificationTimeout},
}

// ReasonFor maps an internal failure to its snake_case reason code
func ReasonFor(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInvalidSignature
}
