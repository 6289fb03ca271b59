package univsig

import "fmt"

// VerifyError is a request-level failure: the request could not be turned into
// a verification at all (bad hex, bad address, unsupported digest source).
// A signature that simply fails verification is not a VerifyError.
type VerifyError struct {
	Reason string // snake_case reason code
	Signer string // Claimed signer, when known
	Err    error  // Underlying cause, may be nil
}

// NewVerifyError creates a VerifyError
func NewVerifyError(reason, signer string, err error) *VerifyError {
	return &VerifyError{
		Reason: reason,
		Signer: signer,
		Err:    err,
	}
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}
