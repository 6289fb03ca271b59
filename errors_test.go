package univsig

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyError(t *testing.T) {
	cause := errors.New("odd length hex string")
	err := NewVerifyError("invalid_signature_format", "0xabc", cause)

	assert.Equal(t, "invalid_signature_format: odd length hex string", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "0xabc", err.Signer)

	var target *VerifyError
	assert.True(t, errors.As(error(err), &target))
	assert.Equal(t, "invalid_signature_format", target.Reason)

	assert.Equal(t, "missing_digest", NewVerifyError("missing_digest", "", nil).Error())
}
