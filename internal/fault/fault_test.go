package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := New(CodeUnsupportedVersion, "version %s is newer than %s", "2.0", "1.2")
	assert.Equal(t, "UnsupportedVersionError: version 2.0 is newer than 1.2", err.Error())

	wrapped := Wrap(CodeMalformedEnvelope, errors.New("unexpected EOF"), "parse request")
	assert.Equal(t, "MalformedEnvelopeError: parse request: unexpected EOF", wrapped.Error())
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := Conflict("data stream already open")
	err := fmt.Errorf("append: %w", base)

	assert.Equal(t, CodeConflict, CodeOf(err))
	assert.True(t, Is(err, CodeConflict))
	assert.False(t, Is(err, CodeValidation))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, Is(errors.New("boom"), CodeInternal), "plain errors carry no code")
}

func TestIsServiceError(t *testing.T) {
	assert.True(t, IsServiceError(ResourceNotFound("no protocol %q", "p1")))
	assert.True(t, IsServiceError(Conflict("exists")))
	assert.False(t, IsServiceError(Validation("name", "must not be blank")))
	assert.False(t, IsServiceError(New(CodeUnsupportedVersion, "x")))
	assert.False(t, IsServiceError(errors.New("plain")))
}

func TestValidationDetail(t *testing.T) {
	err := Validation("fromSequenceId", "must be >= 0, got %d", -1)

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "fromSequenceId", err.Details["field"])
	assert.Contains(t, err.Error(), "must be >= 0, got -1")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(CodeInternal, cause, "context")

	assert.ErrorIs(t, err, cause)
}
