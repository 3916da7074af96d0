package errors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	mperrors "github.com/customeros/mailprobe/internal/errors"
)

func TestFromError(t *testing.T) {
	wrapped := errors.Wrap(mperrors.ErrQueueUnavailable, "batch b-1")

	assert.Equal(t, HTTPError{Status: http.StatusServiceUnavailable, Message: "Failed to queue validation request"}, FromError(wrapped, "x"))
	assert.Equal(t, http.StatusBadRequest, FromError(mperrors.ErrNoEmails, "x").Status)
	assert.Equal(t, HTTPError{Status: http.StatusInternalServerError, Message: "fallback"}, FromError(errors.New("boom"), "fallback"))
}
