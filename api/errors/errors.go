package errors

import (
	"net/http"

	"github.com/pkg/errors"

	mperrors "github.com/customeros/mailprobe/internal/errors"
)

// HTTPError maps a service error to a status code and a client-facing message.
type HTTPError struct {
	Status  int
	Message string
}

var known = []struct {
	target error
	status int
	msg    string
}{
	{mperrors.ErrNoEmails, http.StatusBadRequest, "No emails provided"},
	{mperrors.ErrInvalidNamespace, http.StatusBadRequest, "Invalid cache type"},
	{mperrors.ErrBatchNotFound, http.StatusNotFound, "Batch not found"},
	{mperrors.ErrQueueUnavailable, http.StatusServiceUnavailable, "Failed to queue validation request"},
	{mperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "Cache unavailable"},
	{mperrors.ErrCircuitStoreUnavailable, http.StatusServiceUnavailable, "Circuit breaker store unavailable"},
}

func FromError(err error, fallback string) HTTPError {
	for _, k := range known {
		if errors.Is(err, k.target) {
			return HTTPError{Status: k.status, Message: k.msg}
		}
	}
	return HTTPError{Status: http.StatusInternalServerError, Message: fallback}
}
