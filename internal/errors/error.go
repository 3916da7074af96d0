package errors

import "github.com/pkg/errors"

var (
	// infrastructure
	ErrQueueUnavailable        = errors.New("queue unavailable")
	ErrCacheUnavailable        = errors.New("cache unavailable")
	ErrCircuitStoreUnavailable = errors.New("circuit breaker store unavailable")
	ErrConnectionTimeout       = errors.New("connection timeout")

	// dns
	ErrDNSTimeout = errors.New("dns lookup timeout")

	// smtp
	ErrSMTPSlotUnavailable = errors.New("no smtp slot available")

	// batch
	ErrNoEmails      = errors.New("no emails provided")
	ErrBatchNotFound = errors.New("batch not found")

	// cache admin
	ErrInvalidNamespace = errors.New("invalid cache namespace")
)
