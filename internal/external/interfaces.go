package external

import (
	"context"

	"placement/internal/types"
)

// ---------------------------------------------------------------------------
// Mail
// ---------------------------------------------------------------------------

// MailTransport delivers a fully rendered message. Implementations map vendor
// failures to types.AppError codes:
//   - ErrCodeEmailBlocked: the recipient was refused (terminal)
//   - ErrCodeUpstreamRateLimited: the provider throttled the request
//   - ErrCodeUpstreamUnavailable: network failure, timeout or open breaker
//   - ErrCodeUpstreamEmailProvider: any other provider rejection
type MailTransport interface {
	// Send transmits msg and returns the provider's message id, which may be
	// empty for providers that do not issue one.
	Send(ctx context.Context, msg types.MailMessage) (string, error)

	// Verify checks that the transport is reachable and its credentials are
	// accepted, without sending anything.
	Verify(ctx context.Context) error

	// Name identifies the transport in logs and metrics.
	Name() string
}

// ---------------------------------------------------------------------------
// Archive storage
// ---------------------------------------------------------------------------

// Archiver persists an opaque, already-compressed blob under key. Keys use
// forward slashes regardless of the backing store.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte) error
}
