package transport

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
)

// NewReliabilityMiddleware resends a frame when Send fails with a transient
// write error (CodeTransportError). Receive and Close pass through. A
// frame is resent only after the previous attempt failed before the peer
// accepted it, so retries never duplicate a message.
func NewReliabilityMiddleware(config ReliabilityConfig, logger logging.Logger) Middleware {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithFields(logging.Component("transport.retry"))
	return MiddlewareFunc(func(next Transport) Transport {
		return &retryTransport{
			middlewareTransport: middlewareTransport{next: next},
			config:              config,
			logger:              logger,
		}
	})
}

type retryTransport struct {
	middlewareTransport
	config ReliabilityConfig
	logger logging.Logger
}

func (rt *retryTransport) Send(ctx context.Context, msg []byte) error {
	attempts := rt.config.MaxRetries + 1

	err := rt.next.Send(ctx, msg)
	for attempt := 1; err != nil && attempt < attempts; attempt++ {
		if !isRetryableError(err) {
			return err
		}
		delay := calculateBackoff(attempt, rt.config)
		rt.logger.WithError(err).Warn("send failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay))

		if werr := sleepCtx(ctx, delay); werr != nil {
			return werr
		}
		err = rt.next.Send(ctx, msg)
	}
	if err == nil || !isRetryableError(err) {
		return err
	}

	return mcperrors.WrapError(err, mcperrors.CodeTransportError,
		fmt.Sprintf("send failed after %d attempts", attempts),
		mcperrors.CategoryTransport, mcperrors.SeverityError,
	).WithContext(&mcperrors.Context{Component: "transport.retry", Operation: "send"})
}

// isRetryableError accepts only transport write failures. Closed transports,
// oversized frames, cancellation and protocol errors are final.
func isRetryableError(err error) bool {
	return mcperrors.IsCode(err, mcperrors.CodeTransportError)
}

// calculateBackoff returns the wait before retry number attempt (1-based):
// InitialRetryDelay grown by RetryBackoffFactor per attempt, capped at
// MaxRetryDelay, with up to 10% jitter either way.
func calculateBackoff(attempt int, config ReliabilityConfig) time.Duration {
	d := float64(config.InitialRetryDelay)
	limit := float64(config.MaxRetryDelay)
	for i := 1; i < attempt && d < limit; i++ {
		d *= config.RetryBackoffFactor
	}
	if limit > 0 && d > limit {
		d = limit
	}
	jitter := d * 0.1 * (2*rand.Float64() - 1)
	return time.Duration(d + jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
