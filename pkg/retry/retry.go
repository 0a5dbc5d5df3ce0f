// Package retry wraps network-bound operations with bounded exponential
// backoff. Only transient failures (connection errors, timeouts) are
// retried; everything else fails on first occurrence.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/docuflow/ocr-service/pkg/logger"
)

// Class is the retry classification of an error.
type Class int

const (
	// ClassPermanent errors are never retried.
	ClassPermanent Class = iota
	// ClassConnect covers refused, reset, and unreachable connections.
	ClassConnect
	// ClassTimeout covers deadline and i/o timeout failures.
	ClassTimeout
)

func (c Class) String() string {
	switch c {
	case ClassConnect:
		return "connect"
	case ClassTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// Terminal errors distinguishing retry exhaustion from first-attempt failure.
var (
	ErrConnectExhausted = errors.New("connection attempts exhausted")
	ErrTimeoutExhausted = errors.New("timed out on every attempt")
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the service defaults: 3 attempts, 1s base delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 1 * time.Second}
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
	log    *logger.Logger
}

// New creates a Retrier. A zero-value policy falls back to DefaultPolicy.
func New(policy Policy, log *logger.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultPolicy().BaseDelay
	}
	return &Retrier{policy: policy, log: log}
}

// Do runs fn until it succeeds, fails permanently, or attempts are exhausted.
// The delay between attempts doubles each time, starting at BaseDelay.
// Cancelling ctx interrupts the backoff wait and returns ctx.Err().
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	var lastClass Class
	delay := r.policy.BaseDelay

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := Classify(err)
		if class == ClassPermanent {
			return err
		}

		lastErr = err
		lastClass = class
		r.log.Warn().
			Str("op", op).
			Int("attempt", attempt+1).
			Int("max_attempts", r.policy.MaxAttempts).
			Str("class", class.String()).
			Err(err).
			Msg("transient failure, will retry")
	}

	if lastClass == ClassTimeout {
		return fmt.Errorf("%s: %w (%d attempts): %w", op, ErrTimeoutExhausted, r.policy.MaxAttempts, lastErr)
	}
	return fmt.Errorf("%s: %w (%d attempts): %w", op, ErrConnectExhausted, r.policy.MaxAttempts, lastErr)
}

// Classify reports whether an error is worth retrying and how.
// Timeout checks run first: a net.OpError can carry a timeout too.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassConnect
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassConnect
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return ClassConnect
	}

	return ClassPermanent
}

// IsTransient reports whether Classify would allow a retry.
func IsTransient(err error) bool {
	return Classify(err) != ClassPermanent
}
