// Package notify delivers alert and digest emails to the parents.
//
// A Dispatcher owns the retry policy; Transports perform one complete
// delivery per call (connect, authenticate, send, close).
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/metrics"
)

const (
	// MaxAttempts is the upper bound on deliveries per Send.
	MaxAttempts = 3
	// DefaultRetryDelay is the pause between delivery attempts.
	DefaultRetryDelay = 2 * time.Second
)

// Transport performs a single delivery. image is an optional JPEG.
type Transport interface {
	Deliver(ctx context.Context, subject, body string, image []byte) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, subject, body string, image []byte) error

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, subject, body string, image []byte) error {
	return f(ctx, subject, body, image)
}

// Dispatcher retries a Transport a bounded number of times.
type Dispatcher struct {
	transport   Transport
	maxAttempts int
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts lowers the attempt limit. Values outside 1..MaxAttempts are ignored.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n >= 1 && n <= MaxAttempts {
			d.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.delay = delay }
}

// NewDispatcher returns a Dispatcher for t.
func NewDispatcher(t Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport:   t,
		maxAttempts: MaxAttempts,
		delay:       DefaultRetryDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers the message, retrying on failure. It returns false once
// every attempt has failed and never panics.
func (d *Dispatcher) Send(ctx context.Context, subject, message string, attachment []byte) bool {
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := d.deliver(ctx, subject, message, attachment)

		rec := metrics.Monitor().Count("NotificationAttempts")
		if err == nil {
			rec.Flush()
			log.Info().
				Str("subject", subject).
				Int("attempt", attempt).
				Bool("attachment", len(attachment) > 0).
				Msg("Notification sent")
			return true
		}
		rec.Count("NotificationFailures").Flush()

		if attempt == d.maxAttempts {
			log.Error().Err(err).
				Str("subject", subject).
				Int("attempts", attempt).
				Msg("Notification failed after all attempts")
			break
		}
		log.Warn().Err(err).
			Str("subject", subject).
			Int("attempt", attempt).
			Int("maxAttempts", d.maxAttempts).
			Msg("Notification failed, retrying")
		if err := d.sleep(ctx, d.delay); err != nil {
			log.Warn().Err(err).Msg("Notification retry interrupted")
			break
		}
	}
	return false
}

// deliver runs one attempt, turning a transport panic into an error.
func (d *Dispatcher) deliver(ctx context.Context, subject, message string, attachment []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panicked: %v", r)
		}
	}()
	return d.transport.Deliver(ctx, subject, message, attachment)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
