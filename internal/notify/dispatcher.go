package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jw6ventures/bookings/internal/metrics"
	"github.com/jw6ventures/bookings/internal/platform/retry"
)

var defaultPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// Dispatcher sends notices in the background, one goroutine per notice.
// A failed send is logged and counted; it never affects other notices or the
// caller.
type Dispatcher struct {
	mailer  Mailer
	policy  retry.Policy
	timeout time.Duration
	wg      sync.WaitGroup
}

type Option func(*Dispatcher)

// WithPolicy overrides the per-notice retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithTimeout bounds each notice's total delivery time.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

func NewDispatcher(mailer Mailer, opts ...Option) *Dispatcher {
	d := &Dispatcher{mailer: mailer, policy: defaultPolicy, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts delivery of every notice and returns immediately. Sends
// outlive ctx's cancellation but keep its values for logging.
func (d *Dispatcher) Dispatch(ctx context.Context, notices []Notice) {
	base := context.WithoutCancel(ctx)
	for _, n := range notices {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		d.wg.Add(1)
		go func(n Notice) {
			defer d.wg.Done()
			d.deliver(base, n)
		}(n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notice) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg := n.Render()
	err := retry.Do(ctx, d.policy, classify, func(ctx context.Context) error {
		return d.mailer.Send(ctx, msg)
	})
	metrics.NotificationSent(err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "app disabled notice failed", "notice_id", n.ID, "to", n.RecipientEmail, "app", n.AppName, "error", err)
		return
	}
	slog.DebugContext(ctx, "app disabled notice sent", "notice_id", n.ID, "to", n.RecipientEmail, "app", n.AppName)
}

func classify(err error) retry.Action {
	if permanent(err) {
		return retry.Stop
	}
	return retry.Retry
}

// Wait blocks until in-flight notices finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
