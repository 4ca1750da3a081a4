package mutation

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/salesboost/internal/cart"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/metrics"
)

// DefaultRetryMax is the number of retries after the first attempt.
// Each item gets DefaultRetryMax+1 attempts.
const DefaultRetryMax = 2

// Notifier is told about the cart once a sequence concludes.
// Implementations broadcast it to the host page.
type Notifier interface {
	CartChanged(ctx context.Context, snap ir.CartSnapshot)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, snap ir.CartSnapshot)

// CartChanged calls f.
func (f NotifierFunc) CartChanged(ctx context.Context, snap ir.CartSnapshot) { f(ctx, snap) }

// Engine runs sequential, verified cart adds.
//
// Thread-safety: Engine holds no per-call state and is safe for concurrent
// use, but callers should not run two sequences against the same cart at
// once; the host is not proven safe under concurrent writes.
type Engine struct {
	reader   cart.Reader
	writer   cart.Writer
	retryMax int
	backOff  func() backoff.BackOff
	notifier Notifier
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryMax sets the retries per item. Negative values are treated as 0.
func WithRetryMax(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.retryMax = n
	}
}

// WithBackOff sets the pacing between attempts of one item. The factory is
// called once per item. The default retries immediately.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(e *Engine) {
		e.backOff = factory
	}
}

// WithNotifier sets the receiver of the final cart snapshot.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithMetrics records attempts and outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine that writes through w and verifies through r.
func New(r cart.Reader, w cart.Writer, opts ...Option) *Engine {
	e := &Engine{
		reader:   r,
		writer:   w,
		retryMax: DefaultRetryMax,
		backOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RetryMax returns the configured retries per item.
func (e *Engine) RetryMax() int {
	return e.retryMax
}

// AddSequential adds every item of req in order.
//
// The cart is read once before the first POST. An item succeeds only when a
// cart read after its POST shows more of it than the previous read did, so a
// host that ignores an add of something already in the cart is caught. When
// the baseline read fails, presence alone verifies the first item. When an
// item exhausts its attempts the sequence stops and the outcome
// reports its index; earlier items stay in the cart. Whatever the result,
// the cart is read once more and handed to the Notifier.
func (e *Engine) AddSequential(ctx context.Context, req ir.MutationRequest) ir.MutationOutcome {
	out := ir.MutationOutcome{Success: true, FailedAt: ir.NoFailure}

	var before ir.CartSnapshot
	if len(req) > 0 {
		snap, err := e.reader.Get(ctx)
		if err != nil {
			slog.Debug("baseline cart read failed", "error", err)
		} else {
			before = snap
		}
	}

	for i, item := range req {
		snap, attempts, err := e.addVerified(ctx, i, item, before)
		out.Attempts += attempts
		if err != nil {
			out.Success = false
			out.FailedAt = i
			slog.Warn("cart add not verified, aborting sequence",
				"index", i,
				"item", item.Key(),
				"remaining", len(req)-i-1,
				"error", err,
			)
			break
		}
		before = snap
	}

	e.metrics.RecordMutation(out.Success)

	snap, err := e.reader.Get(ctx)
	if err != nil {
		slog.Warn("final cart read failed", "error", err)
		return out
	}
	out.Cart = &snap
	if e.notifier != nil {
		e.notifier.CartChanged(ctx, snap)
	}
	return out
}

// addVerified runs the attempts of one item and returns the verifying
// snapshot and how many POSTs it made. Every attempt is one POST followed by
// one verification read, even when the POST itself failed.
func (e *Engine) addVerified(ctx context.Context, index int, item ir.Item, before ir.CartSnapshot) (ir.CartSnapshot, int, error) {
	maxAttempts := e.retryMax + 1
	b := e.backOff()
	b.Reset()

	verr := &VerificationError{Index: index, Item: item}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			verr.Last = err
			return ir.CartSnapshot{}, verr.Attempts, verr
		}

		status, postErr := e.writer.Add(ctx, item)
		verr.Attempts = attempt
		verr.Status = status

		snap, readErr := e.reader.Get(ctx)
		verified := readErr == nil && snap.Quantity(item) > before.Quantity(item)
		e.metrics.RecordAttempt(verified)

		slog.Debug("cart add attempt",
			"index", index,
			"item", item.Key(),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"status", status,
			"verified", verified,
		)

		if verified {
			return snap, attempt, nil
		}

		switch {
		case postErr != nil:
			verr.Last = postErr
		case readErr != nil:
			verr.Last = readErr
		default:
			verr.Last = nil
		}

		if attempt == maxAttempts {
			break
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			verr.Last = err
			break
		}
	}
	return ir.CartSnapshot{}, verr.Attempts, verr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
