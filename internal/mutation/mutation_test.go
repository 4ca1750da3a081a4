package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salesboost/internal/cart"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/metrics"
	"github.com/roach88/salesboost/internal/testutil"
)

func newStorefrontEngine(t *testing.T, sf *testutil.Storefront, opts ...Option) *Engine {
	t.Helper()
	c, err := cart.New(sf.URL())
	require.NoError(t, err)
	return New(c, c, opts...)
}

func TestAddSequential_TruthfulBackend(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetCatalog("V1", "P1", 1500)
	e := newStorefrontEngine(t, sf)

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1", Qty: 1}})

	assert.True(t, out.Success)
	assert.Equal(t, ir.NoFailure, out.FailedAt)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, sf.Posts(), "exactly one POST")
	// Baseline, one verification read and the final read.
	assert.Equal(t, 3, sf.Reads())
	require.NotNil(t, out.Cart)
	assert.True(t, out.Cart.Contains(ir.Item{VariantID: "V1"}))
	assert.Equal(t, ir.Money(1500), out.Cart.Subtotal)
}

func TestAddSequential_SilentNoopExhaustsRetries(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetMode(testutil.AddSilentNoop, 0)
	e := newStorefrontEngine(t, sf)
	retryMax := e.RetryMax()

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1", Qty: 1}})

	assert.False(t, out.Success)
	assert.Equal(t, 0, out.FailedAt)
	assert.Equal(t, retryMax+1, out.Attempts)
	assert.Equal(t, retryMax+1, sf.Posts())
	// Baseline, retryMax+1 verification reads, then the final read.
	assert.Equal(t, retryMax+3, sf.Reads())

	err := OutcomeErr(out, ir.MutationRequest{{VariantID: "V1", Qty: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerificationFailed))
}

func TestAddSequential_NoopWithErrorStatusStillVerifies(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetMode(testutil.AddSilentNoop, 0)
	sf.SetNoopStatus(422)
	e := newStorefrontEngine(t, sf, WithRetryMax(1))

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	assert.False(t, out.Success)
	assert.Equal(t, 2, sf.Posts())
	assert.Equal(t, 4, sf.Reads())
}

func TestAddSequential_FailFirstThenSucceeds(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetMode(testutil.AddFailFirst, 1)
	e := newStorefrontEngine(t, sf)

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1", Qty: 2}})

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, sf.Posts())
	assert.Equal(t, 4, sf.Reads())
	assert.Equal(t, []testutil.AddRequest{{VariantID: "V1", Quantity: 2}, {VariantID: "V1", Quantity: 2}}, sf.AddLog())
}

func TestAddSequential_BaselineReadFailureFallsBackToPresence(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.FailNextReads(1)
	e := newStorefrontEngine(t, sf)

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, sf.Posts())
}

func TestAddSequential_ExistingLineNeedsQuantityToRise(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetCart(1500, ir.CartLine{ProductID: "P1", VariantID: "V1", Quantity: 1})
	sf.SetMode(testutil.AddSilentNoop, 0)
	e := newStorefrontEngine(t, sf, WithRetryMax(1))

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	assert.False(t, out.Success, "line already present but add ignored")
	assert.Equal(t, 0, out.FailedAt)
	assert.Equal(t, 2, sf.Posts())
}

func TestAddSequential_ExistingLineVerifiesOnIncrease(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetCatalog("V1", "P1", 1500)
	sf.SetCart(1500, ir.CartLine{ProductID: "P1", VariantID: "V1", Quantity: 1})
	e := newStorefrontEngine(t, sf)

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1", Qty: 2}})

	require.True(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
	require.NotNil(t, out.Cart)
	assert.Equal(t, 3, out.Cart.Quantity(ir.Item{VariantID: "V1"}))
}

func TestAddSequential_ItemsPostedInOrder(t *testing.T) {
	sf := testutil.NewStorefront(t)
	e := newStorefrontEngine(t, sf)

	req := ir.MutationRequest{{VariantID: "V1"}, {VariantID: "V2", Qty: 3}, {ProductID: "P9"}}
	out := e.AddSequential(context.Background(), req)

	require.True(t, out.Success)
	assert.Equal(t, []testutil.AddRequest{
		{VariantID: "V1", Quantity: 1},
		{VariantID: "V2", Quantity: 3},
		{VariantID: "P9", Quantity: 1},
	}, sf.AddLog())
}

// fakeCart is an in-memory host that refuses some variants.
type fakeCart struct {
	mu       sync.Mutex
	lines    []ir.CartLine
	refuse   map[ir.ID]bool
	postErr  error
	posts    []ir.ID
	reads    int
	// failReads lists 1-based read numbers that return an error.
	failReads map[int]bool
	notified  []ir.CartSnapshot
}

func (f *fakeCart) Add(_ context.Context, item ir.Item) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, item.Key())
	if f.postErr != nil {
		return 0, f.postErr
	}
	if !f.refuse[item.Key()] {
		f.lines = append(f.lines, ir.CartLine{ProductID: item.ProductID, VariantID: item.Key(), Quantity: item.Quantity()})
	}
	return 200, nil
}

func (f *fakeCart) Get(context.Context) (ir.CartSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failReads[f.reads] {
		return ir.CartSnapshot{}, errors.New("cart read timeout")
	}
	return ir.CartSnapshot{Items: append([]ir.CartLine{}, f.lines...)}, nil
}

func (f *fakeCart) CartChanged(_ context.Context, snap ir.CartSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, snap)
}

func TestAddSequential_AbortsWithoutRollback(t *testing.T) {
	fc := &fakeCart{refuse: map[ir.ID]bool{"V2": true}}
	e := New(fc, fc, WithNotifier(fc))

	out := e.AddSequential(context.Background(), ir.MutationRequest{
		{VariantID: "V1"}, {VariantID: "V2"}, {VariantID: "V3"},
	})

	assert.False(t, out.Success)
	assert.Equal(t, 1, out.FailedAt)
	assert.Equal(t, 1+DefaultRetryMax+1, out.Attempts)
	assert.Equal(t, []ir.ID{"V1", "V2", "V2", "V2"}, fc.posts, "V3 never attempted")

	// V1 stays in the cart; nothing is compensated.
	require.NotNil(t, out.Cart)
	assert.True(t, out.Cart.Contains(ir.Item{VariantID: "V1"}))
	assert.False(t, out.Cart.Contains(ir.Item{VariantID: "V3"}))

	require.Len(t, fc.notified, 1, "failure still broadcasts the final cart")
	assert.Equal(t, *out.Cart, fc.notified[0])

	var ve *VerificationError
	require.True(t, errors.As(OutcomeErr(out, ir.MutationRequest{{VariantID: "V1"}, {VariantID: "V2"}}), &ve))
	assert.Equal(t, ir.ID("V2"), ve.Item.Key())
}

func TestAddSequential_TransportErrorStillReads(t *testing.T) {
	fc := &fakeCart{postErr: errors.New("connection reset")}
	e := New(fc, fc, WithRetryMax(1))

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	assert.False(t, out.Success)
	assert.Len(t, fc.posts, 2)
	// Baseline, one verification read per attempt, then the final read.
	assert.Equal(t, 4, fc.reads)
}

func TestAddSequential_VerificationReadFailureCountsAsUnverified(t *testing.T) {
	fc := &fakeCart{failReads: map[int]bool{2: true}}
	e := New(fc, fc)

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	// The first POST inserted, but its verification read failed; the second
	// attempt posts again and verifies against the baseline.
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []ir.ID{"V1", "V1"}, fc.posts)
}

func TestAddSequential_SameItemTwiceInOneRequest(t *testing.T) {
	fc := &fakeCart{}
	e := New(fc, fc)

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}, {VariantID: "V1"}})

	// The second item is measured against the snapshot that verified the first.
	require.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 4, fc.reads)
}

func TestAddSequential_SuccessNotifies(t *testing.T) {
	fc := &fakeCart{}
	var got []ir.CartSnapshot
	e := New(fc, fc, WithNotifier(NotifierFunc(func(_ context.Context, s ir.CartSnapshot) {
		got = append(got, s)
	})))

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	require.True(t, out.Success)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Items, 1)
}

func TestAddSequential_EmptyRequest(t *testing.T) {
	fc := &fakeCart{}
	e := New(fc, fc)

	out := e.AddSequential(context.Background(), nil)

	assert.True(t, out.Success)
	assert.Equal(t, 0, out.Attempts)
	assert.Empty(t, fc.posts)
	assert.Equal(t, 1, fc.reads, "final read only")
}

func TestAddSequential_RetryMaxZero(t *testing.T) {
	fc := &fakeCart{refuse: map[ir.ID]bool{"V1": true}}
	e := New(fc, fc, WithRetryMax(0))

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	assert.False(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
}

func TestAddSequential_StopBackOffEndsEarly(t *testing.T) {
	fc := &fakeCart{refuse: map[ir.ID]bool{"V1": true}}
	e := New(fc, fc, WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }))

	out := e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	assert.False(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
}

func TestAddSequential_CancelledContext(t *testing.T) {
	fc := &fakeCart{}
	e := New(fc, fc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.AddSequential(ctx, ir.MutationRequest{{VariantID: "V1"}})

	assert.False(t, out.Success)
	assert.Equal(t, 0, out.Attempts)
	assert.Empty(t, fc.posts)
}

func TestAddSequential_RecordsMetrics(t *testing.T) {
	fc := &fakeCart{}
	m := metrics.New(prometheus.NewRegistry())
	e := New(fc, fc, WithMetrics(m))

	e.AddSequential(context.Background(), ir.MutationRequest{{VariantID: "V1"}})

	assert.Equal(t, 1.0, promtest.ToFloat64(m.AddAttemptsTotal.WithLabelValues("verified")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.MutationsTotal.WithLabelValues("success")))
}
