package cart

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/testutil"
)

func newTestClient(t *testing.T, sf *testutil.Storefront, opts ...Option) *Client {
	t.Helper()
	seq := &testutil.CacheBusters{}
	opts = append([]Option{WithCacheBuster(seq.Next)}, opts...)
	c, err := New(sf.URL(), opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("/cart")
	assert.Error(t, err)
}

func TestGet_DecodesHostCart(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetCart(49999,
		ir.CartLine{ProductID: "111", VariantID: "1110", Quantity: 2},
		ir.CartLine{ProductID: "P2", VariantID: "V2", Quantity: 1},
	)
	c := newTestClient(t, sf)

	snap, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ir.Money(49999), snap.Subtotal)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, ir.ID("111"), snap.Items[0].ProductID, "numeric host ids decode as ids")
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.True(t, snap.HasProduct("P2"))
}

func TestGet_EmptyCartHasNonNilItems(t *testing.T) {
	sf := testutil.NewStorefront(t)
	c := newTestClient(t, sf)

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Items)
	assert.Empty(t, snap.Items)
}

func TestGet_EveryReadIsCacheBusted(t *testing.T) {
	sf := testutil.NewStorefront(t)
	c := newTestClient(t, sf)

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, sf.Reads(), "no read is served locally")
	assert.Equal(t, []string{"/cart.json?t=1", "/cart.json?t=2", "/cart.json?t=3"}, sf.ReadURLs())
}

func TestGet_DefaultCacheBusterIsUnique(t *testing.T) {
	next := defaultCacheBuster()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v := next()
		assert.False(t, seen[v], "duplicate cache buster %q", v)
		seen[v] = true
	}
}

func TestGet_HTTPErrorIsFetchError(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.FailNextReads(1)
	c := newTestClient(t, sf)

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCartFetch))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.Status)

	// The next read succeeds: errors are not sticky.
	_, err = c.Get(context.Background())
	assert.NoError(t, err)
}

func TestGet_BadBodyIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Get(context.Background())
	assert.True(t, errors.Is(err, ErrCartFetch))
}

func TestGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Get(context.Background())
	assert.True(t, errors.Is(err, ErrCartFetch))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdd_PostsForm(t *testing.T) {
	sf := testutil.NewStorefront(t)
	c := newTestClient(t, sf)

	status, err := c.Add(context.Background(), ir.Item{ProductID: "P1", VariantID: "V1", Qty: 2})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, []testutil.AddRequest{{VariantID: "V1", Quantity: 2}}, sf.AddLog())
	assert.True(t, sf.Cart().Contains(ir.Item{VariantID: "V1"}))
}

func TestAdd_ProductWithoutVariantUsesProductID(t *testing.T) {
	sf := testutil.NewStorefront(t)
	c := newTestClient(t, sf)

	_, err := c.Add(context.Background(), ir.Item{ProductID: "P9"})
	require.NoError(t, err)

	assert.Equal(t, []testutil.AddRequest{{VariantID: "P9", Quantity: 1}}, sf.AddLog())
}

func TestAdd_ReportsStatusWithoutError(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.SetMode(testutil.AddSilentNoop, 0)
	sf.SetNoopStatus(http.StatusUnprocessableEntity)
	c := newTestClient(t, sf)

	status, err := c.Add(context.Background(), ir.Item{VariantID: "V1"})
	require.NoError(t, err, "an HTTP answer is not a transport error")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestAdd_SendsAjaxHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/")
	require.NoError(t, err)

	_, err = c.Add(context.Background(), ir.Item{VariantID: "V1"})
	require.NoError(t, err)

	assert.Equal(t, "XMLHttpRequest", got.Get("X-Requested-With"))
	assert.True(t, strings.HasPrefix(got.Get("Content-Type"), "application/x-www-form-urlencoded"))
}
