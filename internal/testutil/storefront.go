package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/roach88/salesboost/internal/ir"
)

// AddMode controls how the fake storefront answers add-to-cart POSTs.
type AddMode int

const (
	// AddTruthful inserts every posted item.
	AddTruthful AddMode = iota
	// AddSilentNoop answers with the no-op status but never inserts.
	AddSilentNoop
	// AddFailFirst no-ops the first FailFirst POSTs, then inserts.
	AddFailFirst
)

// AddRequest records one POST /cart/add.json.
type AddRequest struct {
	VariantID ir.ID
	Quantity  int
}

// Storefront is an in-process host platform exposing the cart endpoints.
//
// Thread-safety: all methods are safe for concurrent use.
type Storefront struct {
	Server *httptest.Server

	mu         sync.Mutex
	lines      []ir.CartLine
	subtotal   ir.Money
	prices     map[ir.ID]ir.Money
	products   map[ir.ID]ir.ID
	mode       AddMode
	failFirst  int
	noopStatus int
	failGets   int

	posts    int
	gets     int
	addLog   []AddRequest
	readURLs []string
}

// NewStorefront starts a truthful storefront with an empty cart.
// The server is closed by t.Cleanup.
func NewStorefront(t testing.TB) *Storefront {
	t.Helper()

	sf := &Storefront{
		prices:     make(map[ir.ID]ir.Money),
		products:   make(map[ir.ID]ir.ID),
		noopStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart.json", sf.handleRead)
	mux.HandleFunc("POST /cart/add.json", sf.handleAdd)
	sf.Server = httptest.NewServer(mux)
	t.Cleanup(sf.Server.Close)

	return sf
}

// URL returns the storefront origin.
func (sf *Storefront) URL() string {
	return sf.Server.URL
}

// SetMode switches the add behavior. failFirst is only read by AddFailFirst.
func (sf *Storefront) SetMode(mode AddMode, failFirst int) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.mode = mode
	sf.failFirst = failFirst
}

// SetNoopStatus sets the HTTP status of no-op adds (default 200).
func (sf *Storefront) SetNoopStatus(status int) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.noopStatus = status
}

// FailNextReads makes the next n cart reads answer 500.
func (sf *Storefront) FailNextReads(n int) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.failGets = n
}

// SetCatalog registers the price and owning product of a variant.
func (sf *Storefront) SetCatalog(variant, product ir.ID, price ir.Money) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.prices[variant] = price
	sf.products[variant] = product
}

// SetCart replaces the cart contents, as if the shopper edited it.
func (sf *Storefront) SetCart(subtotal ir.Money, lines ...ir.CartLine) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.lines = append([]ir.CartLine(nil), lines...)
	sf.subtotal = subtotal
}

// Cart returns the current server-side cart.
func (sf *Storefront) Cart() ir.CartSnapshot {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.snapshotLocked()
}

// Posts returns the number of add POSTs received.
func (sf *Storefront) Posts() int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.posts
}

// Reads returns the number of cart reads received.
func (sf *Storefront) Reads() int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.gets
}

// AddLog returns every add POST in arrival order.
func (sf *Storefront) AddLog() []AddRequest {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return append([]AddRequest(nil), sf.addLog...)
}

// ReadURLs returns the request URI of every cart read.
func (sf *Storefront) ReadURLs() []string {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return append([]string(nil), sf.readURLs...)
}

func (sf *Storefront) handleRead(w http.ResponseWriter, r *http.Request) {
	sf.mu.Lock()
	sf.gets++
	sf.readURLs = append(sf.readURLs, r.URL.RequestURI())
	if sf.failGets > 0 {
		sf.failGets--
		sf.mu.Unlock()
		http.Error(w, "upstream error", http.StatusInternalServerError)
		return
	}
	snap := sf.snapshotLocked()
	sf.mu.Unlock()

	// Numeric ids go out as JSON numbers, like the real host.
	items := make([]any, 0, len(snap.Items))
	for _, l := range snap.Items {
		items = append(items, map[string]any{
			"product_id": wireID(l.ProductID),
			"variant_id": wireID(l.VariantID),
			"quantity":   l.Quantity,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items":       items,
		"total_price": snap.Subtotal,
		"item_count":  len(items),
	})
}

func (sf *Storefront) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	variant := ir.ID(r.PostForm.Get("variant_id"))
	qty, err := strconv.Atoi(r.PostForm.Get("quantity"))
	if err != nil || qty <= 0 {
		qty = 1
	}

	sf.mu.Lock()
	sf.posts++
	sf.addLog = append(sf.addLog, AddRequest{VariantID: variant, Quantity: qty})

	insert := false
	switch sf.mode {
	case AddTruthful:
		insert = true
	case AddFailFirst:
		insert = sf.posts > sf.failFirst
	}

	if !insert {
		status := sf.noopStatus
		sf.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
		return
	}

	sf.insertLocked(variant, qty)
	sf.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (sf *Storefront) insertLocked(variant ir.ID, qty int) {
	sf.subtotal += sf.prices[variant] * ir.Money(qty)
	for i := range sf.lines {
		if sf.lines[i].VariantID == variant {
			sf.lines[i].Quantity += qty
			return
		}
	}
	product := sf.products[variant]
	if product.IsZero() {
		product = variant
	}
	sf.lines = append(sf.lines, ir.CartLine{ProductID: product, VariantID: variant, Quantity: qty})
}

func (sf *Storefront) snapshotLocked() ir.CartSnapshot {
	return ir.CartSnapshot{
		Items:    append([]ir.CartLine{}, sf.lines...),
		Subtotal: sf.subtotal,
	}
}

// wireID emits numeric ids as JSON numbers, like the host platform.
func wireID(id ir.ID) any {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return n
	}
	return string(id)
}
