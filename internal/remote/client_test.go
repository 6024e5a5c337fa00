package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
	"github.com/mennohie/wdm-project-group-9/internal/remote"
)

// fakeServices mounts stock and payment routes behind one gateway.
type fakeServices struct {
	mu       sync.Mutex
	stock    map[string]int64
	price    map[string]int64
	credit   map[string]int64
	findHits atomic.Int32
	failFind atomic.Int32 // number of 503s to return before answering
	payHits  atomic.Int32
}

func newFakeServices() *fakeServices {
	return &fakeServices{
		stock:  map[string]int64{"i1": 3},
		price:  map[string]int64{"i1": 7},
		credit: map[string]int64{"u1": 10},
	}
}

func (f *fakeServices) get(m map[string]int64, id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[id]
}

func amount(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return n
}

func (f *fakeServices) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/stock/find/{item}", func(w http.ResponseWriter, r *http.Request) {
		f.findHits.Add(1)
		if f.failFind.Load() > 0 {
			f.failFind.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		id := chi.URLParam(r, "item")
		s, ok := f.stock[id]
		if !ok {
			http.Error(w, "item not found", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"stock":` + strconv.FormatInt(s, 10) + `,"price":` + strconv.FormatInt(f.price[id], 10) + `}`))
	})
	r.Post("/stock/subtract/{item}/{qty}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id, q := chi.URLParam(r, "item"), amount(r, "qty")
		if f.stock[id] < q {
			http.Error(w, "insufficient stock", http.StatusBadRequest)
			return
		}
		f.stock[id] -= q
	})
	r.Post("/stock/add/{item}/{qty}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stock[chi.URLParam(r, "item")] += amount(r, "qty")
	})
	r.Post("/payment/pay/{user}/{amount}", func(w http.ResponseWriter, r *http.Request) {
		f.payHits.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		u, a := chi.URLParam(r, "user"), amount(r, "amount")
		if f.credit[u] < a {
			http.Error(w, "insufficient credit", http.StatusBadRequest)
			return
		}
		f.credit[u] -= a
	})
	r.Post("/payment/add_funds/{user}/{amount}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.credit[chi.URLParam(r, "user")] += amount(r, "amount")
	})
	return r
}

func setup(t *testing.T) (*fakeServices, remote.Options) {
	t.Helper()
	f := newFakeServices()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	return f, remote.Options{GatewayURL: srv.URL + "/", Timeout: time.Second, GetRetries: 2, RetryDelay: time.Millisecond}
}

func TestStockClient_Find(t *testing.T) {
	_, opts := setup(t)
	c := remote.NewStockClient(opts)

	info, err := c.Find(context.Background(), "i1")
	if err != nil || info.Stock != 3 || info.Price != 7 {
		t.Fatalf("Find = %+v, %v", info, err)
	}
	if _, err := c.Find(context.Background(), "nope"); !errors.Is(err, checkout.ErrItemNotFound) {
		t.Errorf("want ErrItemNotFound, got %v", err)
	}
}

func TestStockClient_FindRetriesServerErrors(t *testing.T) {
	f, opts := setup(t)
	c := remote.NewStockClient(opts)

	f.failFind.Store(2)
	if _, err := c.Find(context.Background(), "i1"); err != nil {
		t.Fatalf("Find after two 503s: %v", err)
	}
	if n := f.findHits.Load(); n != 3 {
		t.Errorf("hits = %d, want 3", n)
	}

	f.findHits.Store(0)
	f.failFind.Store(10)
	if _, err := c.Find(context.Background(), "i1"); !errors.Is(err, checkout.ErrUnavailable) {
		t.Errorf("want ErrUnavailable after retries, got %v", err)
	}
	if n := f.findHits.Load(); n != 3 {
		t.Errorf("hits = %d, want 1 attempt + 2 retries", n)
	}
}

func TestStockClient_SubtractAndAdd(t *testing.T) {
	f, opts := setup(t)
	c := remote.NewStockClient(opts)
	ctx := context.Background()

	if err := c.Subtract(ctx, "i1", 2); err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	if err := c.Subtract(ctx, "i1", 2); !errors.Is(err, checkout.ErrInsufficientStock) {
		t.Errorf("want ErrInsufficientStock, got %v", err)
	}
	if err := c.Add(ctx, "i1", 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := f.get(f.stock, "i1"); got != 3 {
		t.Errorf("stock = %d, want 3", got)
	}
}

func TestPaymentClient(t *testing.T) {
	f, opts := setup(t)
	c := remote.NewPaymentClient(opts)
	ctx := context.Background()

	if err := c.Pay(ctx, "u1", 4); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if err := c.Pay(ctx, "u1", 100); !errors.Is(err, checkout.ErrInsufficientCredit) {
		t.Errorf("want ErrInsufficientCredit, got %v", err)
	}
	if err := c.AddFunds(ctx, "u1", 4); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	if got := f.get(f.credit, "u1"); got != 10 {
		t.Errorf("credit = %d, want 10", got)
	}
}

func TestPaymentClient_UnreachableIsUnavailableAndNotRetried(t *testing.T) {
	f, opts := setup(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	opts.GatewayURL = srv.URL

	err := remote.NewPaymentClient(opts).Pay(context.Background(), "u1", 1)
	if !errors.Is(err, checkout.ErrUnavailable) {
		t.Errorf("want ErrUnavailable, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("POST sent %d times, want 1", hits.Load())
	}

	opts.GatewayURL = "http://127.0.0.1:1"
	if err := remote.NewPaymentClient(opts).Pay(context.Background(), "u1", 1); !errors.Is(err, checkout.ErrUnavailable) {
		t.Errorf("connection refused: want ErrUnavailable, got %v", err)
	}
	if f.payHits.Load() != 0 {
		t.Error("fake payment service must not be hit")
	}
}
