package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

// OrderService is the request side of the order service.
type OrderService interface {
	Create(ctx context.Context, userID string) (string, error)
	Find(ctx context.Context, orderID string) (orders.Order, error)
	BatchInit(ctx context.Context, n, nItems, nUsers int, itemPrice int64) error
	RequestAddItem(ctx context.Context, orderID, itemID string, quantity int64) (string, error)
	RequestCheckout(ctx context.Context, orderID string) (string, error)
}

type StatusReader interface {
	Lookup(ctx context.Context, correlationID string) (orders.RequestStatus, error)
}

type OrdersHandler struct {
	Service OrderService
	Status  StatusReader
	Log     *slog.Logger
}

type CreateOrderResp struct {
	OrderID string `json:"order_id"`
}

type AcceptedResp struct {
	CorrelationID string `json:"correlation_id"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/create/{user_id}", h.createOrder)
		r.Post("/batch_init/{n}/{n_items}/{n_users}/{item_price}", h.batchInit)
		r.Get("/find/{order_id}", h.findOrder)
		r.Post("/addItem/{order_id}/{item_id}/{quantity}", h.addItem)
		r.Post("/checkout/{order_id}", h.checkout)
		r.Get("/status/{correlation_id}", h.status)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, orders.ErrCheckoutNotAllowed),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrAlreadyExists):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code >= 500 {
		h.Log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id, err := h.Service.Create(ctx, userID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateOrderResp{OrderID: id})
}

func (h *OrdersHandler) batchInit(w http.ResponseWriter, r *http.Request) {
	var nums [4]int64
	for i, name := range []string{"n", "n_items", "n_users", "item_price"} {
		v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
			return
		}
		nums[i] = v
	}
	if err := h.Service.BatchInit(r.Context(), int(nums[0]), int(nums[1]), int(nums[2]), nums[3]); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Batch init for orders successful"})
}

func (h *OrdersHandler) findOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Find(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if o.Items == nil {
		o.Items = []orders.Item{}
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) addItem(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.ParseInt(chi.URLParam(r, "quantity"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	corr, err := h.Service.RequestAddItem(ctx, chi.URLParam(r, "order_id"), chi.URLParam(r, "item_id"), qty)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResp{CorrelationID: corr})
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	corr, err := h.Service.RequestCheckout(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResp{CorrelationID: corr})
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	corr := chi.URLParam(r, "correlation_id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	st, err := h.Status.Lookup(ctx, corr)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.StatusRecord{CorrelationID: corr, Status: st})
}
