package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pawzr/marketplace/internal/auth"
	kafkax "github.com/pawzr/marketplace/internal/kafka"
	"github.com/pawzr/marketplace/internal/orders"
	"github.com/pawzr/marketplace/internal/redisx"
)

type OrderStore interface {
	PlaceOrder(ctx context.Context, buyer auth.Identity, req orders.CheckoutRequest) ([]orders.Order, error)
	ListOrders(ctx context.Context, who auth.Identity) ([]orders.Order, error)
	GetOrder(ctx context.Context, who auth.Identity, id string) (orders.Order, error)
	GetStatus(ctx context.Context, id string) (orders.StatusView, error)
	UpdateStatus(ctx context.Context, who auth.Identity, id string, to orders.Status) (orders.StatusChange, error)
	SupplierEarnings(ctx context.Context, supplierID string) (orders.Earnings, error)
}

type IdempotencyStore interface {
	Begin(ctx context.Context, buyerID, key string) ([]byte, error)
	Complete(ctx context.Context, buyerID, key string, body []byte) error
	Release(ctx context.Context, buyerID, key string) error
}

type StatusCache interface {
	Get(ctx context.Context, orderID string, out any) (bool, error)
	Put(ctx context.Context, orderID string, v any) error
}

type OrdersHandler struct {
	Orders        OrderStore
	Idem          IdempotencyStore
	Cache         StatusCache
	Created       kafkax.Publisher
	StatusChanged kafkax.Publisher
	Service       string
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrders)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/supplier/earnings", h.earnings)
}

func (h *OrdersHandler) createOrders(w http.ResponseWriter, r *http.Request) {
	buyer, ok := identity(w, r)
	if !ok {
		return
	}
	var req orders.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		stored, err := h.Idem.Begin(ctx, buyer.ID, idemKey)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, r, err)
			return
		case err != nil:
			// redis is a fast path; place the order without replay protection
			log.Printf("idempotency begin buyer=%s: %v", buyer.ID, err)
			idemKey = ""
		case stored != nil:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(stored)
			return
		}
	}

	created, err := h.Orders.PlaceOrder(ctx, buyer, req)
	if err != nil {
		if idemKey != "" {
			if rerr := h.Idem.Release(ctx, buyer.ID, idemKey); rerr != nil {
				log.Printf("idempotency release buyer=%s: %v", buyer.ID, rerr)
			}
		}
		writeError(w, r, err)
		return
	}

	body, err := json.Marshal(created)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if idemKey != "" {
		h.completeIdempotency(ctx, buyer.ID, idemKey, body)
	}

	traceID := middleware.GetReqID(r.Context())
	for _, o := range created {
		h.cacheStatus(ctx, orders.StatusView{
			OrderID: o.ID, BuyerID: o.BuyerID, SupplierID: o.SupplierID, Status: o.Status, UpdatedAt: o.UpdatedAt,
		})
		h.publish(h.Created, orders.EventOrderCreated, traceID, o.ID, orders.CreatedPayload(o))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(append(body, '\n'))
}

// completeIdempotency stores body under key, retrying once. If it still fails
// the pending marker is released so a retry is not answered 409 until it expires.
func (h *OrdersHandler) completeIdempotency(ctx context.Context, buyerID, key string, body []byte) {
	err := h.Idem.Complete(ctx, buyerID, key, body)
	if err == nil {
		return
	}
	log.Printf("idempotency store buyer=%s: %v", buyerID, err)
	if err = h.Idem.Complete(ctx, buyerID, key, body); err == nil {
		return
	}
	log.Printf("idempotency store retry buyer=%s: %v", buyerID, err)
	if err := h.Idem.Release(ctx, buyerID, key); err != nil {
		log.Printf("idempotency release buyer=%s: %v", buyerID, err)
	}
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Orders.ListOrders(ctx, who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, who, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var v orders.StatusView
	hit, err := h.Cache.Get(ctx, orderID, &v)
	if err != nil {
		log.Printf("status cache get order=%s: %v", orderID, err)
	}
	if !hit {
		v, err = h.Orders.GetStatus(ctx, orderID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		h.cacheStatus(ctx, v)
	}
	if !v.VisibleTo(who) {
		writeError(w, r, orders.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Status orders.Status `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ch, err := h.Orders.UpdateStatus(ctx, who, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o := ch.Order
	h.cacheStatus(ctx, orders.StatusView{
		OrderID: o.ID, BuyerID: o.BuyerID, SupplierID: o.SupplierID, Status: o.Status, UpdatedAt: o.UpdatedAt,
	})
	h.publish(h.StatusChanged, orders.EventOrderStatusChanged, middleware.GetReqID(r.Context()), o.ID,
		orders.OrderStatusChangedPayload{
			OrderID:    o.ID,
			BuyerID:    o.BuyerID,
			SupplierID: o.SupplierID,
			From:       ch.From,
			To:         o.Status,
			ChangedBy:  who.ID,
		})
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) earnings(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	if !who.IsSupplier() {
		writeError(w, r, forbidden("only suppliers have earnings"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	e, err := h.Orders.SupplierEarnings(ctx, who.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, v orders.StatusView) {
	if err := h.Cache.Put(ctx, v.OrderID, v); err != nil {
		log.Printf("status cache put order=%s: %v", v.OrderID, err)
	}
}

// publish runs after commit; a failure here is logged, the order stands.
func (h *OrdersHandler) publish(p kafkax.Publisher, eventType, traceID, orderID string, payload any) {
	env, err := orders.NewEnvelope(eventType, h.Service, traceID, orderID, payload)
	if err == nil {
		err = kafkax.PublishJSON(p, orders.PartitionKey(orderID), eventType, orders.EventVersion, env)
	}
	if err != nil {
		log.Printf("publish %s order=%s: %v", eventType, orderID, err)
	}
}
