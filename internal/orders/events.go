package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, traceID, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

type ItemPrice struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

type OrderCreatedPayload struct {
	OrderID          string      `json:"order_id"`
	BuyerID          string      `json:"buyer_id"`
	SupplierID       string      `json:"supplier_id"`
	Items            []ItemPrice `json:"items"`
	SubtotalCents    int64       `json:"subtotal_cents"`
	PlatformFeeCents int64       `json:"platform_fee_cents"`
	TotalCents       int64       `json:"total_cents"`
	ShippingAddress  string      `json:"shipping_address"`
}

type OrderStatusChangedPayload struct {
	OrderID    string `json:"order_id"`
	BuyerID    string `json:"buyer_id"`
	SupplierID string `json:"supplier_id"`
	From       Status `json:"from"`
	To         Status `json:"to"`
	ChangedBy  string `json:"changed_by"`
}

func CreatedPayload(o Order) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, PriceCents: it.PriceCents})
	}
	return OrderCreatedPayload{
		OrderID:          o.ID,
		BuyerID:          o.BuyerID,
		SupplierID:       o.SupplierID,
		Items:            items,
		SubtotalCents:    o.SubtotalCents,
		PlatformFeeCents: o.PlatformFeeCents,
		TotalCents:       o.TotalCents,
		ShippingAddress:  o.ShippingAddress,
	}
}
