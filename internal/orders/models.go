package orders

import "time"

type Order struct {
	ID               string      `json:"id"`
	BuyerID          string      `json:"buyerId"`
	SupplierID       string      `json:"supplierId"`
	SubtotalCents    int64       `json:"subtotalCents"`
	PlatformFeeCents int64       `json:"platformFeeCents"`
	TotalCents       int64       `json:"totalCents"`
	ShippingAddress  string      `json:"shippingAddress"`
	ShippingCity     string      `json:"shippingCity,omitempty"`
	ShippingZip      string      `json:"shippingZip,omitempty"`
	Status           Status      `json:"status"`
	Items            []OrderItem `json:"items"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// OrderItem.PriceCents is the catalog price captured at checkout.
type OrderItem struct {
	OrderID    string `json:"orderId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	Items           []LineItem `json:"items"`
	ShippingAddress string     `json:"shippingAddress"`
	ShippingCity    string     `json:"shippingCity,omitempty"`
	ShippingZip     string     `json:"shippingZip,omitempty"`
}

type Earnings struct {
	Orders     int   `json:"orders"`
	GrossCents int64 `json:"grossCents"`
	FeesCents  int64 `json:"feesCents"`
	NetCents   int64 `json:"netCents"`
}
