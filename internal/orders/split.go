package orders

import (
	"math"
	"sort"
	"strings"

	"github.com/pawzr/marketplace/internal/catalog"
)

// PricedLine is a cart line annotated with the catalog price at checkout time.
type PricedLine struct {
	ProductID  string
	Name       string
	Quantity   int
	PriceCents int64
}

type SupplierGroup struct {
	SupplierID string
	Lines      []PricedLine
}

func (g SupplierGroup) Subtotal() int64 {
	var sum int64
	for _, l := range g.Lines {
		sum += l.PriceCents * int64(l.Quantity)
	}
	return sum
}

func (req CheckoutRequest) validate() error {
	if len(req.Items) == 0 {
		return invalid("items are required")
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return invalid("shippingAddress is required")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return invalid("items[%d].productId is required", i)
		}
		if it.Quantity <= 0 {
			return invalid("items[%d].quantity must be positive", i)
		}
		if it.Quantity > math.MaxInt32 {
			return invalid("items[%d].quantity is too large", i)
		}
	}
	return nil
}

// productIDs returns the distinct ids of items, sorted so row locks are
// always taken in the same order.
func productIDs(items []LineItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Strings(ids)
	return ids
}

// SplitBySupplier groups items by the supplier owning each product. Groups come
// out in the order their supplier first appears in the cart; lines keep their
// submitted order. Every product is resolved and stock-checked before any group
// is returned, so one bad line fails the whole cart.
func SplitBySupplier(items []LineItem, products map[string]catalog.Product) ([]SupplierGroup, error) {
	wanted := make(map[string]int, len(items))
	for _, it := range items {
		if _, ok := products[it.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		wanted[it.ProductID] += it.Quantity
	}
	for _, it := range items {
		p := products[it.ProductID]
		if p.Inventory < wanted[p.ID] {
			return nil, &InsufficientInventoryError{ProductID: p.ID, Requested: wanted[p.ID], Available: p.Inventory}
		}
	}

	var groups []SupplierGroup
	idx := map[string]int{}
	for _, it := range items {
		p := products[it.ProductID]
		i, ok := idx[p.SupplierID]
		if !ok {
			i = len(groups)
			idx[p.SupplierID] = i
			groups = append(groups, SupplierGroup{SupplierID: p.SupplierID})
		}
		groups[i].Lines = append(groups[i].Lines, PricedLine{
			ProductID:  p.ID,
			Name:       p.Name,
			Quantity:   it.Quantity,
			PriceCents: p.PriceCents,
		})
	}
	return groups, nil
}
