package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawzr/marketplace/internal/auth"
	"github.com/pawzr/marketplace/internal/catalog"
	"github.com/pawzr/marketplace/internal/notify"
	"github.com/pawzr/marketplace/internal/postgres"
)

const SupplierOrdersLink = "/dashboard/supplier/orders"

type Repo struct {
	DB   postgres.DB
	Fees FeeSchedule
}

// PlaceOrder turns a cart into one PENDING order per supplier. Everything runs in
// one transaction: product rows are locked, stock is decremented with a floor
// guard and each supplier gets a notification. Any failure rolls back the whole
// checkout.
func (r *Repo) PlaceOrder(ctx context.Context, buyer auth.Identity, req CheckoutRequest) ([]Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	products, err := lockProducts(ctx, tx, productIDs(req.Items))
	if err != nil {
		return nil, err
	}
	groups, err := SplitBySupplier(req.Items, products)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]Order, 0, len(groups))
	for _, g := range groups {
		o, err := r.writeOrder(ctx, tx, buyer, req, g, now)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// lockProducts reads the authoritative supplier, price and stock of ids with
// row locks, in id order.
func lockProducts(ctx context.Context, tx pgx.Tx, ids []string) (map[string]catalog.Product, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, supplier_id, name, price_cents, inventory
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]catalog.Product, len(ids))
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.Name, &p.PriceCents, &p.Inventory); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) writeOrder(ctx context.Context, tx pgx.Tx, buyer auth.Identity, req CheckoutRequest, g SupplierGroup, now time.Time) (Order, error) {
	subtotal := g.Subtotal()
	fee := r.Fees.Fee(subtotal)
	o := Order{
		ID:               uuid.NewString(),
		BuyerID:          buyer.ID,
		SupplierID:       g.SupplierID,
		SubtotalCents:    subtotal,
		PlatformFeeCents: fee,
		TotalCents:       r.Fees.Total(subtotal, fee),
		ShippingAddress:  req.ShippingAddress,
		ShippingCity:     req.ShippingCity,
		ShippingZip:      req.ShippingZip,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, supplier_id, subtotal_cents, platform_fee_cents, total_cents,
		                   shipping_address, shipping_city, shipping_zip, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.BuyerID, o.SupplierID, o.SubtotalCents, o.PlatformFeeCents, o.TotalCents,
		o.ShippingAddress, o.ShippingCity, o.ShippingZip, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}

	units := 0
	for i, l := range g.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, quantity, price_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i, l.ProductID, l.Quantity, l.PriceCents); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, OrderItem{OrderID: o.ID, ProductID: l.ProductID, Quantity: l.Quantity, PriceCents: l.PriceCents})
		units += l.Quantity
	}

	for _, l := range g.Lines {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET inventory = inventory - $2, updated_at = now()
			WHERE id=$1 AND inventory >= $2`, l.ProductID, l.Quantity)
		if err != nil {
			return Order{}, err
		}
		if ct.RowsAffected() != 1 {
			return Order{}, &InsufficientInventoryError{ProductID: l.ProductID, Requested: l.Quantity}
		}
	}

	buyerName := buyer.Name
	if buyerName == "" {
		buyerName = "A customer"
	}
	err = notify.Insert(ctx, tx, &notify.Notification{
		UserID:  o.SupplierID,
		Type:    notify.TypeNewOrder,
		Title:   "New order received",
		Message: fmt.Sprintf("%s ordered %d item(s) for $%s", buyerName, units, FormatCents(o.TotalCents)),
		Link:    SupplierOrdersLink,
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

const orderColumns = `id, buyer_id, supplier_id, subtotal_cents, platform_fee_cents, total_cents,
	shipping_address, shipping_city, shipping_zip, status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.BuyerID, &o.SupplierID, &o.SubtotalCents, &o.PlatformFeeCents, &o.TotalCents,
		&o.ShippingAddress, &o.ShippingCity, &o.ShippingZip, &status, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func visibleTo(o Order, who auth.Identity) bool {
	return who.IsAdmin() || o.BuyerID == who.ID || o.SupplierID == who.ID
}

// ListOrders returns who's orders, newest first: the ones they supply when they
// are a supplier, every order for an admin, otherwise the ones they bought.
func (r *Repo) ListOrders(ctx context.Context, who auth.Identity) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	switch {
	case who.IsAdmin():
	case who.IsSupplier():
		q += ` WHERE supplier_id=$1`
		args = append(args, who.ID)
	default:
		q += ` WHERE buyer_id=$1`
		args = append(args, who.ID)
	}
	q += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachItems(ctx, r.DB, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetOrder(ctx context.Context, who auth.Identity, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if !visibleTo(o, who) {
		return Order{}, ErrOrderNotFound
	}
	one := []Order{o}
	if err := attachItems(ctx, r.DB, one); err != nil {
		return Order{}, err
	}
	return one[0], nil
}

// attachItems loads items for all of orders with one query.
func attachItems(ctx context.Context, q postgres.Querier, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = i
		orders[i].Items = []OrderItem{}
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, quantity, price_cents
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.PriceCents); err != nil {
			return err
		}
		if i, ok := byID[it.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return rows.Err()
}

// StatusView is the cacheable slice of an order needed to answer status reads.
type StatusView struct {
	OrderID    string    `json:"orderId"`
	BuyerID    string    `json:"buyerId"`
	SupplierID string    `json:"supplierId"`
	Status     Status    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (v StatusView) VisibleTo(who auth.Identity) bool {
	return visibleTo(Order{BuyerID: v.BuyerID, SupplierID: v.SupplierID}, who)
}

func (r *Repo) GetStatus(ctx context.Context, id string) (StatusView, error) {
	var v StatusView
	var status string
	err := r.DB.QueryRow(ctx, `SELECT id, buyer_id, supplier_id, status, updated_at FROM orders WHERE id=$1`, id).
		Scan(&v.OrderID, &v.BuyerID, &v.SupplierID, &status, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusView{}, ErrOrderNotFound
	}
	v.Status = Status(status)
	return v, err
}

// SupplierEarnings sums every non-cancelled order of supplierID.
func (r *Repo) SupplierEarnings(ctx context.Context, supplierID string) (Earnings, error) {
	var e Earnings
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0), COALESCE(SUM(platform_fee_cents), 0)
		FROM orders
		WHERE supplier_id=$1 AND status <> $2`, supplierID, string(StatusCancelled)).
		Scan(&e.Orders, &e.GrossCents, &e.FeesCents)
	if err != nil {
		return Earnings{}, err
	}
	e.NetCents = SupplierNet(e.GrossCents, e.FeesCents)
	return e, nil
}
