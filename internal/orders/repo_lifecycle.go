package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pawzr/marketplace/internal/auth"
	"github.com/pawzr/marketplace/internal/notify"
)

// StatusChange is the result of a successful UpdateStatus.
type StatusChange struct {
	Order Order
	From  Status
}

// UpdateStatus moves order id to status to on behalf of who.
//
// The order's supplier and admins may make any transition the state machine
// allows; the buyer may only cancel a PENDING order. Cancelling before shipment
// puts every item back in stock. The other party is notified in the same transaction.
func (r *Repo) UpdateStatus(ctx context.Context, who auth.Identity, id string, to Status) (StatusChange, error) {
	if !to.Valid() {
		return StatusChange{}, invalid("unknown status %q", to)
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return StatusChange{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusChange{}, ErrOrderNotFound
	}
	if err != nil {
		return StatusChange{}, err
	}
	if !visibleTo(o, who) {
		return StatusChange{}, ErrOrderNotFound
	}

	from := o.Status
	actsAsSeller := who.IsAdmin() || o.SupplierID == who.ID
	if !actsAsSeller && !(from == StatusPending && to == StatusCancelled) {
		return StatusChange{}, ErrForbidden
	}
	if !CanTransition(from, to) {
		return StatusChange{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, o.ID, string(to), now); err != nil {
		return StatusChange{}, err
	}
	o.Status = to
	o.UpdatedAt = now

	one := []Order{o}
	if err := attachItems(ctx, tx, one); err != nil {
		return StatusChange{}, err
	}
	o = one[0]

	if to == StatusCancelled && holdsStock(from) {
		if err := restock(ctx, tx, o.Items); err != nil {
			return StatusChange{}, err
		}
	}

	if err := notify.Insert(ctx, tx, statusNotice(o, actsAsSeller)); err != nil {
		return StatusChange{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return StatusChange{}, err
	}
	return StatusChange{Order: o, From: from}, nil
}

// holdsStock reports whether an order in status s still has its goods in the
// supplier's warehouse.
func holdsStock(s Status) bool {
	return s == StatusPending || s == StatusConfirmed
}

// restock returns the quantities of a cancelled order to the catalog.
func restock(ctx context.Context, tx pgx.Tx, items []OrderItem) error {
	for _, it := range items {
		if _, err := tx.Exec(ctx, `UPDATE products SET inventory = inventory + $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func statusNotice(o Order, bySeller bool) *notify.Notification {
	n := &notify.Notification{
		Type:    notify.TypeOrderStatus,
		Title:   "Order " + strings.ToLower(string(o.Status)),
		Message: fmt.Sprintf("Order %s is now %s", shortID(o.ID), o.Status),
	}
	if bySeller {
		n.UserID = o.BuyerID
		n.Link = "/dashboard/orders/" + o.ID
	} else {
		n.UserID = o.SupplierID
		n.Link = SupplierOrdersLink
	}
	return n
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
