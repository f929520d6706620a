package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawzr/marketplace/internal/postgres"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNotOwner        = errors.New("product belongs to another supplier")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrStockUnderflow  = errors.New("inventory cannot go below zero")
)

type Product struct {
	ID          string    `json:"id"`
	SupplierID  string    `json:"supplierId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"priceCents"`
	Inventory   int       `json:"inventory"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type NewProduct struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	Inventory   int    `json:"inventory"`
}

func (p NewProduct) validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.PriceCents < 0:
		return fmt.Errorf("%w: priceCents must not be negative", ErrInvalidProduct)
	case p.Inventory < 0:
		return fmt.Errorf("%w: inventory must not be negative", ErrInvalidProduct)
	}
	return nil
}

type Repo struct{ DB postgres.Querier }

const productColumns = `id, supplier_id, name, description, price_cents, inventory, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SupplierID, &p.Name, &p.Description, &p.PriceCents, &p.Inventory, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// List returns products ordered by name; supplierID filters when non-empty.
func (r *Repo) List(ctx context.Context, supplierID string) ([]Product, error) {
	q := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if supplierID != "" {
		q += ` WHERE supplier_id=$1`
		args = append(args, supplierID)
	}
	q += ` ORDER BY name, id`

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *Repo) Create(ctx context.Context, supplierID string, in NewProduct) (Product, error) {
	if err := in.validate(); err != nil {
		return Product{}, err
	}
	now := time.Now().UTC()
	p := Product{
		ID:          uuid.NewString(),
		SupplierID:  supplierID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Inventory:   in.Inventory,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.SupplierID, p.Name, p.Description, p.PriceCents, p.Inventory, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// AdjustInventory applies delta in a single guarded statement. supplierID restricts
// the update to the owner; pass "" to skip the ownership check (admin).
func (r *Repo) AdjustInventory(ctx context.Context, id, supplierID string, delta int) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `
		UPDATE products SET inventory = inventory + $2, updated_at = now()
		WHERE id=$1 AND ($3 = '' OR supplier_id=$3) AND inventory + $2 >= 0
		RETURNING `+productColumns, id, delta, supplierID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Product{}, err
	}

	// Zero rows: find out which guard failed.
	cur, err := r.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if supplierID != "" && cur.SupplierID != supplierID {
		return Product{}, ErrNotOwner
	}
	return Product{}, fmt.Errorf("%w: product %s has %d, delta %d", ErrStockUnderflow, id, cur.Inventory, delta)
}
