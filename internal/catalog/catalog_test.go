package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "supplier_id", "name", "description", "price_cents", "inventory", "created_at", "updated_at"}

func TestListFiltersBySupplier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("FROM products WHERE supplier_id=").
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("p-1", "s-1", "Chew toy", "", int64(499), 12, now, now).
			AddRow("p-2", "s-1", "Leash", "red", int64(1500), 3, now, now))

	ps, err := (&Repo{DB: mock}).List(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, int64(1500), ps[1].PriceCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM products WHERE id=").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err = (&Repo{DB: mock}).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateValidates(t *testing.T) {
	r := &Repo{}
	_, err := r.Create(context.Background(), "s-1", NewProduct{Name: " ", PriceCents: 100})
	assert.ErrorIs(t, err, ErrInvalidProduct)
	_, err = r.Create(context.Background(), "s-1", NewProduct{Name: "Bowl", PriceCents: -1})
	assert.ErrorIs(t, err, ErrInvalidProduct)
	_, err = r.Create(context.Background(), "s-1", NewProduct{Name: "Bowl", Inventory: -2})
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestAdjustInventoryUnderflow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("UPDATE products SET inventory = inventory").
		WithArgs("p-1", -5, "s-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM products WHERE id=").
		WithArgs("p-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("p-1", "s-1", "Bowl", "", int64(300), 2, now, now))

	_, err = (&Repo{DB: mock}).AdjustInventory(context.Background(), "p-1", "s-1", -5)
	assert.ErrorIs(t, err, ErrStockUnderflow)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustInventoryNotOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("UPDATE products SET inventory = inventory").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM products WHERE id=").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("p-1", "s-2", "Bowl", "", int64(300), 2, now, now))

	_, err = (&Repo{DB: mock}).AdjustInventory(context.Background(), "p-1", "s-1", 10)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestAdjustInventoryRestock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("UPDATE products SET inventory = inventory").
		WithArgs("p-1", 10, "").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("p-1", "s-2", "Bowl", "", int64(300), 12, now, now))

	p, err := (&Repo{DB: mock}).AdjustInventory(context.Background(), "p-1", "", 10)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Inventory)
}
