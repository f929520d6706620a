package orders

import (
	"math"
	"testing"

	"github.com/pawzr/marketplace/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() map[string]catalog.Product {
	return map[string]catalog.Product{
		"p1": {ID: "p1", SupplierID: "s-1", Name: "Kibble", PriceCents: 1000, Inventory: 5},
		"p2": {ID: "p2", SupplierID: "s-2", Name: "Leash", PriceCents: 5000, Inventory: 3},
		"p3": {ID: "p3", SupplierID: "s-1", Name: "Chew toy", PriceCents: 250, Inventory: 1},
	}
}

func TestSplitOneGroupPerSupplier(t *testing.T) {
	items := []LineItem{{"p3", 1}, {"p2", 1}, {"p1", 2}}
	groups, err := SplitBySupplier(items, testCatalog())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "s-1", groups[0].SupplierID)
	require.Len(t, groups[0].Lines, 2)
	assert.Equal(t, "p3", groups[0].Lines[0].ProductID)
	assert.Equal(t, "p1", groups[0].Lines[1].ProductID)
	assert.Equal(t, int64(2250), groups[0].Subtotal())

	assert.Equal(t, "s-2", groups[1].SupplierID)
	assert.Equal(t, int64(5000), groups[1].Subtotal())
}

func TestSplitUsesCatalogPrice(t *testing.T) {
	groups, err := SplitBySupplier([]LineItem{{"p1", 3}}, testCatalog())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), groups[0].Lines[0].PriceCents)
	assert.Equal(t, int64(3000), groups[0].Subtotal())
}

func TestSplitUnknownProduct(t *testing.T) {
	_, err := SplitBySupplier([]LineItem{{"p1", 1}, {"ghost", 1}}, testCatalog())
	var nf *ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ProductID)
	assert.Equal(t, "Product ghost not found", err.Error())
}

func TestSplitInsufficientInventory(t *testing.T) {
	_, err := SplitBySupplier([]LineItem{{"p2", 4}}, testCatalog())
	var ins *InsufficientInventoryError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, "p2", ins.ProductID)
	assert.Equal(t, 4, ins.Requested)
	assert.Equal(t, 3, ins.Available)
}

func TestSplitSumsRepeatedLinesBeforeStockCheck(t *testing.T) {
	_, err := SplitBySupplier([]LineItem{{"p3", 1}, {"p3", 1}}, testCatalog())
	var ins *InsufficientInventoryError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, 2, ins.Requested)
}

func TestCheckoutRequestValidate(t *testing.T) {
	var ve *ValidationError

	err := CheckoutRequest{ShippingAddress: "1 Bark St"}.validate()
	require.ErrorAs(t, err, &ve)

	err = CheckoutRequest{Items: []LineItem{{"p1", 1}}}.validate()
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "shippingAddress")

	err = CheckoutRequest{Items: []LineItem{{"p1", 0}}, ShippingAddress: "x"}.validate()
	require.ErrorAs(t, err, &ve)

	err = CheckoutRequest{Items: []LineItem{{"p1", math.MaxInt64}, {"p1", 2}}, ShippingAddress: "x"}.validate()
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "items[0].quantity")

	assert.NoError(t, CheckoutRequest{Items: []LineItem{{"p1", math.MaxInt32}}, ShippingAddress: "x"}.validate())
	assert.NoError(t, CheckoutRequest{Items: []LineItem{{"p1", 1}}, ShippingAddress: "x"}.validate())
}

func TestSplitBySupplierHugeRepeatedQuantity(t *testing.T) {
	_, err := SplitBySupplier([]LineItem{{"p3", math.MaxInt32}, {"p3", math.MaxInt32}}, testCatalog())
	var ins *InsufficientInventoryError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, 2*math.MaxInt32, ins.Requested)
}

func TestProductIDsSortedDistinct(t *testing.T) {
	ids := productIDs([]LineItem{{"p2", 1}, {"p1", 1}, {"p2", 3}})
	assert.Equal(t, []string{"p1", "p2"}, ids)
}
