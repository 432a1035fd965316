package cartControllers

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Category{},
		&models.Cart{},
		&models.CartItem{},
		&models.Coupon{},
		&models.CouponUsage{},
	))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price float64, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: price, Stock: stock}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func userCart(t *testing.T, db *gorm.DB, userID string) *models.Cart {
	t.Helper()
	cart, err := ResolveCart(db, Owner{UserID: userID})
	require.NoError(t, err)
	return cart
}

func TestResolveCartCreatesLazily(t *testing.T) {
	db := newTestDB(t)

	cart, err := ResolveCart(db, Owner{UserID: "user-1"})
	require.NoError(t, err)
	require.NotNil(t, cart.UserID)
	assert.Equal(t, "user-1", *cart.UserID)
	assert.Nil(t, cart.AnonymousID)
	assert.Empty(t, cart.Items)

	again, err := ResolveCart(db, Owner{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, cart.CartID, again.CartID)

	guest, err := ResolveCart(db, Owner{AnonymousID: "guest_abc"})
	require.NoError(t, err)
	require.NotNil(t, guest.AnonymousID)
	assert.Equal(t, "guest_abc", *guest.AnonymousID)
	assert.Nil(t, guest.UserID)
	assert.NotEqual(t, cart.CartID, guest.CartID)
}

func TestAddItemSnapshotsPriceOnFirstAdd(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, "Mug", 12.50, 100)
	cart := userCart(t, db, "user-1")

	require.NoError(t, AddItem(db, cart, product.ID, 1))

	// Catalog price changes after the item is in the cart.
	require.NoError(t, db.Model(&product).Update("price", 99.99).Error)

	require.NoError(t, AddItem(db, cart, product.ID, 2))

	var item models.CartItem
	require.NoError(t, db.Where("cart_id = ? AND product_id = ?", cart.CartID, product.ID).First(&item).Error)
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, 12.50, item.Price)

	assert.Equal(t, 37.50, cart.Subtotal)
	assert.Equal(t, 37.50, cart.Total)
	assert.Equal(t, 0.0, cart.DiscountAmount)
}

func TestAddItemRejectsInsufficientStock(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, "Lamp", 20.00, 3)
	cart := userCart(t, db, "user-1")

	require.NoError(t, AddItem(db, cart, product.ID, 2))

	// Cart already holds 2, stock is 3: adding 2 more would exceed it.
	err := AddItem(db, cart, product.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var item models.CartItem
	require.NoError(t, db.Where("cart_id = ? AND product_id = ?", cart.CartID, product.ID).First(&item).Error)
	assert.Equal(t, 2, item.Quantity)
}

func TestAddItemUnknownProduct(t *testing.T) {
	db := newTestDB(t)
	cart := userCart(t, db, "user-1")

	err := AddItem(db, cart, 9999, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestSetQuantityUpdatesTotals(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, "Pen", 3.25, 50)
	cart := userCart(t, db, "user-1")
	require.NoError(t, AddItem(db, cart, product.ID, 1))

	require.NoError(t, SetQuantity(db, cart, product.ID, 4))
	assert.Equal(t, 13.00, cart.Subtotal)

	err := SetQuantity(db, cart, product.ID, 51)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestSetQuantityZeroRemovesItem(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, "Pen", 3.25, 50)
	cart := userCart(t, db, "user-1")
	require.NoError(t, AddItem(db, cart, product.ID, 2))

	require.NoError(t, SetQuantity(db, cart, product.ID, 0))

	var count int64
	db.Model(&models.CartItem{}).Where("cart_id = ?", cart.CartID).Count(&count)
	assert.Zero(t, count)
	assert.Equal(t, 0.0, cart.Subtotal)
	assert.Equal(t, 0.0, cart.Total)
}

func TestSetQuantityMissingItem(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, "Pen", 3.25, 50)
	cart := userCart(t, db, "user-1")

	err := SetQuantity(db, cart, product.ID, 2)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItemNotInCart(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, "Pen", 3.25, 50)
	cart := userCart(t, db, "user-1")

	err := RemoveItem(db, cart, product.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestPrepareCheckoutRequiresItems(t *testing.T) {
	db := newTestDB(t)
	cart := userCart(t, db, "user-1")

	_, err := PrepareCheckout(db, cart)
	assert.ErrorIs(t, err, ErrEmptyCart)

	product := seedProduct(t, db, "Desk", 150.00, 5)
	require.NoError(t, AddItem(db, cart, product.ID, 1))

	summary, err := PrepareCheckout(db, cart)
	require.NoError(t, err)
	assert.Equal(t, cart.CartID, summary.CartID)
	assert.Equal(t, 150.00, summary.Subtotal)
	assert.Equal(t, 150.00, summary.Total)
}
