package cartControllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

func guestCart(t *testing.T, db *gorm.DB, anonymousID string) *models.Cart {
	t.Helper()
	cart, err := ResolveCart(db, Owner{AnonymousID: anonymousID})
	require.NoError(t, err)
	return cart
}

// applyCouponRow wires a coupon directly onto a cart: usage ledger row,
// used_count bump, coupon_code column. Mirrors what the apply operation does
// without importing it (that package depends on this one).
func applyCouponRow(t *testing.T, db *gorm.DB, coupon *models.Coupon, cart *models.Cart) {
	t.Helper()
	require.NoError(t, db.Create(&models.CouponUsage{
		CouponID: coupon.ID,
		CartID:   cart.CartID,
		UserID:   cart.UserID,
	}).Error)
	require.NoError(t, db.Model(coupon).
		Update("used_count", gorm.Expr("used_count + 1")).Error)
	require.NoError(t, db.Model(&models.Cart{}).Where("cart_id = ?", cart.CartID).
		Update("coupon_code", coupon.Code).Error)
	cart.CouponCode = &coupon.Code
	require.NoError(t, db.First(coupon, coupon.ID).Error)
}

func TestMergeCartsCombinesQuantities(t *testing.T) {
	db := newTestDB(t)
	apple := seedProduct(t, db, "Apple", 1.00, 100)
	bread := seedProduct(t, db, "Bread", 2.50, 100)

	guest := guestCart(t, db, "guest_1")
	require.NoError(t, AddItem(db, guest, apple.ID, 2))
	require.NoError(t, AddItem(db, guest, bread.ID, 1))

	user := userCart(t, db, "user-1")
	require.NoError(t, AddItem(db, user, apple.ID, 1))

	merged, err := MergeCarts(db, "guest_1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, user.CartID, merged.CartID)

	quantities := map[uint]int{}
	for _, item := range merged.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[uint]int{apple.ID: 3, bread.ID: 1}, quantities)
	assert.Equal(t, 5.50, merged.Subtotal)

	// The anonymous cart and its items are gone.
	var gone models.Cart
	err = db.Where("anonymous_id = ?", "guest_1").First(&gone).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var orphaned int64
	db.Model(&models.CartItem{}).Where("cart_id = ?", guest.CartID).Count(&orphaned)
	assert.Zero(t, orphaned)
}

func TestMergeCartsCreatesUserCartWhenMissing(t *testing.T) {
	db := newTestDB(t)
	apple := seedProduct(t, db, "Apple", 1.00, 100)

	guest := guestCart(t, db, "guest_1")
	require.NoError(t, AddItem(db, guest, apple.ID, 2))

	merged, err := MergeCarts(db, "guest_1", "user-new")
	require.NoError(t, err)
	require.NotNil(t, merged.UserID)
	assert.Equal(t, "user-new", *merged.UserID)
	assert.Len(t, merged.Items, 1)
}

func TestMergeCartsPreservesUserPriceSnapshot(t *testing.T) {
	db := newTestDB(t)
	apple := seedProduct(t, db, "Apple", 1.00, 100)

	user := userCart(t, db, "user-1")
	require.NoError(t, AddItem(db, user, apple.ID, 1))

	// Catalog price moves before the guest adds the same product.
	require.NoError(t, db.Model(&apple).Update("price", 5.00).Error)

	guest := guestCart(t, db, "guest_1")
	require.NoError(t, AddItem(db, guest, apple.ID, 2))

	merged, err := MergeCarts(db, "guest_1", "user-1")
	require.NoError(t, err)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, 3, merged.Items[0].Quantity)
	assert.Equal(t, 1.00, merged.Items[0].Price)
}

func TestMergeCartsNoGuestCart(t *testing.T) {
	db := newTestDB(t)

	_, err := MergeCarts(db, "guest_missing", "user-1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestMergeCartsCarriesGuestCoupon(t *testing.T) {
	db := newTestDB(t)
	apple := seedProduct(t, db, "Apple", 10.00, 100)

	coupon := models.Coupon{
		Code:          "SAVE10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 10,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&coupon).Error)

	guest := guestCart(t, db, "guest_1")
	require.NoError(t, AddItem(db, guest, apple.ID, 2))
	applyCouponRow(t, db, &coupon, guest)

	merged, err := MergeCarts(db, "guest_1", "user-1")
	require.NoError(t, err)

	require.NotNil(t, merged.CouponCode)
	assert.Equal(t, "SAVE10", *merged.CouponCode)
	assert.Equal(t, 2.00, merged.DiscountAmount)

	// The ledger row followed the items; the redemption is counted once.
	var usage models.CouponUsage
	require.NoError(t, db.Where("coupon_id = ?", coupon.ID).First(&usage).Error)
	assert.Equal(t, merged.CartID, usage.CartID)
	require.NoError(t, db.First(&coupon, coupon.ID).Error)
	assert.Equal(t, 1, coupon.UsedCount)
}

func TestMergeCartsUserCouponWins(t *testing.T) {
	db := newTestDB(t)
	apple := seedProduct(t, db, "Apple", 10.00, 100)

	guestCoupon := models.Coupon{
		Code: "GUEST5", DiscountType: models.DiscountFixed, DiscountValue: 5, IsActive: true,
	}
	userCoupon := models.Coupon{
		Code: "USER10", DiscountType: models.DiscountFixed, DiscountValue: 10, IsActive: true,
	}
	require.NoError(t, db.Create(&guestCoupon).Error)
	require.NoError(t, db.Create(&userCoupon).Error)

	guest := guestCart(t, db, "guest_1")
	require.NoError(t, AddItem(db, guest, apple.ID, 1))
	applyCouponRow(t, db, &guestCoupon, guest)

	user := userCart(t, db, "user-1")
	require.NoError(t, AddItem(db, user, apple.ID, 1))
	applyCouponRow(t, db, &userCoupon, user)

	merged, err := MergeCarts(db, "guest_1", "user-1")
	require.NoError(t, err)

	require.NotNil(t, merged.CouponCode)
	assert.Equal(t, "USER10", *merged.CouponCode)

	// The guest redemption was released with its cart.
	var count int64
	db.Model(&models.CouponUsage{}).Where("coupon_id = ?", guestCoupon.ID).Count(&count)
	assert.Zero(t, count)
	require.NoError(t, db.First(&guestCoupon, guestCoupon.ID).Error)
	assert.Equal(t, 0, guestCoupon.UsedCount)
	require.NoError(t, db.First(&userCoupon, userCoupon.ID).Error)
	assert.Equal(t, 1, userCoupon.UsedCount)
}
