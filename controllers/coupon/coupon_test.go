package couponControllers

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	cartControllers "github.com/cartizen/storefront-api/controllers/cart"
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

func seedCoupon(t *testing.T, db *gorm.DB, c models.Coupon) *models.Coupon {
	t.Helper()
	if c.StartDate.IsZero() {
		c.StartDate = time.Now().Add(-time.Hour)
	}
	if c.EndDate.IsZero() {
		c.EndDate = time.Now().Add(time.Hour)
	}
	c.IsActive = true
	require.NoError(t, db.Create(&c).Error)
	return &c
}

func cartWith(t *testing.T, db *gorm.DB, userID string, price float64, quantity int) *models.Cart {
	t.Helper()
	product := models.Product{Name: "Item-" + userID, Price: price, Stock: 1000}
	require.NoError(t, db.Create(&product).Error)

	cart, err := cartControllers.ResolveCart(db, cartControllers.Owner{UserID: userID})
	require.NoError(t, err)
	require.NoError(t, cartControllers.AddItem(db, cart, product.ID, quantity))
	return cart
}

func usageCount(db *gorm.DB, couponID uint) int64 {
	var count int64
	db.Model(&models.CouponUsage{}).Where("coupon_id = ?", couponID).Count(&count)
	return count
}

func TestApplyCouponComputesDiscount(t *testing.T) {
	db := newTestDB(t)
	coupon := seedCoupon(t, db, models.Coupon{
		Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10,
	})
	cart := cartWith(t, db, "user-1", 49.99, 2)

	applied, err := ApplyCoupon(db, cart, "save10") // case-insensitive
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", applied.Code)

	assert.Equal(t, 99.98, cart.Subtotal)
	assert.Equal(t, 9.99, cart.DiscountAmount)
	assert.Equal(t, 89.99, cart.Total)
	require.NotNil(t, cart.CouponCode)
	assert.Equal(t, "SAVE10", *cart.CouponCode)

	assert.EqualValues(t, 1, usageCount(db, coupon.ID))
	require.NoError(t, db.First(coupon, coupon.ID).Error)
	assert.Equal(t, 1, coupon.UsedCount)
}

func TestApplyCouponIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	coupon := seedCoupon(t, db, models.Coupon{
		Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10,
	})
	cart := cartWith(t, db, "user-1", 49.99, 2)

	_, err := ApplyCoupon(db, cart, "SAVE10")
	require.NoError(t, err)
	_, err = ApplyCoupon(db, cart, "SAVE10")
	require.NoError(t, err)

	// One ledger row, one redemption, totals unchanged.
	assert.EqualValues(t, 1, usageCount(db, coupon.ID))
	require.NoError(t, db.First(coupon, coupon.ID).Error)
	assert.Equal(t, 1, coupon.UsedCount)
	assert.Equal(t, 89.99, cart.Total)
}

func TestApplyCouponRetryAfterLastSlotTaken(t *testing.T) {
	db := newTestDB(t)
	one := 1
	coupon := seedCoupon(t, db, models.Coupon{
		Code: "ONCE", DiscountType: models.DiscountFixed, DiscountValue: 5, MaxUses: &one,
	})
	cart := cartWith(t, db, "user-1", 20.00, 1)

	_, err := ApplyCoupon(db, cart, "ONCE")
	require.NoError(t, err)

	// The first application consumed the only slot. A retry from the same
	// cart holds that slot already, so it must succeed, not report the
	// coupon as exhausted.
	applied, err := ApplyCoupon(db, cart, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, "ONCE", applied.Code)

	assert.EqualValues(t, 1, usageCount(db, coupon.ID))
	require.NoError(t, db.First(coupon, coupon.ID).Error)
	assert.Equal(t, 1, coupon.UsedCount)
	assert.Equal(t, 5.00, cart.DiscountAmount)
	assert.Equal(t, 15.00, cart.Total)
}

func TestRedeemDuplicateInsertTreatedAsApplied(t *testing.T) {
	db := newTestDB(t)
	coupon := seedCoupon(t, db, models.Coupon{
		Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10,
	})
	cart := cartWith(t, db, "user-1", 49.99, 2)

	// The competing request committed its usage row and increment between
	// this request's lookup and its insert.
	require.NoError(t, db.Create(&models.CouponUsage{
		CouponID: coupon.ID, CartID: cart.CartID, UserID: cart.UserID,
	}).Error)
	require.NoError(t, db.Model(coupon).
		Update("used_count", gorm.Expr("used_count + 1")).Error)

	// The uniqueness violation resolves to the already-applied outcome, not
	// an error, and leaves the winner's state untouched.
	err := redeem(db, coupon, cart)
	assert.ErrorIs(t, err, errAlreadyApplied)

	assert.EqualValues(t, 1, usageCount(db, coupon.ID))
	require.NoError(t, db.First(coupon, coupon.ID).Error)
	assert.Equal(t, 1, coupon.UsedCount)

	// End to end the same state comes back as a success.
	applied, err := ApplyCoupon(db, cart, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", applied.Code)
	assert.Equal(t, 89.99, cart.Total)
}

func TestApplyCouponHonorsMaxUses(t *testing.T) {
	db := newTestDB(t)
	one := 1
	coupon := seedCoupon(t, db, models.Coupon{
		Code: "ONCE", DiscountType: models.DiscountFixed, DiscountValue: 5, MaxUses: &one,
	})

	first := cartWith(t, db, "user-1", 20.00, 1)
	second := cartWith(t, db, "user-2", 20.00, 1)

	_, err := ApplyCoupon(db, first, "ONCE")
	require.NoError(t, err)

	_, err = ApplyCoupon(db, second, "ONCE")
	assert.ErrorIs(t, err, ErrCouponExhausted)

	// The failed application left nothing behind.
	assert.EqualValues(t, 1, usageCount(db, coupon.ID))
	require.NoError(t, db.First(coupon, coupon.ID).Error)
	assert.Equal(t, 1, coupon.UsedCount)

	var stored models.Cart
	require.NoError(t, db.First(&stored, "cart_id = ?", second.CartID).Error)
	assert.Nil(t, stored.CouponCode)
	assert.Equal(t, 0.0, stored.DiscountAmount)
}

func TestApplyCouponMinimumNotMet(t *testing.T) {
	db := newTestDB(t)
	coupon := seedCoupon(t, db, models.Coupon{
		Code: "BIG", DiscountType: models.DiscountPercentage, DiscountValue: 20,
		MinimumAmount: 200,
	})
	cart := cartWith(t, db, "user-1", 49.99, 2)

	_, err := ApplyCoupon(db, cart, "BIG")
	assert.ErrorIs(t, err, ErrMinimumNotMet)

	assert.Equal(t, 99.98, cart.Subtotal)
	assert.Equal(t, 0.0, cart.DiscountAmount)
	assert.Nil(t, cart.CouponCode)
	assert.Zero(t, usageCount(db, coupon.ID))
}

func TestApplyCouponWindowAndActiveChecks(t *testing.T) {
	db := newTestDB(t)
	cart := cartWith(t, db, "user-1", 50.00, 1)

	future := seedCoupon(t, db, models.Coupon{
		Code: "SOON", DiscountType: models.DiscountFixed, DiscountValue: 5,
		StartDate: time.Now().Add(time.Hour), EndDate: time.Now().Add(2 * time.Hour),
	})
	_, err := ApplyCoupon(db, cart, future.Code)
	assert.ErrorIs(t, err, ErrCouponNotStarted)

	past := seedCoupon(t, db, models.Coupon{
		Code: "LATE", DiscountType: models.DiscountFixed, DiscountValue: 5,
		StartDate: time.Now().Add(-2 * time.Hour), EndDate: time.Now().Add(-time.Hour),
	})
	_, err = ApplyCoupon(db, cart, past.Code)
	assert.ErrorIs(t, err, ErrCouponExpired)

	disabled := seedCoupon(t, db, models.Coupon{
		Code: "OFF", DiscountType: models.DiscountFixed, DiscountValue: 5,
	})
	require.NoError(t, db.Model(disabled).Update("is_active", false).Error)
	_, err = ApplyCoupon(db, cart, disabled.Code)
	assert.ErrorIs(t, err, ErrCouponInactive)

	_, err = ApplyCoupon(db, cart, "NOSUCH")
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestApplyCouponCategoryAllowlist(t *testing.T) {
	db := newTestDB(t)

	books := models.Category{Name: "Books"}
	toys := models.Category{Name: "Toys"}
	require.NoError(t, db.Create(&books).Error)
	require.NoError(t, db.Create(&toys).Error)

	novel := models.Product{Name: "Novel", Price: 15.00, Stock: 10, Categories: []models.Category{books}}
	require.NoError(t, db.Create(&novel).Error)

	coupon := seedCoupon(t, db, models.Coupon{
		Code: "TOYS5", DiscountType: models.DiscountFixed, DiscountValue: 5,
		Categories: []models.Category{toys},
	})

	cart, err := cartControllers.ResolveCart(db, cartControllers.Owner{UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, cartControllers.AddItem(db, cart, novel.ID, 1))

	_, err = ApplyCoupon(db, cart, coupon.Code)
	assert.ErrorIs(t, err, ErrCategoryMismatch)

	booksCoupon := seedCoupon(t, db, models.Coupon{
		Code: "BOOKS5", DiscountType: models.DiscountFixed, DiscountValue: 5,
		Categories: []models.Category{books},
	})
	_, err = ApplyCoupon(db, cart, booksCoupon.Code)
	require.NoError(t, err)
	assert.Equal(t, 5.00, cart.DiscountAmount)
}

func TestApplyCouponReplacesExisting(t *testing.T) {
	db := newTestDB(t)
	first := seedCoupon(t, db, models.Coupon{
		Code: "FIRST", DiscountType: models.DiscountFixed, DiscountValue: 5,
	})
	second := seedCoupon(t, db, models.Coupon{
		Code: "SECOND", DiscountType: models.DiscountFixed, DiscountValue: 8,
	})
	cart := cartWith(t, db, "user-1", 50.00, 1)

	_, err := ApplyCoupon(db, cart, "FIRST")
	require.NoError(t, err)
	_, err = ApplyCoupon(db, cart, "SECOND")
	require.NoError(t, err)

	require.NotNil(t, cart.CouponCode)
	assert.Equal(t, "SECOND", *cart.CouponCode)
	assert.Equal(t, 8.00, cart.DiscountAmount)

	// The first redemption was released when it was replaced.
	assert.Zero(t, usageCount(db, first.ID))
	require.NoError(t, db.First(first, first.ID).Error)
	assert.Equal(t, 0, first.UsedCount)
	assert.EqualValues(t, 1, usageCount(db, second.ID))
}

func TestRemoveCouponReleasesRedemption(t *testing.T) {
	db := newTestDB(t)
	coupon := seedCoupon(t, db, models.Coupon{
		Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10,
	})
	cart := cartWith(t, db, "user-1", 49.99, 2)

	_, err := ApplyCoupon(db, cart, "SAVE10")
	require.NoError(t, err)

	require.NoError(t, RemoveCoupon(db, cart))

	assert.Nil(t, cart.CouponCode)
	assert.Equal(t, 0.0, cart.DiscountAmount)
	assert.Equal(t, 99.98, cart.Total)
	assert.Zero(t, usageCount(db, coupon.ID))
	require.NoError(t, db.First(coupon, coupon.ID).Error)
	assert.Equal(t, 0, coupon.UsedCount)

	// The slot is free again.
	_, err = ApplyCoupon(db, cart, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 89.99, cart.Total)
}

func TestRemoveCouponWhenNoneApplied(t *testing.T) {
	db := newTestDB(t)
	cart := cartWith(t, db, "user-1", 10.00, 1)

	require.NoError(t, RemoveCoupon(db, cart))
	assert.Nil(t, cart.CouponCode)
}

func TestRemoveCouponWithStaleCode(t *testing.T) {
	db := newTestDB(t)
	cart := cartWith(t, db, "user-1", 10.00, 1)

	// The coupon was deleted after it was applied; the cart still points at it.
	stale := "GONE"
	require.NoError(t, db.Model(&models.Cart{}).Where("cart_id = ?", cart.CartID).
		Update("coupon_code", stale).Error)
	cart.CouponCode = &stale

	require.NoError(t, RemoveCoupon(db, cart))

	var stored models.Cart
	require.NoError(t, db.First(&stored, "cart_id = ?", cart.CartID).Error)
	assert.Nil(t, stored.CouponCode)
}
