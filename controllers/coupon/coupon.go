package couponControllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	cartControllers "github.com/cartizen/storefront-api/controllers/cart"
	"github.com/cartizen/storefront-api/models"
)

var (
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrCouponInactive   = errors.New("coupon is not active")
	ErrCouponNotStarted = errors.New("coupon is not valid yet")
	ErrCouponExpired    = errors.New("coupon has expired")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
	ErrMinimumNotMet    = errors.New("cart subtotal below coupon minimum")
	ErrCategoryMismatch = errors.New("coupon does not apply to any item in the cart")
)

// errAlreadyApplied aborts the apply transaction when the usage row already
// exists; the caller converts it into an idempotent success.
var errAlreadyApplied = errors.New("coupon already applied")

type ApplyCouponInput struct {
	Code string `json:"code" binding:"required"`
}

func findCoupon(db *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := db.Preload("Categories").
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&coupon).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// Validate runs the read-only qualification checks: active, inside the
// validity window, redemptions remaining, subtotal floor met, and (when the
// coupon carries a category allowlist) at least one cart item in an allowed
// category. No state is touched.
func Validate(db *gorm.DB, coupon *models.Coupon, cart *models.Cart) error {
	if !coupon.IsActive {
		return ErrCouponInactive
	}
	now := time.Now()
	if now.Before(coupon.StartDate) {
		return ErrCouponNotStarted
	}
	if now.After(coupon.EndDate) {
		return ErrCouponExpired
	}
	if coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses {
		return ErrCouponExhausted
	}

	subtotal, _, _ := cartControllers.ComputeTotals(cart.Items, nil)
	if subtotal < coupon.MinimumAmount {
		return ErrMinimumNotMet
	}

	if len(coupon.Categories) > 0 {
		ok, err := cartHasCategory(db, cart, coupon.Categories)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCategoryMismatch
		}
	}
	return nil
}

func cartHasCategory(db *gorm.DB, cart *models.Cart, allowed []models.Category) (bool, error) {
	if len(cart.Items) == 0 {
		return false, nil
	}

	productIDs := make([]uint, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	categoryIDs := make([]uint, 0, len(allowed))
	for _, cat := range allowed {
		categoryIDs = append(categoryIDs, cat.ID)
	}

	var count int64
	err := db.Table("product_categories").
		Where("product_id IN ? AND category_id IN ?", productIDs, categoryIDs).
		Count(&count).Error
	return count > 0, err
}

// ApplyCoupon transitions (coupon, cart) from UNAPPLIED to APPLIED. The
// CouponUsage row is the linearization point: if it already exists the call
// is a duplicate and returns the cart unchanged. The used_count increment is
// a conditional atomic UPDATE so concurrent applications from different
// carts cannot overshoot MaxUses. A uniqueness-constraint violation on the
// usage insert means a racing request won; that is converted into an
// idempotent success rather than an error.
func ApplyCoupon(db *gorm.DB, cart *models.Cart, code string) (*models.Coupon, error) {
	coupon, err := findCoupon(db, code)
	if err != nil {
		return nil, err
	}

	// A retried apply of a coupon this cart already holds succeeds before any
	// further checks: its redemption slot is the one counted in used_count,
	// so an exhausted (or meanwhile expired) coupon must not fail it.
	var held models.CouponUsage
	heldErr := db.Where("coupon_id = ? AND cart_id = ?", coupon.ID, cart.CartID).
		First(&held).Error
	if heldErr == nil {
		cart.CouponCode = &coupon.Code
		if err := cartControllers.RecomputeTotals(db, cart); err != nil {
			return nil, err
		}
		return coupon, nil
	}
	if heldErr != gorm.ErrRecordNotFound {
		return nil, heldErr
	}

	if err := Validate(db, coupon, cart); err != nil {
		return nil, err
	}

	// At most one coupon per cart: applying a different code replaces the
	// current one.
	if cart.CouponCode != nil && !strings.EqualFold(*cart.CouponCode, coupon.Code) {
		if err := RemoveCoupon(db, cart); err != nil {
			return nil, err
		}
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var usage models.CouponUsage
		lookupErr := tx.Where("coupon_id = ? AND cart_id = ?", coupon.ID, cart.CartID).
			First(&usage).Error
		if lookupErr == nil {
			return errAlreadyApplied
		}
		if lookupErr != gorm.ErrRecordNotFound {
			return lookupErr
		}

		return redeem(tx, coupon, cart)
	})

	if err == errAlreadyApplied {
		err = nil
	}
	if err != nil {
		return nil, err
	}

	cart.CouponCode = &coupon.Code
	if err := cartControllers.RecomputeTotals(db, cart); err != nil {
		return nil, err
	}
	return coupon, nil
}

// redeem inserts the usage ledger row, takes a redemption slot and writes the
// cart's coupon_code. A uniqueness violation on the insert means both requests
// passed the lookup and the other one's insert committed first; its intent is
// already satisfied, so that surfaces as errAlreadyApplied. The used_count
// increment is atomic and capped: the guard lives in the UPDATE itself, so
// the last redemption slot goes to exactly one transaction.
func redeem(tx *gorm.DB, coupon *models.Coupon, cart *models.Cart) error {
	usage := models.CouponUsage{
		CouponID: coupon.ID,
		CartID:   cart.CartID,
		UserID:   cart.UserID,
	}
	if err := tx.Create(&usage).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return errAlreadyApplied
		}
		return err
	}

	result := tx.Model(&models.Coupon{}).
		Where("id = ? AND (max_uses IS NULL OR used_count < max_uses)", coupon.ID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCouponExhausted
	}

	return tx.Model(&models.Cart{}).Where("cart_id = ?", cart.CartID).
		Update("coupon_code", coupon.Code).Error
}

// RemoveCoupon transitions APPLIED back to UNAPPLIED. Removing when nothing
// is applied is an idempotent no-op. A cart pointing at a code no longer in
// the coupons table still gets its coupon_code cleared.
func RemoveCoupon(db *gorm.DB, cart *models.Cart) error {
	if cart.CouponCode == nil {
		return nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var coupon models.Coupon
		lookupErr := tx.Where("UPPER(code) = ?", strings.ToUpper(*cart.CouponCode)).
			First(&coupon).Error
		if lookupErr == nil {
			result := tx.Where("coupon_id = ? AND cart_id = ?", coupon.ID, cart.CartID).
				Delete(&models.CouponUsage{})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				if err := tx.Model(&models.Coupon{}).
					Where("id = ? AND used_count > 0", coupon.ID).
					Update("used_count", gorm.Expr("used_count - 1")).Error; err != nil {
					return err
				}
			}
		} else if lookupErr != gorm.ErrRecordNotFound {
			return lookupErr
		}

		return tx.Model(&models.Cart{}).Where("cart_id = ?", cart.CartID).
			Update("coupon_code", nil).Error
	})
	if err != nil {
		return err
	}

	cart.CouponCode = nil
	return cartControllers.RecomputeTotals(db, cart)
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

func respondCouponError(c *gin.Context, err error) {
	switch err {
	case ErrCouponNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case ErrCouponInactive, ErrCouponNotStarted, ErrCouponExpired,
		ErrCouponExhausted, ErrMinimumNotMet, ErrCategoryMismatch:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update coupon"})
	}
}

// ---- Handlers ----

// POST /cart/coupon
func ApplyCouponHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := cartControllers.OwnerFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var input ApplyCouponInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		cart, err := cartControllers.ResolveCart(db, owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
			return
		}

		coupon, err := ApplyCoupon(db, cart, input.Code)
		if err != nil {
			respondCouponError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"cart": cart,
			"coupon": gin.H{
				"code":           coupon.Code,
				"discount_type":  coupon.DiscountType,
				"discount_value": coupon.DiscountValue,
			},
		})
	}
}

// DELETE /cart/coupon
func RemoveCouponHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := cartControllers.OwnerFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		cart, err := cartControllers.ResolveCart(db, owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
			return
		}

		if err := RemoveCoupon(db, cart); err != nil {
			respondCouponError(c, err)
			return
		}
		c.JSON(http.StatusOK, cart)
	}
}
