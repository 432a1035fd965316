package cartControllers

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

// MergeCarts folds a guest's anonymous cart into the signed-in user's cart,
// called once at login. Quantities are added for products both carts hold;
// other items are copied with their original price snapshot. A coupon on the
// anonymous cart carries over only when the user cart has none
// (first-applied-wins); its usage ledger row moves with it so used_count
// stays balanced. The anonymous cart row is deleted afterwards.
//
// Returns ErrCartNotFound when no anonymous cart exists.
func MergeCarts(db *gorm.DB, anonymousID, userID string) (*models.Cart, error) {
	var userCart *models.Cart

	err := db.Transaction(func(tx *gorm.DB) error {
		var guestCart models.Cart
		if err := tx.Preload("Items").Where("anonymous_id = ?", anonymousID).First(&guestCart).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCartNotFound
			}
			return err
		}

		var target models.Cart
		err := tx.Preload("Items").Where("user_id = ?", userID).First(&target).Error
		if err == gorm.ErrRecordNotFound {
			target = models.Cart{UserID: &userID}
			if err := tx.Create(&target).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		for _, guestItem := range guestCart.Items {
			var userItem models.CartItem
			lookupErr := tx.Where("cart_id = ? AND product_id = ?", target.CartID, guestItem.ProductID).
				First(&userItem).Error

			switch {
			case lookupErr == nil:
				userItem.Quantity += guestItem.Quantity
				userItem.AddedAt = time.Now()
				if err := tx.Save(&userItem).Error; err != nil {
					return err
				}
			case lookupErr == gorm.ErrRecordNotFound:
				newItem := models.CartItem{
					CartID:      target.CartID,
					ProductID:   guestItem.ProductID,
					ProductName: guestItem.ProductName,
					Price:       guestItem.Price, // keep the original snapshot
					Quantity:    guestItem.Quantity,
					AddedAt:     time.Now(),
				}
				if err := tx.Create(&newItem).Error; err != nil {
					return err
				}
			default:
				return lookupErr
			}
		}

		if err := mergeCoupon(tx, &guestCart, &target, userID); err != nil {
			return err
		}

		if err := tx.Where("cart_id = ?", guestCart.CartID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&guestCart).Error; err != nil {
			return err
		}

		userCart = &target
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := RecomputeTotals(db, userCart); err != nil {
		return nil, err
	}
	return userCart, nil
}

// mergeCoupon carries the guest cart's coupon to the user cart when the user
// cart has none: the CouponUsage row is re-pointed at the user cart, so the
// redemption stays counted exactly once. When the user cart already has its
// own coupon, the guest cart's redemption is released (row deleted,
// used_count decremented) since that cart is about to disappear.
func mergeCoupon(tx *gorm.DB, guestCart, userCart *models.Cart, userID string) error {
	if guestCart.CouponCode == nil {
		return nil
	}

	var coupon models.Coupon
	err := tx.Where("UPPER(code) = ?", strings.ToUpper(*guestCart.CouponCode)).First(&coupon).Error
	if err == gorm.ErrRecordNotFound {
		return nil // stale code, nothing to move
	}
	if err != nil {
		return err
	}

	if userCart.CouponCode == nil {
		result := tx.Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND cart_id = ?", coupon.ID, guestCart.CartID).
			Updates(map[string]interface{}{"cart_id": userCart.CartID, "user_id": userID})
		if result.Error != nil {
			return result.Error
		}
		code := coupon.Code
		userCart.CouponCode = &code
		return tx.Model(&models.Cart{}).Where("cart_id = ?", userCart.CartID).
			Update("coupon_code", coupon.Code).Error
	}

	// First-applied-wins: the user cart keeps its own coupon.
	result := tx.Where("coupon_id = ? AND cart_id = ?", coupon.ID, guestCart.CartID).
		Delete(&models.CouponUsage{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return tx.Model(&models.Coupon{}).Where("id = ? AND used_count > 0", coupon.ID).
			Update("used_count", gorm.Expr("used_count - 1")).Error
	}
	return nil
}
