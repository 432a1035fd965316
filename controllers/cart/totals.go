package cartControllers

import (
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

// ComputeTotals derives subtotal, discount and total from the given items and
// the optionally applied coupon. All arithmetic runs on decimals and the
// results are truncated to 2 decimal places; the discount is clamped to the
// coupon's MaxAmount and never exceeds the subtotal, so the total cannot go
// negative.
func ComputeTotals(items []models.CartItem, coupon *models.Coupon) (subtotal, discount, total float64) {
	sub := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sub = sub.Add(line)
	}
	sub = sub.Truncate(2)

	disc := decimal.Zero
	if coupon != nil {
		switch coupon.DiscountType {
		case models.DiscountPercentage:
			disc = sub.Mul(decimal.NewFromFloat(coupon.DiscountValue)).Div(decimal.NewFromInt(100))
		case models.DiscountFixed:
			disc = decimal.NewFromFloat(coupon.DiscountValue)
		}
		if coupon.MaxAmount != nil {
			max := decimal.NewFromFloat(*coupon.MaxAmount)
			if disc.GreaterThan(max) {
				disc = max
			}
		}
		if disc.GreaterThan(sub) {
			disc = sub
		}
		if disc.IsNegative() {
			disc = decimal.Zero
		}
		disc = disc.Truncate(2)
	}

	tot := sub.Sub(disc)
	if tot.IsNegative() {
		tot = decimal.Zero
	}

	return sub.InexactFloat64(), disc.InexactFloat64(), tot.Truncate(2).InexactFloat64()
}

// RecomputeTotals re-reads the cart's persisted items and applied coupon,
// derives the three totals and persists them. It never trusts caller-supplied
// figures; every mutation path ends here.
func RecomputeTotals(db *gorm.DB, cart *models.Cart) error {
	var items []models.CartItem
	if err := db.Where("cart_id = ?", cart.CartID).Find(&items).Error; err != nil {
		return err
	}

	var coupon *models.Coupon
	if cart.CouponCode != nil {
		var c models.Coupon
		err := db.Where("UPPER(code) = ?", strings.ToUpper(*cart.CouponCode)).First(&c).Error
		if err == nil {
			coupon = &c
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
		// A stale code pointing at a deleted coupon simply yields no discount.
	}

	subtotal, discount, total := ComputeTotals(items, coupon)

	if err := db.Model(&models.Cart{}).Where("cart_id = ?", cart.CartID).
		Updates(map[string]interface{}{
			"subtotal":        subtotal,
			"discount_amount": discount,
			"total":           total,
		}).Error; err != nil {
		return err
	}

	cart.Items = items
	cart.Subtotal = subtotal
	cart.DiscountAmount = discount
	cart.Total = total
	return nil
}
