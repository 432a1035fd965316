package cartControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

// CheckoutSummary is the authoritative figure set handed to the payment
// collaborator. Totals are recomputed server-side immediately before this is
// built; nothing here ever comes from the client.
type CheckoutSummary struct {
	CartID         uint    `json:"cart_id"`
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	Total          float64 `json:"total"`
	CouponCode     *string `json:"coupon_code,omitempty"`
}

// PrepareCheckout forces a totals recompute and returns the summary the
// payment step must use. Fails on an empty cart.
func PrepareCheckout(db *gorm.DB, cart *models.Cart) (*CheckoutSummary, error) {
	if err := RecomputeTotals(db, cart); err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	return &CheckoutSummary{
		CartID:         cart.CartID,
		Subtotal:       cart.Subtotal,
		DiscountAmount: cart.DiscountAmount,
		Total:          cart.Total,
		CouponCode:     cart.CouponCode,
	}, nil
}

// POST /cart/checkout
func PrepareCheckoutHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := OwnerFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		cart, err := ResolveCart(db, owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
			return
		}

		summary, err := PrepareCheckout(db, cart)
		if err != nil {
			respondCartError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
