package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	paymentControllers "github.com/cartizen/storefront-api/controllers/payment"
	"github.com/cartizen/storefront-api/middleware"
)

func SetupPaymentRoutes(r *gin.Engine, db *gorm.DB) {
	payment := r.Group("/payment")
	{
		// Payment creation requires the caller's session: the amount comes
		// from the caller's own cart, never from the request body.
		payment.POST("/place",
			middleware.ValidateToken,
			paymentControllers.PaymentRequestHandler(db),
		)

		// Webhook endpoint: middleware handles sandbox/prod verification
		payment.POST("/webhook",
			middleware.TelrWebhookAuth(),
			paymentControllers.TelrWebhookHandler(db),
		)
	}
}
