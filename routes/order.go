package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	orderControllers "github.com/cartizen/storefront-api/controllers/order"
)

func SetupOrderRoutes(r *gin.Engine, db *gorm.DB) {
	orders := r.Group("/orders")
	{
		// Orders are created only by the payment webhook; these endpoints
		// are read/manage only.

		// Fetch all orders (admin)
		orders.GET("/", orderControllers.GetAllOrdersHandler(db))

		// websocket endpoint for real-time order updates
		orders.GET("/ws/orders", orderControllers.OrderWebSocketHandler)

		// Fetch orders for a specific user
		orders.GET("/user/:userID", orderControllers.GetUserOrdersHandler(db))

		// Fetch one order by id or payment reference
		orders.GET("/:orderID", orderControllers.GetOrderByIDHandler(db))

		// Update order status (e.g., shipped, cancelled)
		orders.PUT("/:orderID/status", orderControllers.UpdateOrderStatusHandler(db))

		// Update payment status (e.g., paid, refunded)
		orders.PUT("/:orderID/payment-status", orderControllers.UpdatePaymentStatusHandler(db))

		// Delete an order
		orders.DELETE("/:orderID", orderControllers.DeleteOrderHandler(db))
	}
}
