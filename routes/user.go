package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	cartControllers "github.com/cartizen/storefront-api/controllers/cart"
	couponControllers "github.com/cartizen/storefront-api/controllers/coupon"
	productControllers "github.com/cartizen/storefront-api/controllers/product"
	userControllers "github.com/cartizen/storefront-api/controllers/user"
	"github.com/cartizen/storefront-api/middleware"
)

// SetupUserRoutes registers the shopper-facing endpoints. The cart group is
// shared by signed-in users and guests: both carry a JWT, the role claim
// decides which cart the request resolves to.
func SetupUserRoutes(r *gin.Engine, db *gorm.DB) {
	// ──────────────── User Profile ────────────────
	userGroup := r.Group("/user")
	userGroup.Use(middleware.ValidateToken)
	{
		userGroup.GET("/", userControllers.GetUser(db))    // GET /user/
		userGroup.PUT("/", userControllers.UpdateUser(db)) // PUT /user/
	}

	// ──────────────── Shopping Cart ────────────────
	cartGroup := r.Group("/cart")
	cartGroup.Use(middleware.ValidateToken)
	{
		cartGroup.GET("/", cartControllers.GetCart(db)) // GET /cart
		cartGroup.POST("/items", cartControllers.AddItemHandler(db))
		cartGroup.PUT("/items/:product_id", cartControllers.SetQuantityHandler(db))
		cartGroup.DELETE("/items/:product_id", cartControllers.RemoveItemHandler(db))

		cartGroup.POST("/coupon", couponControllers.ApplyCouponHandler(db))
		cartGroup.DELETE("/coupon", couponControllers.RemoveCouponHandler(db))

		cartGroup.POST("/checkout", cartControllers.PrepareCheckoutHandler(db))
	}

	// ──────────────── Browse Products & Categories ────────────────
	r.GET("/products", productControllers.GetProducts(db))
	r.GET("/products/:id", productControllers.GetProductByID(db))
	r.GET("/categories", productControllers.GetAllCategoriesWithProducts(db))
	r.GET("/categories/:id", productControllers.GetCategoryByID(db))
}
