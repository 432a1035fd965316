package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	adminController "github.com/cartizen/storefront-api/controllers/admin"
	couponControllers "github.com/cartizen/storefront-api/controllers/coupon"
	orderControllers "github.com/cartizen/storefront-api/controllers/order"
	productcontroller "github.com/cartizen/storefront-api/controllers/product"
	userControllers "github.com/cartizen/storefront-api/controllers/user"
	"github.com/cartizen/storefront-api/middleware"
)

// SetupAdminRoutes registers all "/admin/*" endpoints. Requires API-Key middleware.
func SetupAdminRoutes(r *gin.Engine, db *gorm.DB) {
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.ValidateAPIKey)
	{
		// ─────────── Admin & User Management ───────────
		adminGroup.GET("/admins", adminController.GetAllAdmins(db))
		adminGroup.GET("/users", userControllers.GetAllUsers(db))

		// ─────────── Product Management ───────────
		productAdmin := adminGroup.Group("/products")
		{
			productAdmin.POST("", productcontroller.CreateProduct(db))
			productAdmin.PUT("/:id", productcontroller.UpdateProduct(db))
			productAdmin.GET("", productcontroller.GetProducts(db))
			productAdmin.DELETE("/:id", productcontroller.DeleteProduct(db))
		}

		// ─────────── Category Management ───────────
		categoryAdmin := adminGroup.Group("/categories")
		{
			categoryAdmin.POST("", productcontroller.CreateCategory(db))
			categoryAdmin.GET("", productcontroller.GetAllCategories(db))
			categoryAdmin.DELETE("/:id", productcontroller.DeleteCategory(db))
		}

		// ─────────── Coupon Management ───────────
		couponAdmin := adminGroup.Group("/coupons")
		{
			couponAdmin.POST("", couponControllers.CreateCoupon(db))
			couponAdmin.GET("", couponControllers.ListCoupons(db))
			couponAdmin.PUT("/:code", couponControllers.UpdateCoupon(db))
			couponAdmin.DELETE("/:code", couponControllers.DeleteCoupon(db))
		}

		// ─────────── Order Reporting ───────────
		adminGroup.GET("/orders/export", orderControllers.ExportOrdersToExcel(db))

		// ─────────── Admin Approval Workflow ───────────
		adminMgmt := adminGroup.Group("/admin-management")
		{
			adminMgmt.GET("/pending", adminController.ListPendingAdmins(db))
			adminMgmt.POST("/approve", adminController.ApproveAdmin(db))
			adminMgmt.POST("/reject", adminController.RejectAdmin(db))
		}
	}
}
