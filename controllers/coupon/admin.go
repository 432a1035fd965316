package couponControllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

type CouponInput struct {
	Code          string   `json:"code" binding:"required"`
	DiscountType  string   `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue float64  `json:"discount_value" binding:"required,gt=0"`
	MinimumAmount float64  `json:"minimum_amount"`
	MaxAmount     *float64 `json:"max_amount"`
	MaxUses       *int     `json:"max_uses"`
	StartDate     string   `json:"start_date" binding:"required"` // RFC3339
	EndDate       string   `json:"end_date" binding:"required"`
	IsActive      *bool    `json:"is_active"`
	CategoryIDs   []uint   `json:"category_ids"`
}

// POST /admin/coupons
func CreateCoupon(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CouponInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		start, err := time.Parse(time.RFC3339, input.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date"})
			return
		}
		end, err := time.Parse(time.RFC3339, input.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date"})
			return
		}
		if !end.After(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be after start_date"})
			return
		}

		var categories []models.Category
		if len(input.CategoryIDs) > 0 {
			if err := db.Where("id IN ?", input.CategoryIDs).Find(&categories).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
				return
			}
		}

		active := true
		if input.IsActive != nil {
			active = *input.IsActive
		}

		coupon := models.Coupon{
			Code:          strings.ToUpper(strings.TrimSpace(input.Code)),
			DiscountType:  models.DiscountType(input.DiscountType),
			DiscountValue: input.DiscountValue,
			MinimumAmount: input.MinimumAmount,
			MaxAmount:     input.MaxAmount,
			MaxUses:       input.MaxUses,
			StartDate:     start,
			EndDate:       end,
			IsActive:      active,
			Categories:    categories,
		}

		if err := db.Create(&coupon).Error; err != nil {
			if isDuplicateKeyErr(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "Coupon code already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create coupon"})
			return
		}

		c.JSON(http.StatusCreated, coupon)
	}
}

// PUT /admin/coupons/:code
func UpdateCoupon(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		coupon, err := findCoupon(db, c.Param("code"))
		if err != nil {
			respondCouponError(c, err)
			return
		}

		var input struct {
			DiscountValue *float64 `json:"discount_value"`
			MinimumAmount *float64 `json:"minimum_amount"`
			MaxAmount     *float64 `json:"max_amount"`
			MaxUses       *int     `json:"max_uses"`
			EndDate       *string  `json:"end_date"`
			IsActive      *bool    `json:"is_active"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		updates := map[string]interface{}{}
		if input.DiscountValue != nil {
			updates["discount_value"] = *input.DiscountValue
		}
		if input.MinimumAmount != nil {
			updates["minimum_amount"] = *input.MinimumAmount
		}
		if input.MaxAmount != nil {
			updates["max_amount"] = *input.MaxAmount
		}
		if input.MaxUses != nil {
			updates["max_uses"] = *input.MaxUses
		}
		if input.EndDate != nil {
			end, err := time.Parse(time.RFC3339, *input.EndDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date"})
				return
			}
			updates["end_date"] = end
		}
		if input.IsActive != nil {
			updates["is_active"] = *input.IsActive
		}

		if len(updates) > 0 {
			if err := db.Model(coupon).Updates(updates).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update coupon"})
				return
			}
		}

		c.JSON(http.StatusOK, coupon)
	}
}

// GET /admin/coupons
func ListCoupons(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var coupons []models.Coupon
		if err := db.Preload("Categories").Order("created_at DESC").Find(&coupons).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch coupons"})
			return
		}
		c.JSON(http.StatusOK, coupons)
	}
}

// DELETE /admin/coupons/:code
func DeleteCoupon(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		coupon, err := findCoupon(db, c.Param("code"))
		if err != nil {
			respondCouponError(c, err)
			return
		}

		if err := db.Delete(coupon).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete coupon"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted"})
	}
}
