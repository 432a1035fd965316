package cartControllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

type CartItemInput struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

type QuantityInput struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

// AddItem upserts a product into the cart: a repeat add increments the
// existing row's quantity, a first add inserts the row with the product's
// current price as the permanent snapshot. The stock check covers the
// prospective total quantity (existing + requested). The check and the write
// are not wrapped in one transaction, so two simultaneous requests against
// the same cart can both pass it; contention on a single shopper's cart is
// low enough that we accept this.
func AddItem(db *gorm.DB, cart *models.Cart, productID uint, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	var product models.Product
	if err := db.First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrProductNotFound
		}
		return err
	}

	var item models.CartItem
	err := db.Where("cart_id = ? AND product_id = ?", cart.CartID, productID).First(&item).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		if quantity > product.Stock {
			return ErrInsufficientStock
		}
		item = models.CartItem{
			CartID:      cart.CartID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    quantity,
			AddedAt:     time.Now(),
		}
		if err := db.Create(&item).Error; err != nil {
			return err
		}
	case err == nil:
		if item.Quantity+quantity > product.Stock {
			return ErrInsufficientStock
		}
		item.Quantity += quantity
		item.AddedAt = time.Now()
		if err := db.Save(&item).Error; err != nil {
			return err
		}
	default:
		return err
	}

	return RecomputeTotals(db, cart)
}

// SetQuantity overwrites an existing item's quantity; zero deletes the row.
// The price snapshot taken at first add is left untouched.
func SetQuantity(db *gorm.DB, cart *models.Cart, productID uint, quantity int) error {
	if quantity == 0 {
		return RemoveItem(db, cart, productID)
	}

	var item models.CartItem
	if err := db.Where("cart_id = ? AND product_id = ?", cart.CartID, productID).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrItemNotFound
		}
		return err
	}

	var product models.Product
	if err := db.First(&product, "id = ?", productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrProductNotFound
		}
		return err
	}
	if quantity > product.Stock {
		return ErrInsufficientStock
	}

	item.Quantity = quantity
	if err := db.Save(&item).Error; err != nil {
		return err
	}

	return RecomputeTotals(db, cart)
}

// RemoveItem deletes the product's row from the cart.
func RemoveItem(db *gorm.DB, cart *models.Cart, productID uint) error {
	result := db.Where("cart_id = ? AND product_id = ?", cart.CartID, productID).Delete(&models.CartItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}

	return RecomputeTotals(db, cart)
}

func parseProductID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("product_id"), 10, 64)
	return uint(id), err
}

func respondCartError(c *gin.Context, err error) {
	switch err {
	case ErrProductNotFound, ErrItemNotFound, ErrCartNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case ErrInsufficientStock:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case ErrInvalidQuantity, ErrEmptyCart:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart"})
	}
}

// ---- Handlers ----

// GET /cart
func GetCart(db *gorm.DB) gin.HandlerFunc {
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
		c.JSON(http.StatusOK, cart)
	}
}

// POST /cart/items
func AddItemHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := OwnerFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var input CartItemInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		cart, err := ResolveCart(db, owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
			return
		}

		if err := AddItem(db, cart, input.ProductID, input.Quantity); err != nil {
			respondCartError(c, err)
			return
		}
		c.JSON(http.StatusOK, cart)
	}
}

// PUT /cart/items/:product_id
func SetQuantityHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := OwnerFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		productID, err := parseProductID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
			return
		}

		var input QuantityInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}

		cart, err := ResolveCart(db, owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
			return
		}

		if err := SetQuantity(db, cart, productID, *input.Quantity); err != nil {
			respondCartError(c, err)
			return
		}
		c.JSON(http.StatusOK, cart)
	}
}

// DELETE /cart/items/:product_id
func RemoveItemHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := OwnerFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		productID, err := parseProductID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
			return
		}

		cart, err := ResolveCart(db, owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
			return
		}

		if err := RemoveItem(db, cart, productID); err != nil {
			respondCartError(c, err)
			return
		}
		c.JSON(http.StatusOK, cart)
	}
}
