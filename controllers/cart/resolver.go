package cartControllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

// Owner identifies who a cart belongs to. Exactly one field is set: UserID
// for signed-in shoppers, AnonymousID for guest sessions.
type Owner struct {
	UserID      string
	AnonymousID string
}

func (o Owner) where(db *gorm.DB) *gorm.DB {
	if o.UserID != "" {
		return db.Where("user_id = ?", o.UserID)
	}
	return db.Where("anonymous_id = ?", o.AnonymousID)
}

func (o Owner) newCart() models.Cart {
	if o.UserID != "" {
		id := o.UserID
		return models.Cart{UserID: &id}
	}
	id := o.AnonymousID
	return models.Cart{AnonymousID: &id}
}

// OwnerFromContext reads the identity the auth middleware stored on the
// request. Guest-role tokens carry the anonymous session id in the same
// user_id claim.
func OwnerFromContext(c *gin.Context) (Owner, bool) {
	idVal, exists := c.Get("user_id")
	if !exists {
		return Owner{}, false
	}
	id, _ := idVal.(string)
	if id == "" {
		return Owner{}, false
	}

	if roleVal, ok := c.Get("role"); ok {
		if role, _ := roleVal.(string); role == "guest" {
			return Owner{AnonymousID: id}, true
		}
	}
	return Owner{UserID: id}, true
}

// ResolveCart returns the owner's cart with items loaded, creating an empty
// cart row on first use. One cart per owner is enforced by the unique indexes
// on user_id and anonymous_id.
func ResolveCart(db *gorm.DB, owner Owner) (*models.Cart, error) {
	var cart models.Cart
	err := owner.where(db).Preload("Items").First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	cart = owner.newCart()
	if err := db.Create(&cart).Error; err != nil {
		// A concurrent first request may have created it; fall back to reading.
		var existing models.Cart
		if lookupErr := owner.where(db).Preload("Items").First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &cart, nil
}
