package models

import "time"

// Cart is the single active cart for one owner. Exactly one of UserID or
// AnonymousID is set: authenticated carts key on the user id, guest carts on
// the opaque session token handed out at /auth/guest.
type Cart struct {
	CartID      uint    `gorm:"primaryKey" json:"cart_id"`
	UserID      *string `gorm:"uniqueIndex" json:"user_id,omitempty"`
	AnonymousID *string `gorm:"uniqueIndex" json:"anonymous_id,omitempty"`

	// Derived fields, persisted for cheap reads. RecomputeTotals is the only
	// writer; total == max(0, subtotal - discount_amount), 2dp.
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	Total          float64 `json:"total"`

	CouponCode *string `json:"coupon_code,omitempty"` // at most one coupon per cart

	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem holds a quantity of one product. A product appears at most once
// per cart; repeat adds bump Quantity on the existing row.
type CartItem struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	CartID    uint `gorm:"index;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID uint `gorm:"uniqueIndex:idx_cart_product" json:"product_id"`

	ProductName string `json:"product_name"`

	// Unit price snapshotted when the product was first added. Later catalog
	// price changes do not touch existing rows.
	Price    float64   `json:"price"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"added_at"`
}
