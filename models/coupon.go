package models

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage" // DiscountValue is a percent of the subtotal
	DiscountFixed      DiscountType = "fixed"      // DiscountValue is an absolute amount
)

// Coupon is a named, time-bounded, capped discount rule. Codes are stored
// upper-cased and matched case-insensitively.
type Coupon struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Code          string       `gorm:"uniqueIndex;not null" json:"code"`
	DiscountType  DiscountType `gorm:"type:VARCHAR(20);not null" json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`

	// MinimumAmount is the subtotal floor to qualify; MaxAmount, when set,
	// caps the computed discount.
	MinimumAmount float64  `json:"minimum_amount"`
	MaxAmount     *float64 `json:"max_amount,omitempty"`

	// MaxUses nil means unlimited. UsedCount only moves via atomic
	// increment/decrement paired 1:1 with a CouponUsage row.
	MaxUses   *int `json:"max_uses,omitempty"`
	UsedCount int  `gorm:"not null;default:0" json:"used_count"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`

	// Empty means the coupon applies to any cart; otherwise at least one cart
	// item must belong to one of these categories.
	Categories []Category `gorm:"many2many:coupon_categories" json:"categories,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CouponUsage is the ledger row proving a coupon is currently applied to a
// cart. The (coupon_id, cart_id) uniqueness constraint is the linearization
// point that makes apply/remove idempotent under races.
type CouponUsage struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	CouponID uint    `gorm:"uniqueIndex:idx_coupon_cart;not null" json:"coupon_id"`
	CartID   uint    `gorm:"uniqueIndex:idx_coupon_cart;not null" json:"cart_id"`
	UserID   *string `json:"user_id,omitempty"` // audit only

	CreatedAt time.Time `json:"created_at"`
}
