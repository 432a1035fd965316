package models

import "time"

type OrderStatus string
type PaymentStatus string

const (
	// Order statuses (typical e-commerce flow)
	OrderStatusPending     OrderStatus = "pending"       // Order placed, awaiting confirmation
	OrderStatusConfirmed   OrderStatus = "confirmed"     // Confirmed by seller
	OrderStatusReadyToShip OrderStatus = "ready_to_ship" // Packed and ready for dispatch
	OrderStatusShipped     OrderStatus = "shipped"       // Out for delivery
	OrderStatusDelivered   OrderStatus = "delivered"     // Customer received the item
	OrderStatusReturned    OrderStatus = "returned"      // Customer returned the item
	OrderStatusCancelled   OrderStatus = "cancelled"     // Cancelled before shipping

	// Payment statuses
	PaymentStatusPending  PaymentStatus = "pending"  // Payment not completed yet
	PaymentStatusPaid     PaymentStatus = "paid"     // Payment completed successfully
	PaymentStatusFailed   PaymentStatus = "failed"   // Payment attempt failed
	PaymentStatusRefunded PaymentStatus = "refunded" // Money returned to customer
)

// Order is the immutable snapshot materialized from a cart once the payment
// gateway reports success. PaymentRef is the gateway's transaction reference
// and the idempotency key for webhook redelivery: at most one order per ref.
type Order struct {
	ID     uint    `gorm:"primaryKey" json:"id"`
	UserID *string `gorm:"index" json:"user_id,omitempty"` // nil for guest checkouts

	// PaymentRef is unique per payment intent; CheckoutRef is the nonce we
	// sent to the gateway at checkout and that the webhook echoes back.
	PaymentRef  string `gorm:"uniqueIndex;not null" json:"payment_ref"`
	CheckoutRef string `gorm:"index" json:"checkout_ref"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`

	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	CouponCode     *string `json:"coupon_code,omitempty"`
	TotalAmount    float64 `json:"total_amount"`

	Status        OrderStatus   `gorm:"type:VARCHAR(20);default:'pending'" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:VARCHAR(20);default:'pending'" json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
}

type OrderItem struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	OrderID     uint    `gorm:"index" json:"order_id"`
	ProductID   uint    `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"` // snapshot carried over from the cart item
	Quantity    int     `json:"quantity"`
}
