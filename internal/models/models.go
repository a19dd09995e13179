package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             string              `db:"id" json:"id"`
	Name           string              `db:"name" json:"name"`
	Description    *string             `db:"description" json:"description,omitempty"`
	Price          decimal.Decimal     `db:"price" json:"price"`
	CompareAtPrice decimal.NullDecimal `db:"compare_at_price" json:"compare_at_price"`
	Category       *string             `db:"category" json:"category,omitempty"`
	Image          *string             `db:"image" json:"image,omitempty"`
	IsHot          bool                `db:"is_hot" json:"is_hot"`
	IsActive       bool                `db:"is_active" json:"is_active"`
	SortOrder      int                 `db:"sort_order" json:"sort_order"`
	PurchaseLimit  *int                `db:"purchase_limit" json:"purchase_limit,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

type CardState string

const (
	CardFree     CardState = "free"
	CardReserved CardState = "reserved"
	CardUsed     CardState = "used"
)

// Card is one redeemable key. Once used, ReservedOrderID keeps pointing at
// the order that consumed it.
type Card struct {
	ID              int64      `db:"id" json:"id"`
	ProductID       string     `db:"product_id" json:"product_id"`
	Key             string     `db:"card_key" json:"card_key"`
	IsUsed          bool       `db:"is_used" json:"is_used"`
	ReservedOrderID *string    `db:"reserved_order_id" json:"reserved_order_id,omitempty"`
	ReservedAt      *time.Time `db:"reserved_at" json:"reserved_at,omitempty"`
	UsedAt          *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

func (c Card) State() CardState {
	switch {
	case c.IsUsed:
		return CardUsed
	case c.ReservedOrderID != nil:
		return CardReserved
	default:
		return CardFree
	}
}

type CardStats struct {
	Free     int64 `db:"free" json:"free"`
	Reserved int64 `db:"reserved" json:"reserved"`
	Used     int64 `db:"used" json:"used"`
}

func (s CardStats) Total() int64 {
	return s.Free + s.Reserved + s.Used
}

type Order struct {
	ID               string          `db:"order_id" json:"order_id"`
	ProductID        string          `db:"product_id" json:"product_id"`
	ProductName      string          `db:"product_name" json:"product_name"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Email            *string         `db:"email" json:"email,omitempty"`
	Payee            *string         `db:"payee" json:"payee,omitempty"`
	Status           OrderStatus     `db:"status" json:"status"`
	TradeNo          *string         `db:"trade_no" json:"trade_no,omitempty"`
	CardKey          *string         `db:"card_key" json:"card_key,omitempty"`
	PaidAt           *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	DeliveredAt      *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	UserID           *string         `db:"user_id" json:"user_id,omitempty"`
	Username         *string         `db:"username" json:"username,omitempty"`
	PointsUsed       int64           `db:"points_used" json:"points_used"`
	Quantity         int             `db:"quantity" json:"quantity"`
	CurrentPaymentID *string         `db:"current_payment_id" json:"current_payment_id,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// BuyerView hides the card key until the order has been delivered.
func (o Order) BuyerView() Order {
	if o.Status != OrderStatusDelivered {
		o.CardKey = nil
	}
	return o
}

type User struct {
	ID          string    `db:"user_id" json:"user_id"`
	Username    *string   `db:"username" json:"username,omitempty"`
	Points      int64     `db:"points" json:"points"`
	IsBlocked   bool      `db:"is_blocked" json:"is_blocked"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	LastLoginAt time.Time `db:"last_login_at" json:"last_login_at"`
}

type Checkin struct {
	ID          int64     `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	CheckinDate time.Time `db:"checkin_date" json:"checkin_date"`
	Reward      int64     `db:"reward" json:"reward"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type RefundRequest struct {
	ID            int64        `db:"id" json:"id"`
	OrderID       string       `db:"order_id" json:"order_id"`
	UserID        *string      `db:"user_id" json:"user_id,omitempty"`
	Username      *string      `db:"username" json:"username,omitempty"`
	Reason        *string      `db:"reason" json:"reason,omitempty"`
	Status        RefundStatus `db:"status" json:"status"`
	AdminUsername *string      `db:"admin_username" json:"admin_username,omitempty"`
	AdminNote     *string      `db:"admin_note" json:"admin_note,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
	ProcessedAt   *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
}

type Review struct {
	ID        int64     `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
