package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-card-store/internal/models"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderReserved      = "OrderReserved"
	EventOrderPaid          = "OrderPaid"
	EventOrderPaymentFailed = "OrderPaymentFailed"
	EventOrderDelivered     = "OrderDelivered"
	EventOrderExpired       = "OrderExpired"
	EventOrderRefunded      = "OrderRefunded"
	EventRefundRequested    = "RefundRequested"
	EventRefundApproved     = "RefundApproved"
	EventRefundRejected     = "RefundRejected"
)

const eventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderPayload is the snapshot carried by every order lifecycle event. Card
// keys are never published.
type OrderPayload struct {
	OrderID    string             `json:"order_id"`
	ProductID  string             `json:"product_id"`
	Status     models.OrderStatus `json:"status"`
	Amount     string             `json:"amount"`
	Quantity   int                `json:"quantity"`
	UserID     string             `json:"user_id,omitempty"`
	TradeNo    string             `json:"trade_no,omitempty"`
	PointsUsed int64              `json:"points_used,omitempty"`
	Reason     string             `json:"reason,omitempty"`
}

type RefundPayload struct {
	RequestID      int64               `json:"request_id"`
	OrderID        string              `json:"order_id"`
	Status         models.RefundStatus `json:"status"`
	Admin          string              `json:"admin,omitempty"`
	CardsRestocked int64               `json:"cards_restocked,omitempty"`
	PointsCredited int64               `json:"points_credited,omitempty"`
}

func OrderSnapshot(o *models.Order) OrderPayload {
	p := OrderPayload{
		OrderID:    o.ID,
		ProductID:  o.ProductID,
		Status:     o.Status,
		Amount:     o.Amount.String(),
		Quantity:   o.Quantity,
		PointsUsed: o.PointsUsed,
	}
	if o.UserID != nil {
		p.UserID = *o.UserID
	}
	if o.TradeNo != nil {
		p.TradeNo = *o.TradeNo
	}
	return p
}

func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Publisher delivers envelopes after the state change they describe has
// committed. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
