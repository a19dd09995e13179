package models

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusReserved  OrderStatus = "reserved"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusRefunded  OrderStatus = "refunded"
	// OrderStatusFailed marks a payment that arrived without an active
	// reservation. Such orders need manual reconciliation.
	OrderStatusFailed OrderStatus = "failed"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusReserved: true, OrderStatusExpired: true, OrderStatusFailed: true},
	OrderStatusReserved:  {OrderStatusPaid: true, OrderStatusExpired: true, OrderStatusFailed: true},
	OrderStatusPaid:      {OrderStatusDelivered: true, OrderStatusRefunded: true},
	OrderStatusDelivered: {OrderStatusRefunded: true},
	OrderStatusExpired:   {OrderStatusFailed: true},
	OrderStatusRefunded:  {},
	OrderStatusFailed:    {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// HasCard reports whether an order in this status carries an assigned card key.
func (s OrderStatus) HasCard() bool {
	return s == OrderStatusPaid || s == OrderStatusDelivered || s == OrderStatusRefunded
}

type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusApproved RefundStatus = "approved"
	RefundStatusRejected RefundStatus = "rejected"
)

func (s RefundStatus) Terminal() bool {
	return s == RefundStatusApproved || s == RefundStatusRejected
}
