package entity

import (
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Code is the single-character form stored in orders.payment_status.
func (s PaymentStatus) Code() string {
	switch s {
	case PaymentCompleted:
		return "C"
	case PaymentFailed:
		return "F"
	default:
		return "P"
	}
}

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentCompleted || s == PaymentFailed
}

// CanTransitionTo reports whether a payment status change is allowed.
// Only a pending order can move, and only to completed or failed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPending && (next == PaymentCompleted || next == PaymentFailed)
}

func ParsePaymentStatusCode(code string) (PaymentStatus, error) {
	switch code {
	case "P":
		return PaymentPending, nil
	case "C":
		return PaymentCompleted, nil
	case "F":
		return PaymentFailed, nil
	}
	return "", fmt.Errorf("unknown payment status code %q", code)
}

// Order is the immutable result of a checkout. Only PaymentStatus and
// PaymentAuthority change after creation.
type Order struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"user_id"`
	TotalPrice       int64         `json:"total_price"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	TrackingCode     string        `json:"tracking_code"`
	PaymentAuthority string        `json:"-"`
	Items            []OrderItem   `json:"items"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// OrderItem snapshots the unit price paid at checkout.
type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"-"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	TotalPrice  int64  `json:"total_price"`
}

// Priced fills the per-item totals from the snapshot prices.
func (o *Order) Priced() *Order {
	for i := range o.Items {
		o.Items[i].TotalPrice = int64(o.Items[i].Quantity) * o.Items[i].Price
	}
	return o
}

// OrderEvent is published after an order is created or its payment status changes.
type OrderEvent struct {
	Type          string        `json:"type"`
	OrderID       int64         `json:"order_id"`
	UserID        int64         `json:"user_id"`
	TrackingCode  string        `json:"tracking_code"`
	TotalPrice    int64         `json:"total_price"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

const (
	EventOrderCreated        = "order.created"
	EventOrderPaymentUpdated = "order.payment_updated"
)

func NewOrderEvent(eventType string, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       o.ID,
		UserID:        o.UserID,
		TrackingCode:  o.TrackingCode,
		TotalPrice:    o.TotalPrice,
		PaymentStatus: o.PaymentStatus,
		OccurredAt:    at,
	}
}

/*
Mysql Table

CREATE TABLE orders (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	total_price BIGINT UNSIGNED NOT NULL,
	payment_status CHAR(1) NOT NULL DEFAULT 'P',
	tracking_code CHAR(16) NOT NULL UNIQUE,
	payment_authority VARCHAR(255) NULL UNIQUE,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL
);

CREATE TABLE order_items (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	product_id BIGINT NOT NULL REFERENCES products(id),
	quantity SMALLINT UNSIGNED NOT NULL,
	price BIGINT UNSIGNED NOT NULL
);
*/
