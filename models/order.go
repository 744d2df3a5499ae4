package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment states for an order.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

type OrderItem struct {
	Name     string  `bson:"name" json:"name"`
	Quantity int     `bson:"quantity" json:"quantity"`
	Price    float64 `bson:"price" json:"price"`
}

type PartialPayment struct {
	Amount        float64   `bson:"amount" json:"amount"`
	Date          time.Time `bson:"date" json:"date"`
	ReceiptNumber string    `bson:"receipt_number,omitempty" json:"receipt_number,omitempty"`
	Phone         string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Method        string    `bson:"method" json:"method"` // mpesa, cash
}

type Order struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber   string             `bson:"order_number" json:"order_number"`
	CustomerID    primitive.ObjectID `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	CustomerName  string             `bson:"customer_name" json:"customer_name"`
	CustomerPhone string             `bson:"customer_phone" json:"customer_phone"`
	Items         []OrderItem        `bson:"items,omitempty" json:"items,omitempty"`

	TotalAmount      float64          `bson:"total_amount" json:"total_amount"`
	AmountPaid       float64          `bson:"amount_paid" json:"amount_paid"`
	RemainingBalance float64          `bson:"remaining_balance" json:"remaining_balance"`
	PaymentStatus    string           `bson:"payment_status" json:"payment_status"`
	PartialPayments  []PartialPayment `bson:"partial_payments,omitempty" json:"partial_payments,omitempty"`

	Status      string    `bson:"status" json:"status"` // received, processing, ready, delivered, cancelled
	Notes       string    `bson:"notes,omitempty" json:"notes,omitempty"`
	Attachments []string  `bson:"attachments,omitempty" json:"attachments,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}
