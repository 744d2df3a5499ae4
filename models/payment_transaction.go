package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Confirmation states for an M-Pesa transaction. pending is the only
// non-terminal state.
const (
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusRejected    = "rejected"
	StatusAutoMatched = "auto_matched"
)

// Transaction types reported by the provider.
const (
	TransactionTypeSTKPush    = "stk_push"    // customer-initiated push
	TransactionTypeC2BPayBill = "c2b_paybill" // direct paybill deposit
)

type PaymentTransaction struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TransactionID   string             `bson:"transaction_id" json:"transaction_id"` // provider id, unique
	ReceiptNumber   string             `bson:"receipt_number" json:"receipt_number"`
	Amount          float64            `bson:"amount" json:"amount"`
	Phone           string             `bson:"phone" json:"phone"`
	PayerName       string             `bson:"payer_name,omitempty" json:"payer_name,omitempty"`
	TransactionTime time.Time          `bson:"transaction_time" json:"transaction_time"`
	TransactionType string             `bson:"transaction_type" json:"transaction_type"`
	OrderReference  string             `bson:"order_reference,omitempty" json:"order_reference,omitempty"`

	// Matching state
	ConfirmationStatus string              `bson:"confirmation_status" json:"confirmation_status"`
	PendingOrderID     *primitive.ObjectID `bson:"pending_order_id,omitempty" json:"pending_order_id,omitempty"`
	IsConnectedToOrder bool                `bson:"is_connected_to_order" json:"is_connected_to_order"`
	ConnectedOrderID   *primitive.ObjectID `bson:"connected_order_id,omitempty" json:"connected_order_id,omitempty"`

	// Confirmation metadata
	ConfirmedBy       string     `bson:"confirmed_by,omitempty" json:"confirmed_by,omitempty"`
	ConfirmedByName   string     `bson:"confirmed_by_name,omitempty" json:"confirmed_by_name,omitempty"`
	ConfirmationNotes string     `bson:"confirmation_notes,omitempty" json:"confirmation_notes,omitempty"`
	ConfirmedAt       *time.Time `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
