package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Audit actions, one per workflow transition.
const (
	AuditActionAutoMatch     = "auto_match"
	AuditActionManualConfirm = "manual_confirm"
	AuditActionManualLink    = "manual_link"
	AuditActionManualReject  = "manual_reject"
	AuditActionManualUnlink  = "manual_unlink"
)

type AuditMetadata struct {
	ExpectedAmount float64 `bson:"expected_amount,omitempty" json:"expected_amount,omitempty"`
	ActualAmount   float64 `bson:"actual_amount" json:"actual_amount"`
	PaymentType    string  `bson:"payment_type,omitempty" json:"payment_type,omitempty"` // full, partial
	Source         string  `bson:"source,omitempty" json:"source,omitempty"`             // mpesa_callback, admin_panel
}

// PaymentAuditLog entries are append-only; nothing in the codebase updates
// or deletes them.
type PaymentAuditLog struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Action         string              `bson:"action" json:"action"`
	TransactionID  string              `bson:"transaction_id" json:"transaction_id"` // provider id
	OrderID        *primitive.ObjectID `bson:"order_id,omitempty" json:"order_id,omitempty"`
	AdminID        string              `bson:"admin_id,omitempty" json:"admin_id,omitempty"`
	AdminName      string              `bson:"admin_name,omitempty" json:"admin_name,omitempty"`
	CustomerName   string              `bson:"customer_name,omitempty" json:"customer_name,omitempty"`
	Amount         float64             `bson:"amount" json:"amount"`
	Phone          string              `bson:"phone,omitempty" json:"phone,omitempty"`
	Notes          string              `bson:"notes,omitempty" json:"notes,omitempty"`
	PreviousStatus string              `bson:"previous_status" json:"previous_status"`
	NewStatus      string              `bson:"new_status" json:"new_status"`
	Metadata       AuditMetadata       `bson:"metadata" json:"metadata"`
	Timestamp      time.Time           `bson:"timestamp" json:"timestamp"`
}
