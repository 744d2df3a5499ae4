package reconcile

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
)

// StateChange is the full target matching-state of a transaction after a
// transition. Nil pointers clear the corresponding field.
type StateChange struct {
	NewStatus          string
	PendingOrderID     *primitive.ObjectID
	IsConnectedToOrder bool
	ConnectedOrderID   *primitive.ObjectID
	ConfirmedBy        string
	ConfirmedByName    string
	Notes              string
	ConfirmedAt        *time.Time
}

// PaymentApplication is one payment applied to an order's balance.
type PaymentApplication struct {
	Amount        float64
	Date          time.Time
	ReceiptNumber string
	Phone         string
	Method        string
}

// TransactionStore persists payment notifications and their matching state.
type TransactionStore interface {
	// InsertTransaction stores a new notification record. A record with the
	// same provider transaction id already present yields
	// ErrDuplicateTransaction and no second record.
	InsertTransaction(ctx context.Context, tx *models.PaymentTransaction) error

	GetTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)

	// Transition applies change to the transaction iff its current
	// confirmation status is one of from. The check and the write are a
	// single conditional update; a concurrent transition loses with
	// ErrInvalidState. Returns the transaction after the change.
	Transition(ctx context.Context, transactionID string, from []string, change StateChange) (*models.PaymentTransaction, error)

	// ListPendingWithCandidates returns pending transactions holding a
	// candidate order, newest first.
	ListPendingWithCandidates(ctx context.Context) ([]models.PaymentTransaction, error)

	// ListUnmatched returns pending transactions with no candidate and no
	// connected order, newest first.
	ListUnmatched(ctx context.Context) ([]models.PaymentTransaction, error)
}

// OrderStore exposes the payment-side view of orders.
type OrderStore interface {
	GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)

	// FindCandidateOrders returns orders for the given phone that still have
	// an outstanding balance. Ranking is the Matcher's business.
	FindCandidateOrders(ctx context.Context, phone string) ([]models.Order, error)

	// ApplyPayment increments the order's amount_paid by p.Amount, appends p
	// to partial_payments and recomputes remaining_balance and
	// payment_status, all as one atomic update. Returns the updated order.
	ApplyPayment(ctx context.Context, orderID primitive.ObjectID, p PaymentApplication) (*models.Order, error)

	// ReversePayment undoes a previously applied payment: decrements
	// amount_paid (clamped at zero), removes the matching partial_payments
	// entry and recomputes the derived fields atomically.
	ReversePayment(ctx context.Context, orderID primitive.ObjectID, amount float64, receiptNumber string) (*models.Order, error)
}

// AuditStore is append-only; no update or delete is exposed anywhere.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.PaymentAuditLog) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]models.PaymentAuditLog, error)
}

// AuditFilter narrows an audit query; zero values mean "any".
type AuditFilter struct {
	TransactionID string
	OrderID       *primitive.ObjectID
	AdminID       string
	From          time.Time
	To            time.Time
}
