package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
)

// Identity is the admin performing a workflow action. It is always passed
// explicitly; the workflow has no ambient notion of a current user.
type Identity struct {
	ID   string
	Name string
	Role string // admin, superadmin
}

// Notification is an inbound provider payment report, already normalized by
// the transport layer.
type Notification struct {
	TransactionID  string
	ReceiptNumber  string
	Amount         float64
	Phone          string
	PayerName      string
	Time           time.Time
	Type           string
	OrderReference string
}

// IngestResult reports what happened to a notification.
type IngestResult struct {
	Transaction *models.PaymentTransaction `json:"transaction"`
	Order       *models.Order              `json:"order,omitempty"` // set when auto-matched
	AutoMatched bool                       `json:"auto_matched"`
	Duplicate   bool                       `json:"duplicate"`
}

// PendingReview pairs a pending transaction with its candidate order.
type PendingReview struct {
	Transaction models.PaymentTransaction `json:"transaction"`
	Candidate   *models.Order             `json:"candidate_order,omitempty"`
}

// Workflow is the single authority over transaction state transitions. Every
// transition is one conditional store update keyed on the current status, so
// concurrent attempts lose with ErrInvalidState instead of double-applying.
//
// Audit ordering: the primary state write happens first, the audit append
// second. An audit failure after a successful state change is logged and
// swallowed; the financial effect has already taken place and must not be
// rolled back or hidden behind an error.
type Workflow struct {
	Transactions TransactionStore
	Orders       OrderStore
	Audit        AuditStore
	Matcher      *Matcher
}

func NewWorkflow(transactions TransactionStore, orders OrderStore, audit AuditStore) *Workflow {
	return &Workflow{
		Transactions: transactions,
		Orders:       orders,
		Audit:        audit,
		Matcher:      &Matcher{Orders: orders},
	}
}

// Ingest records a provider notification and runs the matcher over it.
// Ingestion is idempotent on the provider transaction id: a duplicate
// notification returns the existing record with Duplicate=true and changes
// nothing. A matcher or auto-match failure leaves the transaction recorded
// and pending; it surfaces to admins as unmatched.
func (w *Workflow) Ingest(ctx context.Context, n Notification) (*IngestResult, error) {
	if n.TransactionID == "" {
		return nil, validation("transaction id is required")
	}
	if n.Amount <= 0 {
		return nil, validation("amount must be greater than 0")
	}
	if n.Phone == "" {
		return nil, validation("payer phone is required")
	}

	txType := n.Type
	if txType == "" {
		txType = models.TransactionTypeC2BPayBill
	}
	when := n.Time
	if when.IsZero() {
		when = time.Now()
	}

	now := time.Now()
	tx := &models.PaymentTransaction{
		ID:                 primitive.NewObjectID(),
		TransactionID:      n.TransactionID,
		ReceiptNumber:      n.ReceiptNumber,
		Amount:             n.Amount,
		Phone:              n.Phone,
		PayerName:          n.PayerName,
		TransactionTime:    when,
		TransactionType:    txType,
		OrderReference:     n.OrderReference,
		ConfirmationStatus: models.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := w.Transactions.InsertTransaction(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			existing, getErr := w.Transactions.GetTransaction(ctx, n.TransactionID)
			if getErr != nil {
				return nil, fmt.Errorf("load duplicate transaction %s: %w", n.TransactionID, getErr)
			}
			return &IngestResult{Transaction: existing, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("insert transaction %s: %w", n.TransactionID, err)
	}

	match, err := w.Matcher.Match(ctx, tx)
	if err != nil {
		log.Printf("matcher failed for transaction %s: %v", tx.TransactionID, err)
		return &IngestResult{Transaction: tx}, nil
	}

	if match.AutoMatch {
		updated, order, err := w.RecordAutoMatch(ctx, tx.TransactionID, match.Candidate.ID)
		if err != nil {
			log.Printf("auto-match of transaction %s to order %s failed: %v",
				tx.TransactionID, match.Candidate.ID.Hex(), err)
			return &IngestResult{Transaction: tx}, nil
		}
		return &IngestResult{Transaction: updated, Order: order, AutoMatched: true}, nil
	}

	if match.Candidate != nil {
		updated, err := w.Transactions.Transition(ctx, tx.TransactionID,
			[]string{models.StatusPending}, StateChange{
				NewStatus:      models.StatusPending,
				PendingOrderID: &match.Candidate.ID,
			})
		if err != nil {
			log.Printf("setting candidate for transaction %s failed: %v", tx.TransactionID, err)
			return &IngestResult{Transaction: tx}, nil
		}
		return &IngestResult{Transaction: updated}, nil
	}

	return &IngestResult{Transaction: tx}, nil
}

// Confirm links a pending transaction to orderID on an admin's authority and
// applies the payment to the order. The audit action is manual_confirm when
// the admin accepted the proposed candidate, manual_link when they chose a
// different order (or the transaction had no candidate).
func (w *Workflow) Confirm(ctx context.Context, transactionID string, orderID primitive.ObjectID, admin Identity, notes string) (*models.PaymentTransaction, *models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, nil, err
	}
	if transactionID == "" {
		return nil, nil, validation("transaction id is required")
	}

	tx, err := w.Transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	order, err := w.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	action := models.AuditActionManualConfirm
	if tx.PendingOrderID == nil || *tx.PendingOrderID != orderID {
		action = models.AuditActionManualLink
	}
	expected := order.RemainingBalance

	now := time.Now()
	updated, err := w.Transactions.Transition(ctx, transactionID,
		[]string{models.StatusPending}, StateChange{
			NewStatus:          models.StatusConfirmed,
			IsConnectedToOrder: true,
			ConnectedOrderID:   &orderID,
			ConfirmedBy:        admin.ID,
			ConfirmedByName:    admin.Name,
			Notes:              notes,
			ConfirmedAt:        &now,
		})
	if err != nil {
		return nil, nil, err
	}

	order, err = w.Orders.ApplyPayment(ctx, orderID, PaymentApplication{
		Amount:        tx.Amount,
		Date:          now,
		ReceiptNumber: tx.ReceiptNumber,
		Phone:         tx.Phone,
		Method:        "mpesa",
	})
	if err != nil {
		// The transaction is already confirmed; this needs an operator.
		log.Printf("CRITICAL: transaction %s confirmed but payment of %.2f not applied to order %s: %v",
			transactionID, tx.Amount, orderID.Hex(), err)
		return nil, nil, fmt.Errorf("apply payment to order %s: %w", orderID.Hex(), err)
	}

	w.appendAudit(ctx, &models.PaymentAuditLog{
		Action:         action,
		TransactionID:  transactionID,
		OrderID:        &orderID,
		AdminID:        admin.ID,
		AdminName:      admin.Name,
		CustomerName:   order.CustomerName,
		Amount:         tx.Amount,
		Phone:          tx.Phone,
		Notes:          notes,
		PreviousStatus: models.StatusPending,
		NewStatus:      models.StatusConfirmed,
		Metadata: models.AuditMetadata{
			ExpectedAmount: expected,
			ActualAmount:   tx.Amount,
			PaymentType:    paymentType(order),
			Source:         "admin_panel",
		},
		Timestamp: now,
	})

	return updated, order, nil
}

// Reject marks a pending transaction as rejected. No order is touched.
func (w *Workflow) Reject(ctx context.Context, transactionID string, admin Identity, reason string) (*models.PaymentTransaction, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	if transactionID == "" {
		return nil, validation("transaction id is required")
	}
	if reason == "" {
		return nil, validation("rejection reason is required")
	}

	tx, err := w.Transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated, err := w.Transactions.Transition(ctx, transactionID,
		[]string{models.StatusPending}, StateChange{
			NewStatus:       models.StatusRejected,
			ConfirmedBy:     admin.ID,
			ConfirmedByName: admin.Name,
			Notes:           reason,
			ConfirmedAt:     &now,
		})
	if err != nil {
		return nil, err
	}

	w.appendAudit(ctx, &models.PaymentAuditLog{
		Action:         models.AuditActionManualReject,
		TransactionID:  transactionID,
		AdminID:        admin.ID,
		AdminName:      admin.Name,
		Amount:         tx.Amount,
		Phone:          tx.Phone,
		Notes:          reason,
		PreviousStatus: models.StatusPending,
		NewStatus:      models.StatusRejected,
		Metadata: models.AuditMetadata{
			ActualAmount: tx.Amount,
			Source:       "admin_panel",
		},
		Timestamp: now,
	})

	return updated, nil
}

// RecordAutoMatch connects a pending transaction to an order without admin
// review. Called by Ingest when the matcher found an unambiguous exact-amount
// candidate.
func (w *Workflow) RecordAutoMatch(ctx context.Context, transactionID string, orderID primitive.ObjectID) (*models.PaymentTransaction, *models.Order, error) {
	if transactionID == "" {
		return nil, nil, validation("transaction id is required")
	}

	tx, err := w.Transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	order, err := w.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	expected := order.RemainingBalance

	now := time.Now()
	updated, err := w.Transactions.Transition(ctx, transactionID,
		[]string{models.StatusPending}, StateChange{
			NewStatus:          models.StatusAutoMatched,
			IsConnectedToOrder: true,
			ConnectedOrderID:   &orderID,
			ConfirmedBy:        "system",
			ConfirmedByName:    "Auto Match",
			ConfirmedAt:        &now,
		})
	if err != nil {
		return nil, nil, err
	}

	order, err = w.Orders.ApplyPayment(ctx, orderID, PaymentApplication{
		Amount:        tx.Amount,
		Date:          now,
		ReceiptNumber: tx.ReceiptNumber,
		Phone:         tx.Phone,
		Method:        "mpesa",
	})
	if err != nil {
		log.Printf("CRITICAL: transaction %s auto-matched but payment of %.2f not applied to order %s: %v",
			transactionID, tx.Amount, orderID.Hex(), err)
		return nil, nil, fmt.Errorf("apply payment to order %s: %w", orderID.Hex(), err)
	}

	w.appendAudit(ctx, &models.PaymentAuditLog{
		Action:         models.AuditActionAutoMatch,
		TransactionID:  transactionID,
		OrderID:        &orderID,
		AdminID:        "system",
		AdminName:      "Auto Match",
		CustomerName:   order.CustomerName,
		Amount:         tx.Amount,
		Phone:          tx.Phone,
		PreviousStatus: models.StatusPending,
		NewStatus:      models.StatusAutoMatched,
		Metadata: models.AuditMetadata{
			ExpectedAmount: expected,
			ActualAmount:   tx.Amount,
			PaymentType:    paymentType(order),
			Source:         "mpesa_callback",
		},
		Timestamp: now,
	})

	return updated, order, nil
}

// Unlink disconnects a confirmed or auto-matched transaction from its order
// and reverses the balance effect. The transaction returns to pending with
// no candidate; the terminal state machine is not reopened, this is its own
// transition with its own audit action.
func (w *Workflow) Unlink(ctx context.Context, transactionID string, admin Identity, reason string) (*models.PaymentTransaction, *models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, nil, err
	}
	if transactionID == "" {
		return nil, nil, validation("transaction id is required")
	}

	tx, err := w.Transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	if !tx.IsConnectedToOrder || tx.ConnectedOrderID == nil {
		return nil, nil, invalidState(transactionID, tx.ConfirmationStatus)
	}
	orderID := *tx.ConnectedOrderID
	prevStatus := tx.ConfirmationStatus

	now := time.Now()
	updated, err := w.Transactions.Transition(ctx, transactionID,
		[]string{models.StatusConfirmed, models.StatusAutoMatched}, StateChange{
			NewStatus:       models.StatusPending,
			ConfirmedBy:     admin.ID,
			ConfirmedByName: admin.Name,
			Notes:           reason,
		})
	if err != nil {
		return nil, nil, err
	}

	order, err := w.Orders.ReversePayment(ctx, orderID, tx.Amount, tx.ReceiptNumber)
	if err != nil {
		log.Printf("CRITICAL: transaction %s unlinked but payment of %.2f not reversed on order %s: %v",
			transactionID, tx.Amount, orderID.Hex(), err)
		return nil, nil, fmt.Errorf("reverse payment on order %s: %w", orderID.Hex(), err)
	}

	w.appendAudit(ctx, &models.PaymentAuditLog{
		Action:         models.AuditActionManualUnlink,
		TransactionID:  transactionID,
		OrderID:        &orderID,
		AdminID:        admin.ID,
		AdminName:      admin.Name,
		CustomerName:   order.CustomerName,
		Amount:         tx.Amount,
		Phone:          tx.Phone,
		Notes:          reason,
		PreviousStatus: prevStatus,
		NewStatus:      models.StatusPending,
		Metadata: models.AuditMetadata{
			ActualAmount: tx.Amount,
			Source:       "admin_panel",
		},
		Timestamp: now,
	})

	return updated, order, nil
}

// PendingReviews is the admin queue: pending transactions that hold a
// candidate order, each joined with the candidate's current summary. A
// candidate order deleted since matching shows up with a nil candidate.
func (w *Workflow) PendingReviews(ctx context.Context) ([]PendingReview, error) {
	txs, err := w.Transactions.ListPendingWithCandidates(ctx)
	if err != nil {
		return nil, err
	}
	reviews := make([]PendingReview, 0, len(txs))
	for _, tx := range txs {
		review := PendingReview{Transaction: tx}
		if tx.PendingOrderID != nil {
			order, err := w.Orders.GetOrder(ctx, *tx.PendingOrderID)
			if err == nil {
				review.Candidate = order
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// Unmatched lists pending transactions with no candidate at all.
func (w *Workflow) Unmatched(ctx context.Context) ([]models.PaymentTransaction, error) {
	return w.Transactions.ListUnmatched(ctx)
}

// AuditTrail is a read-only view over the audit log.
func (w *Workflow) AuditTrail(ctx context.Context, filter AuditFilter) ([]models.PaymentAuditLog, error) {
	return w.Audit.ListAudit(ctx, filter)
}

func (w *Workflow) appendAudit(ctx context.Context, entry *models.PaymentAuditLog) {
	if err := w.Audit.AppendAudit(ctx, entry); err != nil {
		// State already changed; the anomaly is logged, never surfaced as a
		// failure of the transition itself.
		log.Printf("audit append failed for transaction %s action %s: %v",
			entry.TransactionID, entry.Action, err)
	}
}

func requireAdmin(admin Identity) error {
	if admin.ID == "" || admin.Name == "" {
		return validation("admin identity is required")
	}
	return nil
}

func paymentType(order *models.Order) string {
	if order.RemainingBalance <= 0 {
		return "full"
	}
	return "partial"
}
