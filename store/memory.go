package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	reconcile "github.com/omotechhub-debug/OMOTECHY-sub004/reconcile"
)

// Memory is an in-memory implementation of the reconcile store interfaces
// with the same conditional-update contracts as Mongo. It backs tests and
// the STORAGE=memory dev mode; nothing survives a restart.
type Memory struct {
	mu           sync.Mutex
	transactions map[string]*models.PaymentTransaction // keyed by provider id
	orders       map[primitive.ObjectID]*models.Order
	audit        []models.PaymentAuditLog
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[string]*models.PaymentTransaction),
		orders:       make(map[primitive.ObjectID]*models.Order),
	}
}

// SeedOrder installs an order with derived fields recomputed. Test and dev
// helper.
func (s *Memory) SeedOrder(order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	recomputeBalance(order)
	cp := *order
	s.orders[order.ID] = &cp
}

// ---------------- TransactionStore ----------------

func (s *Memory) InsertTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.TransactionID]; ok {
		return fmt.Errorf("transaction %s already recorded: %w", tx.TransactionID, reconcile.ErrDuplicateTransaction)
	}
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	cp := *tx
	s.transactions[tx.TransactionID] = &cp
	return nil
}

func (s *Memory) GetTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, reconcile.ErrNotFound)
	}
	cp := *tx
	return &cp, nil
}

func (s *Memory) Transition(ctx context.Context, transactionID string, from []string, change reconcile.StateChange) (*models.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, reconcile.ErrNotFound)
	}
	allowed := false
	for _, status := range from {
		if tx.ConfirmationStatus == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("transaction %s not in state %v: %w", transactionID, from, reconcile.ErrInvalidState)
	}

	tx.ConfirmationStatus = change.NewStatus
	tx.PendingOrderID = change.PendingOrderID
	tx.IsConnectedToOrder = change.IsConnectedToOrder
	tx.ConnectedOrderID = change.ConnectedOrderID
	tx.ConfirmedBy = change.ConfirmedBy
	tx.ConfirmedByName = change.ConfirmedByName
	tx.ConfirmationNotes = change.Notes
	tx.ConfirmedAt = change.ConfirmedAt
	tx.UpdatedAt = time.Now()

	cp := *tx
	return &cp, nil
}

func (s *Memory) ListPendingWithCandidates(ctx context.Context) ([]models.PaymentTransaction, error) {
	return s.filterTransactions(func(tx *models.PaymentTransaction) bool {
		return tx.ConfirmationStatus == models.StatusPending && tx.PendingOrderID != nil
	}), nil
}

func (s *Memory) ListUnmatched(ctx context.Context) ([]models.PaymentTransaction, error) {
	return s.filterTransactions(func(tx *models.PaymentTransaction) bool {
		return tx.ConfirmationStatus == models.StatusPending &&
			tx.PendingOrderID == nil && !tx.IsConnectedToOrder
	}), nil
}

func (s *Memory) filterTransactions(keep func(*models.PaymentTransaction) bool) []models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentTransaction
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, *tx)
		}
	}
	return out
}

// ---------------- OrderStore ----------------

func (s *Memory) GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id.Hex(), reconcile.ErrNotFound)
	}
	cp := *order
	return &cp, nil
}

func (s *Memory) FindOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.OrderNumber == orderNumber {
			cp := *order
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("order %s: %w", orderNumber, reconcile.ErrNotFound)
}

func (s *Memory) FindCandidateOrders(ctx context.Context, phone string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, order := range s.orders {
		if order.CustomerPhone == phone && order.RemainingBalance > 0 && order.Status != "cancelled" {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *Memory) ApplyPayment(ctx context.Context, orderID primitive.ObjectID, p reconcile.PaymentApplication) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID.Hex(), reconcile.ErrNotFound)
	}
	order.AmountPaid += p.Amount
	order.PartialPayments = append(order.PartialPayments, models.PartialPayment{
		Amount:        p.Amount,
		Date:          p.Date,
		ReceiptNumber: p.ReceiptNumber,
		Phone:         p.Phone,
		Method:        p.Method,
	})
	recomputeBalance(order)
	order.UpdatedAt = time.Now()
	cp := *order
	return &cp, nil
}

func (s *Memory) ReversePayment(ctx context.Context, orderID primitive.ObjectID, amount float64, receiptNumber string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID.Hex(), reconcile.ErrNotFound)
	}
	order.AmountPaid -= amount
	if order.AmountPaid < 0 {
		order.AmountPaid = 0
	}
	kept := order.PartialPayments[:0]
	for _, p := range order.PartialPayments {
		if p.ReceiptNumber != receiptNumber {
			kept = append(kept, p)
		}
	}
	order.PartialPayments = kept
	recomputeBalance(order)
	order.UpdatedAt = time.Now()
	cp := *order
	return &cp, nil
}

func recomputeBalance(order *models.Order) {
	order.RemainingBalance = order.TotalAmount - order.AmountPaid
	if order.RemainingBalance < 0 {
		order.RemainingBalance = 0
	}
	switch {
	case order.AmountPaid <= 0:
		order.PaymentStatus = models.PaymentStatusUnpaid
	case order.RemainingBalance <= 0:
		order.PaymentStatus = models.PaymentStatusPaid
	default:
		order.PaymentStatus = models.PaymentStatusPartial
	}
}

// ---------------- AuditStore ----------------

func (s *Memory) AppendAudit(ctx context.Context, entry *models.PaymentAuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Memory) ListAudit(ctx context.Context, filter reconcile.AuditFilter) ([]models.PaymentAuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentAuditLog
	for _, e := range s.audit {
		if filter.TransactionID != "" && e.TransactionID != filter.TransactionID {
			continue
		}
		if filter.OrderID != nil && (e.OrderID == nil || *e.OrderID != *filter.OrderID) {
			continue
		}
		if filter.AdminID != "" && e.AdminID != filter.AdminID {
			continue
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.Timestamp.After(filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
