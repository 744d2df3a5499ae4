package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	reconcile "github.com/omotechhub-debug/OMOTECHY-sub004/reconcile"
)

func pendingTx(id string) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		TransactionID:      id,
		Amount:             100,
		Phone:              "254712345678",
		ConfirmationStatus: models.StatusPending,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func TestInsertTransactionRejectsDuplicates(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	if err := mem.InsertTransaction(ctx, pendingTx("DUP")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := mem.InsertTransaction(ctx, pendingTx("DUP"))
	if !errors.Is(err, reconcile.ErrDuplicateTransaction) {
		t.Errorf("second insert = %v, want ErrDuplicateTransaction", err)
	}
}

func TestTransitionIsCompareAndSwap(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	if err := mem.InsertTransaction(ctx, pendingTx("CAS")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mem.Transition(ctx, "CAS",
				[]string{models.StatusPending},
				reconcile.StateChange{NewStatus: models.StatusRejected})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, reconcile.ErrInvalidState) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestTransitionDistinguishesMissingFromWrongState(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	_, err := mem.Transition(ctx, "NOPE", []string{models.StatusPending},
		reconcile.StateChange{NewStatus: models.StatusRejected})
	if !errors.Is(err, reconcile.ErrNotFound) {
		t.Errorf("missing transaction = %v, want ErrNotFound", err)
	}
}

func TestApplyPaymentIsCommutativeUnderConcurrency(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	order := &models.Order{TotalAmount: 10000}
	mem.SeedOrder(order)

	const payers = 20
	var wg sync.WaitGroup
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := mem.ApplyPayment(ctx, order.ID, reconcile.PaymentApplication{
				Amount:        100,
				Date:          time.Now(),
				ReceiptNumber: fmt.Sprintf("R%02d", i),
				Method:        "mpesa",
			})
			if err != nil {
				t.Errorf("ApplyPayment: %v", err)
			}
		}(i)
	}
	wg.Wait()

	after, err := mem.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if after.AmountPaid != payers*100 {
		t.Errorf("amount paid = %.2f, want %d (no lost updates)", after.AmountPaid, payers*100)
	}
	if after.RemainingBalance != 10000-payers*100 {
		t.Errorf("remaining balance = %.2f, want %d", after.RemainingBalance, 10000-payers*100)
	}
	if len(after.PartialPayments) != payers {
		t.Errorf("partial payments = %d, want %d", len(after.PartialPayments), payers)
	}
	if after.PaymentStatus != models.PaymentStatusPartial {
		t.Errorf("payment status = %s, want partial", after.PaymentStatus)
	}
}

func TestReversePaymentClampsAtZero(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	order := &models.Order{TotalAmount: 500}
	mem.SeedOrder(order)

	if _, err := mem.ApplyPayment(ctx, order.ID, reconcile.PaymentApplication{
		Amount: 200, Date: time.Now(), ReceiptNumber: "R1", Method: "mpesa",
	}); err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}

	// Reversing more than was paid still floors at zero.
	after, err := mem.ReversePayment(ctx, order.ID, 300, "R1")
	if err != nil {
		t.Fatalf("ReversePayment: %v", err)
	}
	if after.AmountPaid != 0 {
		t.Errorf("amount paid = %.2f, want 0", after.AmountPaid)
	}
	if after.RemainingBalance != 500 {
		t.Errorf("remaining balance = %.2f, want 500", after.RemainingBalance)
	}
	if after.PaymentStatus != models.PaymentStatusUnpaid {
		t.Errorf("payment status = %s, want unpaid", after.PaymentStatus)
	}
	if len(after.PartialPayments) != 0 {
		t.Errorf("partial payment entry not removed: %+v", after.PartialPayments)
	}
}

func TestDerivedFieldsNeverNegative(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	order := &models.Order{TotalAmount: 100}
	mem.SeedOrder(order)

	after, err := mem.ApplyPayment(ctx, order.ID, reconcile.PaymentApplication{
		Amount: 250, Date: time.Now(), ReceiptNumber: "R1", Method: "mpesa",
	})
	if err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}
	if after.RemainingBalance != 0 {
		t.Errorf("remaining balance = %.2f, want clamped 0", after.RemainingBalance)
	}
	if after.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("payment status = %s, want paid", after.PaymentStatus)
	}
}
