package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	reconcile "github.com/omotechhub-debug/OMOTECHY-sub004/reconcile"
)

// MockReconciliationService implements ReconciliationService for testing.
type MockReconciliationService struct {
	IngestFunc         func(ctx context.Context, n reconcile.Notification) (*reconcile.IngestResult, error)
	ConfirmFunc        func(ctx context.Context, transactionID string, orderID primitive.ObjectID, admin reconcile.Identity, notes string) (*models.PaymentTransaction, *models.Order, error)
	RejectFunc         func(ctx context.Context, transactionID string, admin reconcile.Identity, reason string) (*models.PaymentTransaction, error)
	UnlinkFunc         func(ctx context.Context, transactionID string, admin reconcile.Identity, reason string) (*models.PaymentTransaction, *models.Order, error)
	PendingReviewsFunc func(ctx context.Context) ([]reconcile.PendingReview, error)
	UnmatchedFunc      func(ctx context.Context) ([]models.PaymentTransaction, error)
	AuditTrailFunc     func(ctx context.Context, filter reconcile.AuditFilter) ([]models.PaymentAuditLog, error)
}

func (m *MockReconciliationService) Ingest(ctx context.Context, n reconcile.Notification) (*reconcile.IngestResult, error) {
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, n)
	}
	return &reconcile.IngestResult{Transaction: &models.PaymentTransaction{}}, nil
}

func (m *MockReconciliationService) Confirm(ctx context.Context, transactionID string, orderID primitive.ObjectID, admin reconcile.Identity, notes string) (*models.PaymentTransaction, *models.Order, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, transactionID, orderID, admin, notes)
	}
	return &models.PaymentTransaction{}, &models.Order{}, nil
}

func (m *MockReconciliationService) Reject(ctx context.Context, transactionID string, admin reconcile.Identity, reason string) (*models.PaymentTransaction, error) {
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, transactionID, admin, reason)
	}
	return &models.PaymentTransaction{}, nil
}

func (m *MockReconciliationService) Unlink(ctx context.Context, transactionID string, admin reconcile.Identity, reason string) (*models.PaymentTransaction, *models.Order, error) {
	if m.UnlinkFunc != nil {
		return m.UnlinkFunc(ctx, transactionID, admin, reason)
	}
	return &models.PaymentTransaction{}, &models.Order{}, nil
}

func (m *MockReconciliationService) PendingReviews(ctx context.Context) ([]reconcile.PendingReview, error) {
	if m.PendingReviewsFunc != nil {
		return m.PendingReviewsFunc(ctx)
	}
	return nil, nil
}

func (m *MockReconciliationService) Unmatched(ctx context.Context) ([]models.PaymentTransaction, error) {
	if m.UnmatchedFunc != nil {
		return m.UnmatchedFunc(ctx)
	}
	return nil, nil
}

func (m *MockReconciliationService) AuditTrail(ctx context.Context, filter reconcile.AuditFilter) ([]models.PaymentAuditLog, error) {
	if m.AuditTrailFunc != nil {
		return m.AuditTrailFunc(ctx, filter)
	}
	return nil, nil
}

func setupRouter(svc ReconciliationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// Identity normally injected by the auth middleware.
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "admin-1")
		c.Set("name", "Jane Admin")
		c.Set("role", "admin")
	})
	r.POST("/payments/mpesa/callback", MpesaCallback(svc))
	r.GET("/payments/reconcile/pending", ListPendingReconciliations(svc))
	r.GET("/payments/reconcile/unmatched", ListUnmatchedTransactions(svc))
	r.POST("/payments/reconcile/:id/confirm", ConfirmTransaction(svc))
	r.POST("/payments/reconcile/:id/reject", RejectTransaction(svc))
	r.POST("/payments/reconcile/:id/unlink", UnlinkTransaction(svc))
	r.GET("/payments/audit", ListAuditTrail(svc))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConfirmTransactionPassesIdentity(t *testing.T) {
	var gotAdmin reconcile.Identity
	var gotTxID string
	orderID := primitive.NewObjectID()

	svc := &MockReconciliationService{
		ConfirmFunc: func(ctx context.Context, transactionID string, oid primitive.ObjectID, admin reconcile.Identity, notes string) (*models.PaymentTransaction, *models.Order, error) {
			gotAdmin = admin
			gotTxID = transactionID
			return &models.PaymentTransaction{TransactionID: transactionID}, &models.Order{ID: oid}, nil
		},
	}
	r := setupRouter(svc)

	w := doJSON(t, r, "POST", "/payments/reconcile/TX1/confirm",
		gin.H{"order_id": orderID.Hex(), "notes": "ok"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if gotTxID != "TX1" {
		t.Errorf("transaction id = %s, want TX1", gotTxID)
	}
	if gotAdmin.ID != "admin-1" || gotAdmin.Name != "Jane Admin" {
		t.Errorf("admin identity not threaded through: %+v", gotAdmin)
	}
}

func TestConfirmTransactionErrorMapping(t *testing.T) {
	orderID := primitive.NewObjectID().Hex()
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid state", reconcile.ErrInvalidState, http.StatusConflict},
		{"not found", reconcile.ErrNotFound, http.StatusNotFound},
		{"validation", reconcile.ErrValidation, http.StatusBadRequest},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &MockReconciliationService{
				ConfirmFunc: func(ctx context.Context, transactionID string, oid primitive.ObjectID, admin reconcile.Identity, notes string) (*models.PaymentTransaction, *models.Order, error) {
					return nil, nil, tc.err
				},
			}
			r := setupRouter(svc)
			w := doJSON(t, r, "POST", "/payments/reconcile/TX1/confirm", gin.H{"order_id": orderID})
			if w.Code != tc.code {
				t.Errorf("status = %d, want %d", w.Code, tc.code)
			}
		})
	}
}

func TestConfirmTransactionRequiresOrderID(t *testing.T) {
	r := setupRouter(&MockReconciliationService{})

	w := doJSON(t, r, "POST", "/payments/reconcile/TX1/confirm", gin.H{"notes": "missing order"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, "POST", "/payments/reconcile/TX1/confirm", gin.H{"order_id": "not-a-hex-id"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed order id", w.Code)
	}
}

func TestRejectTransactionRequiresReason(t *testing.T) {
	r := setupRouter(&MockReconciliationService{})
	w := doJSON(t, r, "POST", "/payments/reconcile/TX1/reject", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMpesaCallbackAcceptsValidPayload(t *testing.T) {
	var got reconcile.Notification
	svc := &MockReconciliationService{
		IngestFunc: func(ctx context.Context, n reconcile.Notification) (*reconcile.IngestResult, error) {
			got = n
			return &reconcile.IngestResult{Transaction: &models.PaymentTransaction{TransactionID: n.TransactionID}}, nil
		},
	}
	r := setupRouter(svc)

	w := doJSON(t, r, "POST", "/payments/mpesa/callback", gin.H{
		"TransactionType":   "Pay Bill",
		"TransID":           "RKTQDM7W6S",
		"TransTime":         "20260829063845",
		"TransAmount":       "1500.00",
		"BusinessShortCode": "600638",
		"BillRefNumber":     "ORD-ABC123",
		"MSISDN":            "0712345678",
		"FirstName":         "John",
		"LastName":          "Doe",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ResultCode"] != float64(0) {
		t.Errorf("ResultCode = %v, want 0", resp["ResultCode"])
	}

	if got.TransactionID != "RKTQDM7W6S" {
		t.Errorf("transaction id = %s", got.TransactionID)
	}
	if got.Amount != 1500 {
		t.Errorf("amount = %.2f, want 1500", got.Amount)
	}
	if got.Phone != "254712345678" {
		t.Errorf("phone = %s, want normalized 254712345678", got.Phone)
	}
	if got.OrderReference != "ORD-ABC123" {
		t.Errorf("order reference = %s", got.OrderReference)
	}
	if got.PayerName != "John Doe" {
		t.Errorf("payer name = %q", got.PayerName)
	}
}

func TestMpesaCallbackRejectsBadAmount(t *testing.T) {
	r := setupRouter(&MockReconciliationService{})
	w := doJSON(t, r, "POST", "/payments/mpesa/callback", gin.H{
		"TransID":     "RKTQDM7W6S",
		"TransAmount": "one thousand",
		"MSISDN":      "254712345678",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMpesaCallbackDuplicateStillAccepted(t *testing.T) {
	svc := &MockReconciliationService{
		IngestFunc: func(ctx context.Context, n reconcile.Notification) (*reconcile.IngestResult, error) {
			return &reconcile.IngestResult{
				Transaction: &models.PaymentTransaction{TransactionID: n.TransactionID},
				Duplicate:   true,
			}, nil
		},
	}
	r := setupRouter(svc)
	w := doJSON(t, r, "POST", "/payments/mpesa/callback", gin.H{
		"TransID":     "RKTQDM7W6S",
		"TransTime":   "20260829063845",
		"TransAmount": "100",
		"MSISDN":      "254712345678",
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for idempotent duplicate", w.Code)
	}
}

func TestListPendingReconciliations(t *testing.T) {
	orderID := primitive.NewObjectID()
	svc := &MockReconciliationService{
		PendingReviewsFunc: func(ctx context.Context) ([]reconcile.PendingReview, error) {
			return []reconcile.PendingReview{{
				Transaction: models.PaymentTransaction{
					TransactionID:      "TX1",
					ConfirmationStatus: models.StatusPending,
					PendingOrderID:     &orderID,
				},
				Candidate: &models.Order{ID: orderID, OrderNumber: "ORD-1"},
			}}, nil
		},
	}
	r := setupRouter(svc)

	w := doJSON(t, r, "GET", "/payments/reconcile/pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var reviews []reconcile.PendingReview
	if err := json.Unmarshal(w.Body.Bytes(), &reviews); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Candidate == nil || reviews[0].Candidate.OrderNumber != "ORD-1" {
		t.Errorf("reviews = %+v", reviews)
	}
}

func TestListUnmatchedEmptyIsArray(t *testing.T) {
	r := setupRouter(&MockReconciliationService{})
	w := doJSON(t, r, "GET", "/payments/reconcile/unmatched", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListAuditTrailFilters(t *testing.T) {
	var got reconcile.AuditFilter
	svc := &MockReconciliationService{
		AuditTrailFunc: func(ctx context.Context, filter reconcile.AuditFilter) ([]models.PaymentAuditLog, error) {
			got = filter
			return nil, nil
		},
	}
	r := setupRouter(svc)

	w := doJSON(t, r, "GET", "/payments/audit?transaction_id=TX1&admin_id=admin-1&from=2026-01-01T00:00:00Z", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got.TransactionID != "TX1" || got.AdminID != "admin-1" || got.From.IsZero() {
		t.Errorf("filter = %+v", got)
	}

	w = doJSON(t, r, "GET", "/payments/audit?order_id=zzz", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad order id", w.Code)
	}
}

func TestUnlinkTransactionNoBody(t *testing.T) {
	called := false
	svc := &MockReconciliationService{
		UnlinkFunc: func(ctx context.Context, transactionID string, admin reconcile.Identity, reason string) (*models.PaymentTransaction, *models.Order, error) {
			called = true
			return &models.PaymentTransaction{}, &models.Order{}, nil
		},
	}
	r := setupRouter(svc)

	req := httptest.NewRequest("POST", "/payments/reconcile/TX1/unlink", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !called {
		t.Error("unlink not invoked")
	}
}
