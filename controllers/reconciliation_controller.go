package controllers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	reconcile "github.com/omotechhub-debug/OMOTECHY-sub004/reconcile"
)

// ReconciliationService is the slice of the workflow these handlers need.
type ReconciliationService interface {
	Ingest(ctx context.Context, n reconcile.Notification) (*reconcile.IngestResult, error)
	Confirm(ctx context.Context, transactionID string, orderID primitive.ObjectID, admin reconcile.Identity, notes string) (*models.PaymentTransaction, *models.Order, error)
	Reject(ctx context.Context, transactionID string, admin reconcile.Identity, reason string) (*models.PaymentTransaction, error)
	Unlink(ctx context.Context, transactionID string, admin reconcile.Identity, reason string) (*models.PaymentTransaction, *models.Order, error)
	PendingReviews(ctx context.Context) ([]reconcile.PendingReview, error)
	Unmatched(ctx context.Context) ([]models.PaymentTransaction, error)
	AuditTrail(ctx context.Context, filter reconcile.AuditFilter) ([]models.PaymentAuditLog, error)
}

// adminIdentity reads the authenticated admin out of the gin context. The
// middleware put it there; the workflow never reaches into ambient state
// itself.
func adminIdentity(c *gin.Context) reconcile.Identity {
	return reconcile.Identity{
		ID:   c.GetString("user_id"),
		Name: c.GetString("name"),
		Role: c.GetString("role"),
	}
}

// reconcileError maps workflow errors onto HTTP responses. Business-rule
// errors carry their message; anything else is logged and kept generic.
func reconcileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reconcile.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("reconciliation error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ---------------- PENDING / UNMATCHED VIEWS ----------------

func ListPendingReconciliations(svc ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		reviews, err := svc.PendingReviews(ctx)
		if err != nil {
			reconcileError(c, err)
			return
		}
		if reviews == nil {
			reviews = []reconcile.PendingReview{}
		}
		c.JSON(http.StatusOK, reviews)
	}
}

func ListUnmatchedTransactions(svc ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		txs, err := svc.Unmatched(ctx)
		if err != nil {
			reconcileError(c, err)
			return
		}
		if txs == nil {
			txs = []models.PaymentTransaction{}
		}
		c.JSON(http.StatusOK, txs)
	}
}

// ---------------- CONFIRM ----------------

func ConfirmTransaction(svc ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			OrderID string `json:"order_id" binding:"required"`
			Notes   string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		orderID, err := primitive.ObjectIDFromHex(input.OrderID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, order, err := svc.Confirm(ctx, c.Param("id"), orderID, adminIdentity(c), input.Notes)
		if err != nil {
			reconcileError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":     "transaction confirmed",
			"transaction": tx,
			"order":       order,
		})
	}
}

// ---------------- REJECT ----------------

func RejectTransaction(svc ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := svc.Reject(ctx, c.Param("id"), adminIdentity(c), input.Reason)
		if err != nil {
			reconcileError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":     "transaction rejected",
			"transaction": tx,
		})
	}
}

// ---------------- UNLINK ----------------

func UnlinkTransaction(svc ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Reason string `json:"reason"`
		}
		// Body is optional for unlink.
		if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, order, err := svc.Unlink(ctx, c.Param("id"), adminIdentity(c), input.Reason)
		if err != nil {
			reconcileError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":     "transaction unlinked",
			"transaction": tx,
			"order":       order,
		})
	}
}

// ---------------- AUDIT TRAIL ----------------

func ListAuditTrail(svc ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := reconcile.AuditFilter{
			TransactionID: c.Query("transaction_id"),
			AdminID:       c.Query("admin_id"),
		}
		if oid := c.Query("order_id"); oid != "" {
			orderID, err := primitive.ObjectIDFromHex(oid)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
				return
			}
			filter.OrderID = &orderID
		}
		if from := c.Query("from"); from != "" {
			t, err := time.Parse(time.RFC3339, from)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from time, use RFC3339"})
				return
			}
			filter.From = t
		}
		if to := c.Query("to"); to != "" {
			t, err := time.Parse(time.RFC3339, to)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to time, use RFC3339"})
				return
			}
			filter.To = t
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		entries, err := svc.AuditTrail(ctx, filter)
		if err != nil {
			reconcileError(c, err)
			return
		}
		if entries == nil {
			entries = []models.PaymentAuditLog{}
		}
		c.JSON(http.StatusOK, entries)
	}
}
