package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/omotechhub-debug/OMOTECHY-sub004/config"
	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	reconcile "github.com/omotechhub-debug/OMOTECHY-sub004/reconcile"
	utils "github.com/omotechhub-debug/OMOTECHY-sub004/utils"
)

// mpesaC2BPayload is the Daraja C2B confirmation body. Amounts and times
// arrive as strings.
type mpesaC2BPayload struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"` // yyyyMMddHHmmss
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
	MiddleName        string `json:"MiddleName"`
	LastName          string `json:"LastName"`
}

// ---------------- M-PESA CALLBACK ----------------

// MpesaCallback ingests a C2B payment confirmation. Recording is idempotent
// on TransID, so provider retries are acknowledged without a second record.
// The provider only cares that we answer ResultCode 0 once the payment is
// safely stored.
func MpesaCallback(svc ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload mpesaC2BPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ResultCode": "C2B00016", "ResultDesc": "invalid payload"})
			return
		}

		amount, err := strconv.ParseFloat(payload.TransAmount, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ResultCode": "C2B00013", "ResultDesc": "invalid amount"})
			return
		}

		phone, err := utils.NormalizePhone(payload.MSISDN)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ResultCode": "C2B00011", "ResultDesc": "invalid msisdn"})
			return
		}

		transTime, err := time.Parse("20060102150405", payload.TransTime)
		if err != nil {
			transTime = time.Now()
		}

		txType := models.TransactionTypeC2BPayBill
		if strings.EqualFold(payload.TransactionType, "CustomerMerchantPayment") {
			txType = models.TransactionTypeSTKPush
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := svc.Ingest(ctx, reconcile.Notification{
			TransactionID:  payload.TransID,
			ReceiptNumber:  payload.TransID,
			Amount:         amount,
			Phone:          phone,
			PayerName:      strings.TrimSpace(payload.FirstName + " " + payload.MiddleName + " " + payload.LastName),
			Time:           transTime,
			Type:           txType,
			OrderReference: strings.TrimSpace(payload.BillRefNumber),
		})
		if err != nil {
			reconcileError(c, err)
			return
		}

		if result.AutoMatched && result.Order != nil {
			msg := fmt.Sprintf("Payment of KES %.2f received for order %s. Balance: KES %.2f. Thank you!",
				amount, result.Order.OrderNumber, result.Order.RemainingBalance)
			if err := utils.SendSMS(phone, msg); err != nil {
				log.Printf("confirmation SMS to %s failed: %v", phone, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
	}
}

// ---------------- LIST ----------------

func ListTransactions(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		col := cfg.MongoClient.Database(cfg.DBName).Collection("payment_transactions")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// --- Build filter ---
		filter := bson.M{}
		if status := c.Query("status"); status != "" {
			filter["confirmation_status"] = status
		}
		if phone := c.Query("phone"); phone != "" {
			if normalized, err := utils.NormalizePhone(phone); err == nil {
				filter["phone"] = normalized
			} else {
				filter["phone"] = phone
			}
		}

		// --- Fetch data ---
		cursor, err := col.Find(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch transactions"})
			return
		}

		var transactions []models.PaymentTransaction
		if err := cursor.All(ctx, &transactions); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode transactions"})
			return
		}

		if len(transactions) == 0 {
			c.JSON(http.StatusOK, []models.PaymentTransaction{})
			return
		}

		// --- Pick the most recently updated transaction ---
		latest := transactions[0]
		for _, tx := range transactions {
			if tx.UpdatedAt.After(latest.UpdatedAt) {
				latest = tx
			}
		}

		// --- Generate ETag from latest transaction ---
		etag := utils.GenerateETag(latest.ID, latest.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		// --- Add Last-Modified from latest transaction ---
		c.Header("Last-Modified", latest.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, transactions)
	}
}

// ---------------- GET ----------------

// GetTransaction looks a transaction up by provider transaction id, falling
// back to the document id for older admin UI links.
func GetTransaction(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		filter := bson.M{"transaction_id": id}
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			filter = bson.M{"$or": bson.A{
				bson.M{"transaction_id": id},
				bson.M{"_id": oid},
			}}
		}

		var tx models.PaymentTransaction
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := cfg.MongoClient.Database(cfg.DBName).
			Collection("payment_transactions").
			FindOne(ctx, filter).
			Decode(&tx)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}

		etag := utils.GenerateETag(tx.ID, tx.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, tx)
	}
}
