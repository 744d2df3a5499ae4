package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/omotechhub-debug/OMOTECHY-sub004/config"
	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	utils "github.com/omotechhub-debug/OMOTECHY-sub004/utils"
)

// Fulfilment statuses an admin may set. Payment fields are never writable
// here; only the reconciliation workflow touches them.
var orderStatuses = map[string]bool{
	"received":   true,
	"processing": true,
	"ready":      true,
	"delivered":  true,
	"cancelled":  true,
}

func orderNumberFor(id primitive.ObjectID) string {
	return "ORD-" + strings.ToUpper(id.Hex()[len(id.Hex())-6:])
}

// ---------------- CREATE ----------------
func CreateOrder(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			CustomerID    string             `json:"customer_id"`
			CustomerName  string             `json:"customer_name" binding:"required"`
			CustomerPhone string             `json:"customer_phone" binding:"required"`
			Items         []models.OrderItem `json:"items"`
			TotalAmount   float64            `json:"total_amount"`
			Notes         string             `json:"notes"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		phone, err := utils.NormalizePhone(input.CustomerPhone)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer phone"})
			return
		}

		total := input.TotalAmount
		if total == 0 {
			for _, item := range input.Items {
				total += item.Price * float64(item.Quantity)
			}
		}
		if total <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "total amount must be greater than 0"})
			return
		}

		var customerID primitive.ObjectID
		if input.CustomerID != "" {
			customerID, err = primitive.ObjectIDFromHex(input.CustomerID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
				return
			}
		}

		now := time.Now()
		id := primitive.NewObjectID()
		order := models.Order{
			ID:               id,
			OrderNumber:      orderNumberFor(id),
			CustomerID:       customerID,
			CustomerName:     input.CustomerName,
			CustomerPhone:    phone,
			Items:            input.Items,
			TotalAmount:      total,
			AmountPaid:       0,
			RemainingBalance: total,
			PaymentStatus:    models.PaymentStatusUnpaid,
			Status:           "received",
			Notes:            input.Notes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("orders")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := col.InsertOne(ctx, order); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create order"})
			return
		}

		c.JSON(http.StatusCreated, order)
	}
}

// ---------------- LIST ----------------
func ListOrders(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		col := cfg.MongoClient.Database(cfg.DBName).Collection("orders")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// --- Build filter ---
		filter := bson.M{}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}
		if ps := c.Query("payment_status"); ps != "" {
			filter["payment_status"] = ps
		}
		if phone := c.Query("phone"); phone != "" {
			if normalized, err := utils.NormalizePhone(phone); err == nil {
				filter["customer_phone"] = normalized
			} else {
				filter["customer_phone"] = phone
			}
		}
		if cid := c.Query("customer_id"); cid != "" {
			if oid, err := primitive.ObjectIDFromHex(cid); err == nil {
				filter["customer_id"] = oid
			}
		}

		// --- Fetch data ---
		cursor, err := col.Find(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch orders"})
			return
		}

		var orders []models.Order
		if err := cursor.All(ctx, &orders); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode orders"})
			return
		}

		if len(orders) == 0 {
			c.JSON(http.StatusOK, []models.Order{})
			return
		}

		// --- Pick the most recently updated order ---
		latest := orders[0]
		for _, o := range orders {
			if o.UpdatedAt.After(latest.UpdatedAt) {
				latest = o
			}
		}

		// --- Generate ETag from latest order ---
		etag := utils.GenerateETag(latest.ID, latest.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		// --- Add Last-Modified from latest order ---
		c.Header("Last-Modified", latest.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, orders)
	}
}

// ---------------- GET ----------------
func GetOrder(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}

		var order models.Order
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err = cfg.MongoClient.Database(cfg.DBName).
			Collection("orders").
			FindOne(ctx, bson.M{"_id": oid}).
			Decode(&order)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}

		etag := utils.GenerateETag(order.ID, order.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, order)
	}
}

// ---------------- UPDATE STATUS ----------------
func UpdateOrderStatus(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}

		var input struct {
			Status string `json:"status"`
			Notes  string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		update := bson.M{"updated_at": time.Now()}
		if input.Status != "" {
			if !orderStatuses[input.Status] {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order status"})
				return
			}
			update["status"] = input.Status
		}
		if input.Notes != "" {
			update["notes"] = input.Notes
		}

		if len(update) == 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("orders")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": update})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order"})
			return
		}
		if res.MatchedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "order updated", "id": oid.Hex()})
	}
}

// ---------------- ATTACHMENTS ----------------

// AddOrderAttachments uploads receipt/garment photos for an order.
func AddOrderAttachments(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
			return
		}

		files := form.File["attachments"] // key must be "attachments"
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no attachments provided"})
			return
		}

		var urls []string
		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
				return
			}

			url, err := utils.UploadToCloudinary(file, fileHeader)
			file.Close()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "attachment upload failed",
					"details": err.Error(),
					"file":    fileHeader.Filename,
				})
				return
			}

			urls = append(urls, url)
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("orders")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
			"$push": bson.M{"attachments": bson.M{"$each": urls}},
			"$set":  bson.M{"updated_at": time.Now()},
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save attachments"})
			return
		}
		if res.MatchedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "attachments added", "urls": urls})
	}
}

// ---------------- DELETE ----------------
func DeleteOrder(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("orders")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var existing models.Order
		if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&existing); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}

		// Orders with money applied are financial records; they are
		// cancelled, never deleted.
		if existing.PaymentStatus != models.PaymentStatusUnpaid {
			c.JSON(http.StatusConflict, gin.H{"error": "order has payments, cancel it instead"})
			return
		}

		res, err := col.DeleteOne(ctx, bson.M{"_id": oid})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete order"})
			return
		}
		if res.DeletedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}

		for _, img := range existing.Attachments {
			utils.DeleteFromCloudinary(img)
		}

		c.JSON(http.StatusOK, gin.H{"message": "order deleted", "id": oid.Hex()})
	}
}
