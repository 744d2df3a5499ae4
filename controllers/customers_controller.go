package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	config "github.com/omotechhub-debug/OMOTECHY-sub004/config"
	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	utils "github.com/omotechhub-debug/OMOTECHY-sub004/utils"
)

// ---------------- CREATE ----------------
func CreateCustomer(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name    string `json:"name" binding:"required"`
			Phone   string `json:"phone" binding:"required"`
			Email   string `json:"email"`
			Address string `json:"address"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		phone, err := utils.NormalizePhone(input.Phone)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
			return
		}

		now := time.Now()
		customer := models.Customer{
			ID:        primitive.NewObjectID(),
			Name:      input.Name,
			Phone:     phone,
			Email:     input.Email,
			Address:   input.Address,
			CreatedAt: now,
			UpdatedAt: now,
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("customers")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := col.InsertOne(ctx, customer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create customer"})
			return
		}

		c.JSON(http.StatusCreated, customer)
	}
}

// ---------------- LIST ----------------
func ListCustomers(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		col := cfg.MongoClient.Database(cfg.DBName).Collection("customers")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// --- Build filter ---
		filter := bson.M{}
		if q := c.Query("q"); q != "" {
			filter["name"] = bson.M{"$regex": q, "$options": "i"}
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch customers"})
			return
		}

		var customers []models.Customer
		if err := cursor.All(ctx, &customers); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode customers"})
			return
		}

		if len(customers) == 0 {
			c.JSON(http.StatusOK, []models.Customer{})
			return
		}

		// --- Pick the most recently updated customer ---
		latest := customers[0]
		for _, cu := range customers {
			if cu.UpdatedAt.After(latest.UpdatedAt) {
				latest = cu
			}
		}

		// --- Generate ETag from latest customer ---
		etag := utils.GenerateETag(latest.ID, latest.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.Header("Last-Modified", latest.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, customers)
	}
}

// ---------------- GET ----------------

// GetCustomer returns a customer enriched with their recent orders.
func GetCustomer(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}

		db := cfg.MongoClient.Database(cfg.DBName)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var customer models.Customer
		err = db.Collection("customers").FindOne(ctx, bson.M{"_id": oid}).Decode(&customer)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
			return
		}

		// --- Enrich with recent orders ---
		cursor, err := db.Collection("orders").Find(ctx,
			bson.M{"$or": bson.A{
				bson.M{"customer_id": oid},
				bson.M{"customer_phone": customer.Phone},
			}},
			options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(10))
		if err == nil {
			var orders []models.Order
			if err := cursor.All(ctx, &orders); err == nil {
				customer.RecentOrders = orders
			}
		}

		c.JSON(http.StatusOK, customer)
	}
}

// ---------------- UPDATE ----------------
func UpdateCustomer(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}

		var input struct {
			Name    string `json:"name"`
			Phone   string `json:"phone"`
			Email   string `json:"email"`
			Address string `json:"address"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		update := bson.M{"updated_at": time.Now()}
		if input.Name != "" {
			update["name"] = input.Name
		}
		if input.Phone != "" {
			phone, err := utils.NormalizePhone(input.Phone)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
				return
			}
			update["phone"] = phone
		}
		if input.Email != "" {
			update["email"] = input.Email
		}
		if input.Address != "" {
			update["address"] = input.Address
		}

		if len(update) == 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("customers")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": update})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update customer"})
			return
		}
		if res.MatchedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "customer updated", "id": oid.Hex()})
	}
}

// ---------------- DELETE ----------------
func DeleteCustomer(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("customers")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := col.DeleteOne(ctx, bson.M{"_id": oid})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete customer"})
			return
		}
		if res.DeletedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "customer deleted", "id": oid.Hex()})
	}
}
