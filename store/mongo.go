package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	config "github.com/omotechhub-debug/OMOTECHY-sub004/config"
	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
	reconcile "github.com/omotechhub-debug/OMOTECHY-sub004/reconcile"
)

// Mongo implements the reconcile store interfaces on MongoDB. Transaction
// transitions are single conditional updates keyed on the current status,
// and order balance changes are single aggregation-pipeline updates, so
// neither can lose a concurrent write.
type Mongo struct {
	cfg *config.Config
}

func NewMongo(cfg *config.Config) *Mongo {
	return &Mongo{cfg: cfg}
}

func (s *Mongo) col(name string) *mongo.Collection {
	return s.cfg.MongoClient.Database(s.cfg.DBName).Collection(name)
}

// EnsureIndexes creates the indexes ingestion idempotency and the admin
// views rely on. Called once at startup.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.col("payment_transactions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "confirmation_status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("payment_transactions indexes: %w", err)
	}

	_, err = s.col("orders").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "customer_phone", Value: 1}, {Key: "remaining_balance", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("orders indexes: %w", err)
	}

	_, err = s.col("payment_audit_logs").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "transaction_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
		{Keys: bson.D{{Key: "admin_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("payment_audit_logs indexes: %w", err)
	}
	return nil
}

// ---------------- TransactionStore ----------------

func (s *Mongo) InsertTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	_, err := s.col("payment_transactions").InsertOne(ctx, tx)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("transaction %s already recorded: %w", tx.TransactionID, reconcile.ErrDuplicateTransaction)
	}
	return err
}

func (s *Mongo) GetTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := s.col("payment_transactions").
		FindOne(ctx, bson.M{"transaction_id": transactionID}).
		Decode(&tx)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, reconcile.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Mongo) Transition(ctx context.Context, transactionID string, from []string, change reconcile.StateChange) (*models.PaymentTransaction, error) {
	set := bson.M{
		"confirmation_status":   change.NewStatus,
		"is_connected_to_order": change.IsConnectedToOrder,
		"updated_at":            time.Now(),
	}
	unset := bson.M{}

	setOrUnset := func(field string, present bool, value interface{}) {
		if present {
			set[field] = value
		} else {
			unset[field] = ""
		}
	}
	setOrUnset("pending_order_id", change.PendingOrderID != nil, change.PendingOrderID)
	setOrUnset("connected_order_id", change.ConnectedOrderID != nil, change.ConnectedOrderID)
	setOrUnset("confirmed_by", change.ConfirmedBy != "", change.ConfirmedBy)
	setOrUnset("confirmed_by_name", change.ConfirmedByName != "", change.ConfirmedByName)
	setOrUnset("confirmation_notes", change.Notes != "", change.Notes)
	setOrUnset("confirmed_at", change.ConfirmedAt != nil, change.ConfirmedAt)

	filter := bson.M{
		"transaction_id":      transactionID,
		"confirmation_status": bson.M{"$in": from},
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var updated models.PaymentTransaction
	err := s.col("payment_transactions").
		FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&updated)
	if err == mongo.ErrNoDocuments {
		// Either the transaction is gone or a concurrent transition won.
		if _, getErr := s.GetTransaction(ctx, transactionID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("transaction %s not in state %v: %w", transactionID, from, reconcile.ErrInvalidState)
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Mongo) ListPendingWithCandidates(ctx context.Context) ([]models.PaymentTransaction, error) {
	return s.findTransactions(ctx, bson.M{
		"confirmation_status": models.StatusPending,
		"pending_order_id":    bson.M{"$exists": true, "$ne": nil},
	})
}

func (s *Mongo) ListUnmatched(ctx context.Context) ([]models.PaymentTransaction, error) {
	return s.findTransactions(ctx, bson.M{
		"confirmation_status":   models.StatusPending,
		"is_connected_to_order": false,
		"pending_order_id":      nil,
	})
}

func (s *Mongo) findTransactions(ctx context.Context, filter bson.M) ([]models.PaymentTransaction, error) {
	cursor, err := s.col("payment_transactions").
		Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var txs []models.PaymentTransaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// ---------------- OrderStore ----------------

func (s *Mongo) GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := s.col("orders").FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("order %s: %w", id.Hex(), reconcile.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Mongo) FindOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := s.col("orders").FindOne(ctx, bson.M{"order_number": orderNumber}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("order %s: %w", orderNumber, reconcile.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Mongo) FindCandidateOrders(ctx context.Context, phone string) ([]models.Order, error) {
	cursor, err := s.col("orders").Find(ctx, bson.M{
		"customer_phone":    phone,
		"remaining_balance": bson.M{"$gt": 0},
		"status":            bson.M{"$ne": "cancelled"},
	})
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Mongo) ApplyPayment(ctx context.Context, orderID primitive.ObjectID, p reconcile.PaymentApplication) (*models.Order, error) {
	entry := models.PartialPayment{
		Amount:        p.Amount,
		Date:          p.Date,
		ReceiptNumber: p.ReceiptNumber,
		Phone:         p.Phone,
		Method:        p.Method,
	}
	// Aggregation-pipeline update: the increment and the derived-field
	// recompute are one atomic operation, never a read-modify-save cycle.
	update := bson.A{bson.M{"$set": bson.M{
		"amount_paid": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$amount_paid", 0}}, p.Amount}},
		"partial_payments": bson.M{"$concatArrays": bson.A{
			bson.M{"$ifNull": bson.A{"$partial_payments", bson.A{}}},
			bson.A{entry},
		}},
		"updated_at": time.Now(),
	}}}
	return s.updateOrderPipeline(ctx, orderID, append(update, derivedBalanceStages()...))
}

func (s *Mongo) ReversePayment(ctx context.Context, orderID primitive.ObjectID, amount float64, receiptNumber string) (*models.Order, error) {
	update := bson.A{bson.M{"$set": bson.M{
		"amount_paid": bson.M{"$max": bson.A{0,
			bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$amount_paid", 0}}, amount}},
		}},
		"partial_payments": bson.M{"$filter": bson.M{
			"input": bson.M{"$ifNull": bson.A{"$partial_payments", bson.A{}}},
			"as":    "p",
			"cond":  bson.M{"$ne": bson.A{"$$p.receipt_number", receiptNumber}},
		}},
		"updated_at": time.Now(),
	}}}
	return s.updateOrderPipeline(ctx, orderID, append(update, derivedBalanceStages()...))
}

// derivedBalanceStages recomputes remaining_balance and payment_status from
// total_amount and amount_paid. remaining_balance is clamped at zero.
func derivedBalanceStages() bson.A {
	return bson.A{
		bson.M{"$set": bson.M{
			"remaining_balance": bson.M{"$max": bson.A{0,
				bson.M{"$subtract": bson.A{"$total_amount", "$amount_paid"}},
			}},
		}},
		bson.M{"$set": bson.M{
			"payment_status": bson.M{"$switch": bson.M{
				"branches": bson.A{
					bson.M{"case": bson.M{"$lte": bson.A{"$amount_paid", 0}}, "then": models.PaymentStatusUnpaid},
					bson.M{"case": bson.M{"$lte": bson.A{"$remaining_balance", 0}}, "then": models.PaymentStatusPaid},
				},
				"default": models.PaymentStatusPartial,
			}},
		}},
	}
}

func (s *Mongo) updateOrderPipeline(ctx context.Context, orderID primitive.ObjectID, pipeline bson.A) (*models.Order, error) {
	var order models.Order
	err := s.col("orders").
		FindOneAndUpdate(ctx, bson.M{"_id": orderID}, pipeline,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("order %s: %w", orderID.Hex(), reconcile.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ---------------- AuditStore ----------------

func (s *Mongo) AppendAudit(ctx context.Context, entry *models.PaymentAuditLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.col("payment_audit_logs").InsertOne(ctx, entry)
	return err
}

func (s *Mongo) ListAudit(ctx context.Context, filter reconcile.AuditFilter) ([]models.PaymentAuditLog, error) {
	query := bson.M{}
	if filter.TransactionID != "" {
		query["transaction_id"] = filter.TransactionID
	}
	if filter.OrderID != nil {
		query["order_id"] = filter.OrderID
	}
	if filter.AdminID != "" {
		query["admin_id"] = filter.AdminID
	}
	timeRange := bson.M{}
	if !filter.From.IsZero() {
		timeRange["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		timeRange["$lte"] = filter.To
	}
	if len(timeRange) > 0 {
		query["timestamp"] = timeRange
	}

	cursor, err := s.col("payment_audit_logs").
		Find(ctx, query, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(500))
	if err != nil {
		return nil, err
	}
	var entries []models.PaymentAuditLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
