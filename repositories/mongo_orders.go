package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/nairobi_verified/models"
)

type mongoOrderRepository struct {
	coll *mongo.Collection
}

func (r *mongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	stamp(&order.CreatedAt, &order.UpdatedAt)
	return insert(ctx, r.coll, order)
}

func (r *mongoOrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *mongoOrderRepository) Update(ctx context.Context, order *models.Order) error {
	stamp(&order.CreatedAt, &order.UpdatedAt)
	return replaceByID(ctx, r.coll, order.ID, order)
}

func (r *mongoOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	query := bson.M{}
	if filter.User != nil {
		query["user"] = *filter.User
	}
	if filter.Merchant != nil {
		query["items.merchant"] = *filter.Merchant
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return findPage[models.Order](ctx, r.coll, query, filter.Page)
}

func (r *mongoOrderRepository) HasDeliveredItem(ctx context.Context, userID, productID primitive.ObjectID) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{
		"user":          userID,
		"status":        models.OrderStatusDelivered,
		"items.product": productID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *mongoOrderRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *mongoOrderRepository) PaidRevenue(ctx context.Context) (float64, error) {
	return sumField(ctx, r.coll, bson.M{"paymentStatus": models.PaymentStatusPaid}, "total")
}

type mongoTransactionRepository struct {
	coll *mongo.Collection
}

func (r *mongoTransactionRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	stamp(&tx.CreatedAt, &tx.UpdatedAt)
	return insert(ctx, r.coll, tx)
}

func (r *mongoTransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoTransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	return r.findOne(ctx, bson.M{"transactionId": transactionID})
}

func (r *mongoTransactionRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentTransaction, error) {
	return r.findOne(ctx, bson.M{"mpesaDetails.checkoutRequestId": checkoutRequestID})
}

func (r *mongoTransactionRepository) FindLatestBySubscription(ctx context.Context, subscriptionID primitive.ObjectID) (*models.PaymentTransaction, error) {
	return r.findOne(ctx, bson.M{"relatedSubscription": subscriptionID})
}

func (r *mongoTransactionRepository) FindLatestByOrder(ctx context.Context, orderID primitive.ObjectID) (*models.PaymentTransaction, error) {
	return r.findOne(ctx, bson.M{"relatedOrder": orderID})
}

func (r *mongoTransactionRepository) findOne(ctx context.Context, filter bson.M) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if err := findOne(ctx, r.coll, filter, &tx, opts); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *mongoTransactionRepository) Update(ctx context.Context, tx *models.PaymentTransaction) error {
	stamp(&tx.CreatedAt, &tx.UpdatedAt)
	return replaceByID(ctx, r.coll, tx.ID, tx)
}

func (r *mongoTransactionRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, page Page) ([]models.PaymentTransaction, int64, error) {
	return findPage[models.PaymentTransaction](ctx, r.coll, bson.M{"user": userID}, page)
}

func (r *mongoTransactionRepository) SumCompleted(ctx context.Context, types ...string) (float64, error) {
	match := bson.M{"status": models.TransactionStatusCompleted}
	if len(types) > 0 {
		match["type"] = bson.M{"$in": types}
	}
	return sumField(ctx, r.coll, match, "amount")
}
