package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/nairobi_verified/models"
)

type mongoProductRepository struct {
	coll *mongo.Collection
}

func (r *mongoProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	stamp(&product.CreatedAt, &product.UpdatedAt)
	return insert(ctx, r.coll, product)
}

func (r *mongoProductRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *mongoProductRepository) Update(ctx context.Context, product *models.Product) error {
	stamp(&product.CreatedAt, &product.UpdatedAt)
	return replaceByID(ctx, r.coll, product.ID, product)
}

func (r *mongoProductRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.coll, id)
}

func (r *mongoProductRepository) List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["isActive"] = true
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Merchant != nil {
		query["merchant"] = *filter.Merchant
	}
	if filter.Featured != nil {
		query["isFeatured"] = *filter.Featured
	}
	if filter.Search != "" {
		re := containsRegex(filter.Search)
		query["$or"] = bson.A{bson.M{"name": re}, bson.M{"description": re}}
	}
	price := bson.M{}
	if filter.MinPrice > 0 {
		price["$gte"] = filter.MinPrice
	}
	if filter.MaxPrice > 0 {
		price["$lte"] = filter.MaxPrice
	}
	if len(price) > 0 {
		query["price"] = price
	}
	return findPage[models.Product](ctx, r.coll, query, filter.Page)
}

func (r *mongoProductRepository) CountByMerchant(ctx context.Context, merchantID primitive.ObjectID, featuredOnly bool) (int64, error) {
	query := bson.M{"merchant": merchantID, "isActive": true}
	if featuredOnly {
		query["isFeatured"] = true
	}
	return r.coll.CountDocuments(ctx, query)
}

func (r *mongoProductRepository) AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error {
	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["stock"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"stock": delta},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Tell a missing product apart from a short one
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrInsufficientStock
}

func (r *mongoProductRepository) UpdateRating(ctx context.Context, id primitive.ObjectID, rating float64, numReviews int) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"rating":     rating,
		"numReviews": numReviews,
		"updatedAt":  time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoCartRepository struct {
	coll *mongo.Collection
}

func (r *mongoCartRepository) FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var cart models.Cart
	if err := findOne(ctx, r.coll, bson.M{"user": userID}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *mongoCartRepository) Save(ctx context.Context, cart *models.Cart) error {
	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
	}
	stamp(&cart.CreatedAt, &cart.UpdatedAt)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"user": cart.User}, cart, options.Replace().SetUpsert(true))
	return err
}

func (r *mongoCartRepository) Clear(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"user": userID}, bson.M{"$set": bson.M{
		"items":     bson.A{},
		"updatedAt": time.Now(),
	}})
	return err
}

type mongoReviewRepository struct {
	coll *mongo.Collection
}

func (r *mongoReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.ID.IsZero() {
		review.ID = primitive.NewObjectID()
	}
	stamp(&review.CreatedAt, &review.UpdatedAt)
	return insert(ctx, r.coll, review)
}

func (r *mongoReviewRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error) {
	var review models.Review
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *mongoReviewRepository) FindByUserAndProduct(ctx context.Context, userID, productID primitive.ObjectID) (*models.Review, error) {
	var review models.Review
	if err := findOne(ctx, r.coll, bson.M{"user": userID, "product": productID}, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *mongoReviewRepository) Update(ctx context.Context, review *models.Review) error {
	stamp(&review.CreatedAt, &review.UpdatedAt)
	return replaceByID(ctx, r.coll, review.ID, review)
}

func (r *mongoReviewRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.coll, id)
}

func (r *mongoReviewRepository) List(ctx context.Context, filter ReviewFilter) ([]models.Review, int64, error) {
	query := bson.M{}
	if filter.Product != nil {
		query["product"] = *filter.Product
	}
	if filter.Merchant != nil {
		query["merchant"] = *filter.Merchant
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return findPage[models.Review](ctx, r.coll, query, filter.Page)
}

func (r *mongoReviewRepository) RatingSummary(ctx context.Context, productID primitive.ObjectID) (float64, int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"product": productID,
			"status":  bson.M{"$ne": models.ReviewStatusRejected},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"avg":   bson.M{"$avg": "$rating"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	var result []struct {
		Avg   float64 `bson:"avg"`
		Count int     `bson:"count"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return 0, 0, err
	}
	if len(result) == 0 {
		return 0, 0, nil
	}
	return result[0].Avg, result[0].Count, nil
}

// isNotFound is shared by the mongo repositories that translate driver misses
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, mongo.ErrNoDocuments)
}
