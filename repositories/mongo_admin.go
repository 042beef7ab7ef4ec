package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/nairobi_verified/models"
)

type mongoFlashSaleRepository struct {
	coll *mongo.Collection
}

func (r *mongoFlashSaleRepository) Create(ctx context.Context, sale *models.FlashSale) error {
	if sale.ID.IsZero() {
		sale.ID = primitive.NewObjectID()
	}
	stamp(&sale.CreatedAt, &sale.UpdatedAt)
	return insert(ctx, r.coll, sale)
}

func (r *mongoFlashSaleRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.FlashSale, error) {
	var sale models.FlashSale
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *mongoFlashSaleRepository) Update(ctx context.Context, sale *models.FlashSale) error {
	stamp(&sale.CreatedAt, &sale.UpdatedAt)
	return replaceByID(ctx, r.coll, sale.ID, sale)
}

func (r *mongoFlashSaleRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.coll, id)
}

func (r *mongoFlashSaleRepository) List(ctx context.Context, runningAt *time.Time) ([]models.FlashSale, error) {
	query := bson.M{}
	if runningAt != nil {
		query["isActive"] = true
		query["startDate"] = bson.M{"$lte": *runningAt}
		query["endDate"] = bson.M{"$gt": *runningAt}
	}
	return findAll[models.FlashSale](ctx, r.coll, query, bson.D{{Key: "startDate", Value: -1}})
}

type mongoSettingsRepository struct {
	coll *mongo.Collection
}

func (r *mongoSettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := findOne(ctx, r.coll, bson.M{}, &settings)
	if isNotFound(err) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *mongoSettingsRepository) Save(ctx context.Context, settings *models.Settings) error {
	if settings.ID.IsZero() {
		// Keep a single document: reuse whatever id is stored
		existing, err := r.Get(ctx)
		if err != nil {
			return err
		}
		settings.ID = existing.ID
		if settings.ID.IsZero() {
			settings.ID = primitive.NewObjectID()
		}
	}
	settings.UpdatedAt = time.Now()
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": settings.ID}, settings, options.Replace().SetUpsert(true))
	return err
}

type mongoNotificationRepository struct {
	coll *mongo.Collection
}

func (r *mongoNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return insert(ctx, r.coll, n)
}

func (r *mongoNotificationRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *mongoNotificationRepository) MarkRead(ctx context.Context, id, userID primitive.ObjectID) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "userId": userID}, bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
