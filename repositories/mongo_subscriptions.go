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

type mongoPackageRepository struct {
	coll *mongo.Collection
}

func (r *mongoPackageRepository) Create(ctx context.Context, pkg *models.SubscriptionPackage) error {
	if pkg.ID.IsZero() {
		pkg.ID = primitive.NewObjectID()
	}
	stamp(&pkg.CreatedAt, &pkg.UpdatedAt)
	return insert(ctx, r.coll, pkg)
}

func (r *mongoPackageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.SubscriptionPackage, error) {
	var pkg models.SubscriptionPackage
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *mongoPackageRepository) Update(ctx context.Context, pkg *models.SubscriptionPackage) error {
	stamp(&pkg.CreatedAt, &pkg.UpdatedAt)
	return replaceByID(ctx, r.coll, pkg.ID, pkg)
}

func (r *mongoPackageRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.coll, id)
}

func (r *mongoPackageRepository) List(ctx context.Context, activeOnly bool) ([]models.SubscriptionPackage, error) {
	query := bson.M{}
	if activeOnly {
		query["isActive"] = true
	}
	return findAll[models.SubscriptionPackage](ctx, r.coll, query, bson.D{
		{Key: "priority", Value: -1},
		{Key: "price", Value: 1},
	})
}

// The active-per-vendor rule is backed by a partial unique index on
// {vendor: 1} where status is "active" (see config.setupCollections), so
// the duplicate key error surfaces here as ErrDuplicate.
type mongoSubscriptionRepository struct {
	coll *mongo.Collection
}

func (r *mongoSubscriptionRepository) Create(ctx context.Context, sub *models.VendorSubscription) error {
	if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	stamp(&sub.CreatedAt, &sub.UpdatedAt)
	return insert(ctx, r.coll, sub)
}

func (r *mongoSubscriptionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.VendorSubscription, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoSubscriptionRepository) Update(ctx context.Context, sub *models.VendorSubscription) error {
	stamp(&sub.CreatedAt, &sub.UpdatedAt)
	return replaceByID(ctx, r.coll, sub.ID, sub)
}

func (r *mongoSubscriptionRepository) FindActiveByVendor(ctx context.Context, vendorID primitive.ObjectID) (*models.VendorSubscription, error) {
	return r.findOne(ctx, bson.M{"vendor": vendorID, "status": models.SubscriptionStatusActive})
}

func (r *mongoSubscriptionRepository) FindLatestPendingByVendor(ctx context.Context, vendorID primitive.ObjectID) (*models.VendorSubscription, error) {
	return r.findOne(ctx, bson.M{"vendor": vendorID, "status": models.SubscriptionStatusPending})
}

func (r *mongoSubscriptionRepository) FindRenewals(ctx context.Context, previousID primitive.ObjectID) ([]models.VendorSubscription, error) {
	return findAll[models.VendorSubscription](ctx, r.coll, bson.M{"previousSubscription": previousID}, bson.D{{Key: "createdAt", Value: -1}})
}

func (r *mongoSubscriptionRepository) MarkReminded(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"lastRenewalNotification": at,
		"updatedAt":               time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoSubscriptionRepository) findOne(ctx context.Context, filter bson.M) (*models.VendorSubscription, error) {
	var sub models.VendorSubscription
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if err := findOne(ctx, r.coll, filter, &sub, opts); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *mongoSubscriptionRepository) FindExpiring(ctx context.Context, from, to, notifiedBefore time.Time) ([]models.VendorSubscription, error) {
	query := bson.M{
		"status":  models.SubscriptionStatusActive,
		"endDate": bson.M{"$gte": from, "$lte": to},
		"$or": bson.A{
			bson.M{"lastRenewalNotification": nil},
			bson.M{"lastRenewalNotification": bson.M{"$lt": notifiedBefore}},
		},
	}
	return findAll[models.VendorSubscription](ctx, r.coll, query, bson.D{{Key: "endDate", Value: 1}})
}

func (r *mongoSubscriptionRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx, bson.M{
		"status":  models.SubscriptionStatusActive,
		"endDate": bson.M{"$lt": now},
	}, bson.M{"$set": bson.M{
		"status":    models.SubscriptionStatusExpired,
		"autoRenew": false,
		"updatedAt": now,
	}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *mongoSubscriptionRepository) List(ctx context.Context, filter SubscriptionFilter) ([]models.VendorSubscription, int64, error) {
	query := bson.M{}
	if filter.Vendor != nil {
		query["vendor"] = *filter.Vendor
	}
	if filter.Package != nil {
		query["package"] = *filter.Package
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return findPage[models.VendorSubscription](ctx, r.coll, query, filter.Page)
}

func (r *mongoSubscriptionRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{
		"status":  models.SubscriptionStatusActive,
		"endDate": bson.M{"$gt": now},
	})
}
