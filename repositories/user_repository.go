package repositories

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/HSouheill/nairobi_verified/models"
)

type mongoUserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{
		collection: db.Collection(UsersCollection),
	}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.Email = strings.ToLower(user.Email)
	stamp(&user.CreatedAt, &user.UpdatedAt)
	return insert(ctx, r.collection, user)
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := findOne(ctx, r.collection, bson.M{"_id": id}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := findOne(ctx, r.collection, bson.M{"email": strings.ToLower(email)}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) Update(ctx context.Context, user *models.User) error {
	stamp(&user.CreatedAt, &user.UpdatedAt)
	return replaceByID(ctx, r.collection, user.ID, user)
}

func (r *mongoUserRepository) List(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	return findPage[models.User](ctx, r.collection, userQuery(filter), filter.Page)
}

func (r *mongoUserRepository) Count(ctx context.Context, filter UserFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, userQuery(filter))
}

func userQuery(filter UserFilter) bson.M {
	query := bson.M{}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	if filter.VerificationStatus != "" {
		query["verificationStatus"] = filter.VerificationStatus
	}
	if filter.Search != "" {
		re := containsRegex(filter.Search)
		query["$or"] = bson.A{
			bson.M{"firstName": re},
			bson.M{"lastName": re},
			bson.M{"email": re},
			bson.M{"businessName": re},
		}
	}
	return query
}
