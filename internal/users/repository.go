package users

import (
	"context"
	"time"

	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Insert(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	ListDoctors(ctx context.Context, specialization string, limit, offset int64) ([]models.User, int64, error)
	GetDoctor(ctx context.Context, id string) (models.User, error)
	SetAvailability(ctx context.Context, doctorID string, availability map[string][]string, now time.Time) (models.User, error)
}

type MongoRepository struct {
	users *mongo.Collection
}

func NewRepository(users *mongo.Collection) *MongoRepository {
	return &MongoRepository{users: users}
}

func (r *MongoRepository) Insert(ctx context.Context, user models.User) error {
	_, err := r.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) ListDoctors(ctx context.Context, specialization string, limit, offset int64) ([]models.User, int64, error) {
	filter := bson.M{"role": models.RoleDoctor}
	if specialization != "" {
		filter["doctor.specialization"] = specialization
	}

	total, err := r.users.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "doctor.ratingAvg", Value: -1}, {Key: "name", Value: 1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]models.User, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *MongoRepository) GetDoctor(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"_id": id, "role": models.RoleDoctor}).Decode(&user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) SetAvailability(ctx context.Context, doctorID string, availability map[string][]string, now time.Time) (models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{
		"doctor.availability": availability,
		"updatedAt":           now,
	}}

	var user models.User
	err := r.users.FindOneAndUpdate(ctx,
		bson.M{"_id": doctorID, "role": models.RoleDoctor},
		update, opts,
	).Decode(&user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}
