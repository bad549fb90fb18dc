package reviews

import (
	"context"

	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	GetDoctor(ctx context.Context, doctorID string) (models.User, error)
	GetUserNames(ctx context.Context, ids []string) (map[string]string, error)
	GetAppointment(ctx context.Context, id string) (models.Appointment, error)
	HasEligibleAppointment(ctx context.Context, doctorID, patientID string) (bool, error)
	Insert(ctx context.Context, review models.Review) error
	Get(ctx context.Context, id string) (models.Review, error)
	Delete(ctx context.Context, id string) error
	ListForDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.Review, int64, error)
	AggregateRating(ctx context.Context, doctorID string) (avg float64, count int, err error)
	SetDoctorRating(ctx context.Context, doctorID string, avg float64, count int) error
}

type MongoRepository struct {
	users        *mongo.Collection
	appointments *mongo.Collection
	reviews      *mongo.Collection
}

func NewRepository(users, appointments, reviews *mongo.Collection) *MongoRepository {
	return &MongoRepository{users: users, appointments: appointments, reviews: reviews}
}

func (r *MongoRepository) GetDoctor(ctx context.Context, doctorID string) (models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"_id": doctorID, "role": models.RoleDoctor}).Decode(&user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) GetUserNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	projection := options.Find().SetProjection(bson.M{"name": 1})
	cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, projection)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	names := make(map[string]string, len(ids))
	for cursor.Next(ctx) {
		var doc struct {
			ID   string `bson:"_id"`
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		names[doc.ID] = doc.Name
	}
	return names, cursor.Err()
}

func (r *MongoRepository) GetAppointment(ctx context.Context, id string) (models.Appointment, error) {
	var appointment models.Appointment
	err := r.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&appointment)
	if err != nil {
		return models.Appointment{}, err
	}
	return appointment, nil
}

// HasEligibleAppointment reports whether the patient has at least one
// appointment with the doctor that was completed or cancelled by the doctor.
func (r *MongoRepository) HasEligibleAppointment(ctx context.Context, doctorID, patientID string) (bool, error) {
	filter := bson.M{
		"doctorId":  doctorID,
		"patientId": patientID,
		"$or": []bson.M{
			{"status": models.AppointmentCompleted},
			{"status": models.AppointmentCancelled, "cancelledBy": models.RoleDoctor},
		},
	}

	count, err := r.appointments.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MongoRepository) Insert(ctx context.Context, review models.Review) error {
	_, err := r.reviews.InsertOne(ctx, review)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateReview
	}
	return err
}

func (r *MongoRepository) Get(ctx context.Context, id string) (models.Review, error) {
	var review models.Review
	err := r.reviews.FindOne(ctx, bson.M{"_id": id}).Decode(&review)
	if err != nil {
		return models.Review{}, err
	}
	return review, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.reviews.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *MongoRepository) ListForDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.Review, int64, error) {
	filter := bson.M{"doctorId": doctorID, "isApproved": true}

	total, err := r.reviews.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.reviews.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Review, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *MongoRepository) AggregateRating(ctx context.Context, doctorID string) (float64, int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctorId": doctorID, "isApproved": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"avg":   bson.M{"$avg": "$rating"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.reviews.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	var result struct {
		Avg   float64 `bson:"avg"`
		Count int     `bson:"count"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, 0, err
		}
	}
	return result.Avg, result.Count, cursor.Err()
}

func (r *MongoRepository) SetDoctorRating(ctx context.Context, doctorID string, avg float64, count int) error {
	_, err := r.users.UpdateOne(ctx,
		bson.M{"_id": doctorID, "role": models.RoleDoctor},
		bson.M{"$set": bson.M{
			"doctor.ratingAvg":   avg,
			"doctor.ratingCount": count,
		}},
	)
	return err
}
