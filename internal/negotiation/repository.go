package negotiation

import (
	"context"

	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Update is the write-set applied to a doctor's negotiation fields. Nil
// pointers leave the field untouched; the message, when present, is appended
// to the transcript in the same write.
type Update struct {
	ProposedFee *float64
	AgreedFee   *float64
	Currency    *string
	Commission  *float64
	Status      *string
	Message     *models.NegotiationMessage
}

type Repository interface {
	GetDoctor(ctx context.Context, doctorID string) (models.User, error)
	ListDoctors(ctx context.Context, status string, limit, offset int64) ([]models.User, int64, error)
	Apply(ctx context.Context, doctorID string, update Update) (models.User, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) GetDoctor(ctx context.Context, doctorID string) (models.User, error) {
	var user models.User
	err := r.col.FindOne(ctx, bson.M{"_id": doctorID, "role": models.RoleDoctor}).Decode(&user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) ListDoctors(ctx context.Context, status string, limit, offset int64) ([]models.User, int64, error) {
	filter := bson.M{"role": models.RoleDoctor}
	if status != "" {
		if status == models.NegotiationPending {
			// Doctors created before any negotiation may lack the field.
			filter["$or"] = bson.A{
				bson.M{"doctor.earningNegotiationStatus": status},
				bson.M{"doctor.earningNegotiationStatus": bson.M{"$exists": false}},
			}
		} else {
			filter["doctor.earningNegotiationStatus"] = status
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	users := make([]models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, err
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *MongoRepository) Apply(ctx context.Context, doctorID string, update Update) (models.User, error) {
	set := bson.M{}
	if update.ProposedFee != nil {
		set["doctor.proposedFee"] = *update.ProposedFee
	}
	if update.AgreedFee != nil {
		set["doctor.agreedFee"] = *update.AgreedFee
	}
	if update.Currency != nil {
		set["doctor.currency"] = *update.Currency
	}
	if update.Commission != nil {
		set["doctor.commission"] = *update.Commission
	}
	if update.Status != nil {
		set["doctor.earningNegotiationStatus"] = *update.Status
	}
	if update.Message != nil {
		set["updatedAt"] = update.Message.Timestamp
	}

	change := bson.M{}
	if len(set) > 0 {
		change["$set"] = set
	}
	if update.Message != nil {
		change["$push"] = bson.M{"doctor.earningNegotiationHistory": *update.Message}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.User
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": doctorID, "role": models.RoleDoctor}, change, opts).Decode(&updated)
	if err != nil {
		return models.User{}, err
	}
	return updated, nil
}
