package booking

import (
	"context"
	"errors"
	"time"

	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateSlot surfaces the unique partial index on
// (doctorId, date, slot) so the service can treat an insert race exactly like
// a found conflict.
var ErrDuplicateSlot = errors.New("slot already booked")

type Repository interface {
	GetDoctor(ctx context.Context, doctorID string) (models.User, error)
	ListActiveForDay(ctx context.Context, doctorID, date string) ([]models.Appointment, error)
	InsertAppointment(ctx context.Context, appointment models.Appointment) error
	GetAppointment(ctx context.Context, id string) (models.Appointment, error)
	SetPaymentStatusByIntent(ctx context.Context, intentID, status string) (bool, error)
	MarkRefunded(ctx context.Context, appointmentID, refundID, cancelledBy, reason string, now time.Time) (models.Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID string, fromStatuses []string, set bson.M) (models.Appointment, error)
	ListForPatient(ctx context.Context, patientID string, paidOnly bool, limit, offset int64) ([]models.Appointment, int64, error)
	ListForDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.Appointment, int64, error)
	RecordPaymentEvent(ctx context.Context, event models.PaymentEvent) (bool, error)
}

type MongoRepository struct {
	users         *mongo.Collection
	appointments  *mongo.Collection
	paymentEvents *mongo.Collection
}

func NewRepository(users, appointments, paymentEvents *mongo.Collection) *MongoRepository {
	return &MongoRepository{
		users:         users,
		appointments:  appointments,
		paymentEvents: paymentEvents,
	}
}

func (r *MongoRepository) GetDoctor(ctx context.Context, doctorID string) (models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"_id": doctorID, "role": models.RoleDoctor}).Decode(&user)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) ListActiveForDay(ctx context.Context, doctorID, date string) ([]models.Appointment, error) {
	filter := bson.M{
		"doctorId": doctorID,
		"date":     date,
		"status":   bson.M{"$in": models.ActiveAppointmentStatuses},
	}

	cursor, err := r.appointments.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Appointment, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) InsertAppointment(ctx context.Context, appointment models.Appointment) error {
	_, err := r.appointments.InsertOne(ctx, appointment)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateSlot
	}
	return err
}

func (r *MongoRepository) GetAppointment(ctx context.Context, id string) (models.Appointment, error) {
	var appointment models.Appointment
	err := r.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&appointment)
	if err != nil {
		return models.Appointment{}, err
	}
	return appointment, nil
}

func (r *MongoRepository) SetPaymentStatusByIntent(ctx context.Context, intentID, status string) (bool, error) {
	res, err := r.appointments.UpdateOne(ctx,
		bson.M{"paymentIntentId": intentID},
		bson.M{"$set": bson.M{"paymentStatus": status, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// MarkRefunded flips paymentStatus and status together; filtering on
// paymentStatus=paid makes a second refund lose the race atomically.
func (r *MongoRepository) MarkRefunded(ctx context.Context, appointmentID, refundID, cancelledBy, reason string, now time.Time) (models.Appointment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{
		"$set": bson.M{
			"paymentStatus":      models.PaymentRefunded,
			"status":             models.AppointmentCancelled,
			"refundId":           refundID,
			"cancelledBy":        cancelledBy,
			"cancellationReason": reason,
			"updatedAt":          now,
		},
	}

	var updated models.Appointment
	err := r.appointments.FindOneAndUpdate(ctx,
		bson.M{"_id": appointmentID, "paymentStatus": models.PaymentPaid},
		update, opts,
	).Decode(&updated)
	if err != nil {
		return models.Appointment{}, err
	}
	return updated, nil
}

func (r *MongoRepository) UpdateStatus(ctx context.Context, appointmentID string, fromStatuses []string, set bson.M) (models.Appointment, error) {
	set["updatedAt"] = time.Now()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Appointment
	err := r.appointments.FindOneAndUpdate(ctx,
		bson.M{"_id": appointmentID, "status": bson.M{"$in": fromStatuses}},
		bson.M{"$set": set}, opts,
	).Decode(&updated)
	if err != nil {
		return models.Appointment{}, err
	}
	return updated, nil
}

func (r *MongoRepository) ListForPatient(ctx context.Context, patientID string, paidOnly bool, limit, offset int64) ([]models.Appointment, int64, error) {
	filter := bson.M{"patientId": patientID}
	if paidOnly {
		filter["paymentStatus"] = bson.M{"$in": bson.A{models.PaymentPaid, models.PaymentRefunded}}
	}
	return r.list(ctx, filter, limit, offset)
}

func (r *MongoRepository) ListForDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.Appointment, int64, error) {
	return r.list(ctx, bson.M{"doctorId": doctorID}, limit, offset)
}

func (r *MongoRepository) list(ctx context.Context, filter bson.M, limit, offset int64) ([]models.Appointment, int64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.appointments.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Appointment, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}

	total, err := r.appointments.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// RecordPaymentEvent inserts the event id; a duplicate key means the event
// was already processed and returns false without error.
func (r *MongoRepository) RecordPaymentEvent(ctx context.Context, event models.PaymentEvent) (bool, error) {
	_, err := r.paymentEvents.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
