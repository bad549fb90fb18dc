package notifications

import (
	"context"
	"log/slog"
	"time"

	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	TypeNewAppointment       = "new_appointment"
	TypeAppointmentAccepted  = "appointment_accepted"
	TypeAppointmentCancelled = "appointment_cancelled"
	TypePaymentRefunded      = "payment_refunded"
	TypeNegotiationUpdate    = "negotiation_update"
	TypeReviewReceived       = "review_received"
)

// Publisher mirrors notifications onto an external queue. Optional.
type Publisher interface {
	Publish(ctx context.Context, notification models.Notification) error
}

// Store is the fire-and-forget notification sink. Creation failures are
// logged and swallowed so they never fail the primary operation.
type Store struct {
	col       *mongo.Collection
	log       *slog.Logger
	publisher Publisher
}

func NewStore(col *mongo.Collection, log *slog.Logger, publisher Publisher) *Store {
	return &Store{col: col, log: log, publisher: publisher}
}

func (s *Store) Notify(ctx context.Context, userID, notifType, title, body string, data map[string]string) {
	notification := models.Notification{
		ID:        primitive.NewObjectID().Hex(),
		UserID:    userID,
		Type:      notifType,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: time.Now(),
	}

	if _, err := s.col.InsertOne(ctx, notification); err != nil {
		s.log.Warn("notification insert failed",
			slog.String("user_id", userID),
			slog.String("type", notifType),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notification); err != nil {
			s.log.Warn("notification publish failed",
				slog.String("notification_id", notification.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Store) ListForUser(ctx context.Context, userID string, limit, offset int64) ([]models.Notification, int64, error) {
	filter := bson.M{"userId": userID}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Notification, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": notificationID, "userId": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
