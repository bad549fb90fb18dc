package db

import (
	"context"
	"time"

	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Collections struct {
	Users         *mongo.Collection
	Appointments  *mongo.Collection
	Reviews       *mongo.Collection
	Notifications *mongo.Collection
	PaymentEvents *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *Collections, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, err
	}

	database := client.Database(dbName)

	cols := &Collections{
		Users:         database.Collection("users"),
		Appointments:  database.Collection("appointments"),
		Reviews:       database.Collection("reviews"),
		Notifications: database.Collection("notifications"),
		PaymentEvents: database.Collection("payment_events"),
	}

	return client, cols, nil
}

func EnsureIndexes(ctx context.Context, cols *Collections) error {
	indexTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := cols.Users.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	// The partial unique index on (doctorId, date, slot) is the storage-level
	// guarantee that at most one active appointment ever holds a slot, even
	// when two confirms race past the overlap query.
	_, err = cols.Appointments.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "date", Value: 1}, {Key: "slot", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": models.ActiveAppointmentStatuses},
			}),
		},
		{
			Keys: bson.D{{Key: "paymentIntentId", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "date", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	// Two dedup keys because the optionality of appointmentId changes the key:
	// one review per (doctor, patient, appointment), one general review per
	// (doctor, patient). General reviews store appointmentId as "".
	_, err = cols.Reviews.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "patientId", Value: 1}, {Key: "appointmentId", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"appointmentId": bson.M{"$gt": ""},
			}),
		},
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "patientId", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"appointmentId": "",
			}),
		},
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Notifications.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.PaymentEvents.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "eventId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}
