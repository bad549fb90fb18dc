package main

import (
	"context"
	"log"
	"os"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/config"
	"telehealth-backend/internal/db"
	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type seedDoctor struct {
	Name           string
	Email          string
	Specialization string
	About          string
	Availability   map[string][]string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Fatal(err)
	}

	adminEmail := envOrDefault("ADMIN_EMAIL", "admin@telehealth.local")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		log.Fatal("ADMIN_PASSWORD is required")
	}
	seedUser(ctx, cols, models.User{
		Name:  "Platform Admin",
		Email: adminEmail,
		Role:  models.RoleAdmin,
	}, adminPassword)

	seedPassword := envOrDefault("SEED_PASSWORD", "changeme123")

	weekdays := map[string][]string{
		"monday":    {"09:00-09:30", "09:30-10:00", "10:00-10:30", "10:30-11:00"},
		"tuesday":   {"09:00-09:30", "09:30-10:00", "10:00-10:30"},
		"wednesday": {"10:00-10:30", "10:30-11:00", "11:00-11:30"},
		"thursday":  {"14:00-14:30", "14:30-15:00", "15:00-15:30"},
		"friday":    {"09:00-09:30", "09:30-10:00"},
	}
	evenings := map[string][]string{
		"monday":    {"18:00-18:30", "18:30-19:00", "19:00-19:30"},
		"wednesday": {"18:00-18:30", "18:30-19:00"},
		"saturday":  {"10:00-10:30", "10:30-11:00", "11:00-11:30", "11:30-12:00"},
	}

	doctors := []seedDoctor{
		{
			Name:           "Dr. Ayesha Khan",
			Email:          "ayesha.khan@telehealth.local",
			Specialization: "General Physician",
			About:          "15 years of family medicine practice.",
			Availability:   weekdays,
		},
		{
			Name:           "Dr. Bilal Ahmed",
			Email:          "bilal.ahmed@telehealth.local",
			Specialization: "Dermatologist",
			About:          "Skin and hair care specialist.",
			Availability:   evenings,
		},
		{
			Name:           "Dr. Sana Malik",
			Email:          "sana.malik@telehealth.local",
			Specialization: "Psychiatrist",
			About:          "Adult mental health and counselling.",
			Availability:   weekdays,
		},
	}

	for _, doc := range doctors {
		seedUser(ctx, cols, models.User{
			Name:     doc.Name,
			Email:    doc.Email,
			Role:     models.RoleDoctor,
			Timezone: cfg.Timezone.String(),
			Doctor: &models.DoctorProfile{
				Specialization:           doc.Specialization,
				About:                    doc.About,
				Availability:             doc.Availability,
				EarningNegotiationStatus: models.NegotiationPending,
			},
		}, seedPassword)
	}

	seedUser(ctx, cols, models.User{
		Name:  "Test Patient",
		Email: "patient@telehealth.local",
		Role:  models.RolePatient,
	}, seedPassword)

	log.Println("seed complete")
}

func seedUser(ctx context.Context, cols *db.Collections, user models.User, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("seed error for %s: %v", user.Email, err)
	}

	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":          primitive.NewObjectID().Hex(),
			"name":         user.Name,
			"email":        user.Email,
			"passwordHash": hash,
			"role":         user.Role,
			"timezone":     user.Timezone,
			"doctor":       user.Doctor,
			"createdAt":    now,
			"updatedAt":    now,
		},
	}
	if user.Doctor == nil {
		delete(update["$setOnInsert"].(bson.M), "doctor")
	}

	_, err = cols.Users.UpdateOne(ctx, bson.M{"email": user.Email}, update, options.Update().SetUpsert(true))
	if err != nil {
		log.Fatalf("seed error for %s: %v", user.Email, err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
