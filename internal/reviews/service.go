package reviews

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/models"
	"telehealth-backend/internal/notifications"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Notifier is the fire-and-forget notification sink; implementations must
// never fail the calling operation.
type Notifier interface {
	Notify(ctx context.Context, userID, notifType, title, body string, data map[string]string)
}

type Service struct {
	repo     Repository
	notifier Notifier
	log      *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewService(repo Repository, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		newID:    func() string { return primitive.NewObjectID().Hex() },
	}
}

// Create records a patient review for a doctor. When an appointment id is
// given it must be the caller's own appointment with that doctor and in an
// eligible state; otherwise at least one eligible appointment must exist.
func (s *Service) Create(ctx context.Context, caller auth.Caller, req CreateRequest) (models.Review, error) {
	if !caller.IsPatient() {
		return models.Review{}, ErrForbidden
	}

	if _, err := s.repo.GetDoctor(ctx, req.DoctorID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Review{}, ErrDoctorNotFound
		}
		return models.Review{}, err
	}

	if req.AppointmentID != "" {
		appointment, err := s.repo.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return models.Review{}, ErrAppointmentNotFound
			}
			return models.Review{}, err
		}
		if appointment.PatientID != caller.ID || appointment.DoctorID != req.DoctorID {
			return models.Review{}, ErrForbidden
		}
		if !eligible(appointment) {
			return models.Review{}, ErrNotEligible
		}
	} else {
		ok, err := s.repo.HasEligibleAppointment(ctx, req.DoctorID, caller.ID)
		if err != nil {
			return models.Review{}, err
		}
		if !ok {
			return models.Review{}, ErrNotEligible
		}
	}

	now := s.now().UTC()
	review := models.Review{
		ID:            s.newID(),
		DoctorID:      req.DoctorID,
		PatientID:     caller.ID,
		AppointmentID: req.AppointmentID,
		Rating:        req.Rating,
		Review:        req.Review,
		IsAnonymous:   req.IsAnonymous,
		IsApproved:    true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, review); err != nil {
		return models.Review{}, err
	}

	s.recomputeRating(ctx, req.DoctorID)

	if s.notifier != nil {
		go s.notifier.Notify(context.WithoutCancel(ctx), req.DoctorID,
			notifications.TypeReviewReceived,
			"New review",
			"A patient left you a review.",
			map[string]string{"reviewId": review.ID},
		)
	}

	return review, nil
}

// ListForDoctor is public; anonymous reviews are stripped of patient identity.
func (s *Service) ListForDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]View, RatingSummary, error) {
	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, RatingSummary{}, ErrDoctorNotFound
		}
		return nil, RatingSummary{}, err
	}

	items, _, err := s.repo.ListForDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, RatingSummary{}, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsAnonymous {
			ids = append(ids, item.PatientID)
		}
	}
	names, err := s.repo.GetUserNames(ctx, ids)
	if err != nil {
		return nil, RatingSummary{}, err
	}

	views := make([]View, 0, len(items))
	for _, item := range items {
		views = append(views, viewFromReview(item, names[item.PatientID]))
	}

	summary := RatingSummary{DoctorID: doctorID}
	if doctor.Doctor != nil {
		summary.RatingAvg = doctor.Doctor.RatingAvg
		summary.RatingCount = doctor.Doctor.RatingCount
	}
	return views, summary, nil
}

// Delete removes a review. The author or an admin may delete.
func (s *Service) Delete(ctx context.Context, caller auth.Caller, reviewID string) error {
	review, err := s.repo.Get(ctx, reviewID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrReviewNotFound
		}
		return err
	}

	if !caller.IsAdmin() && review.PatientID != caller.ID {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, reviewID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrReviewNotFound
		}
		return err
	}

	s.recomputeRating(ctx, review.DoctorID)
	return nil
}

func eligible(appointment models.Appointment) bool {
	if appointment.Status == models.AppointmentCompleted {
		return true
	}
	return appointment.Status == models.AppointmentCancelled &&
		appointment.CancelledBy == models.RoleDoctor
}

// recomputeRating refreshes the doctor's denormalized rating fields. Failure
// is logged, not surfaced; the review write already succeeded.
func (s *Service) recomputeRating(ctx context.Context, doctorID string) {
	avg, count, err := s.repo.AggregateRating(ctx, doctorID)
	if err != nil {
		s.log.Error("rating aggregate failed",
			slog.String("doctor_id", doctorID),
			slog.String("error", err.Error()))
		return
	}
	if err := s.repo.SetDoctorRating(ctx, doctorID, avg, count); err != nil {
		s.log.Error("rating update failed",
			slog.String("doctor_id", doctorID),
			slog.String("error", err.Error()))
	}
}
