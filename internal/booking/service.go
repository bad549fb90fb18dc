package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/locker"
	"telehealth-backend/internal/models"
	"telehealth-backend/internal/payments"
	"telehealth-backend/internal/schedule"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const slotLockTTL = 15 * time.Second

// Notifier is the fire-and-forget notification sink; implementations must
// never fail the calling operation.
type Notifier interface {
	Notify(ctx context.Context, userID, notifType, title, body string, data map[string]string)
}

type Service struct {
	repo     Repository
	provider payments.Provider
	locks    locker.Locker
	notifier Notifier
	log      *slog.Logger

	defaultTZ    *time.Location
	videoBaseURL string
	now          func() time.Time
	newID        func() string
}

func NewService(repo Repository, provider payments.Provider, locks locker.Locker, notifier Notifier, log *slog.Logger, defaultTZ *time.Location, videoBaseURL string) *Service {
	return &Service{
		repo:         repo,
		provider:     provider,
		locks:        locks,
		notifier:     notifier,
		log:          log,
		defaultTZ:    defaultTZ,
		videoBaseURL: videoBaseURL,
		now:          time.Now,
		newID:        func() string { return primitive.NewObjectID().Hex() },
	}
}

// CreateIntent validates the booking request and asks the provider for a
// payment intent carrying the full appointment context as metadata. No
// appointment exists yet after this step.
func (s *Service) CreateIntent(ctx context.Context, caller auth.Caller, req CreateIntentRequest) (CreateIntentResponse, error) {
	if !caller.IsPatient() {
		return CreateIntentResponse{}, ErrForbidden
	}

	doctor, err := s.repo.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return CreateIntentResponse{}, ErrDoctorNotFound
		}
		return CreateIntentResponse{}, err
	}

	loc := s.doctorLocation(doctor)
	if err := s.checkSlotOpen(doctor, req.AppointmentData.Date, req.AppointmentData.Slot, loc); err != nil {
		return CreateIntentResponse{}, err
	}

	meta := IntentMetadata{
		DoctorID:    doctor.ID,
		PatientID:   caller.ID,
		PatientName: req.AppointmentData.PatientName,
		Date:        req.AppointmentData.Date,
		Slot:        req.AppointmentData.Slot,
		Problem:     req.AppointmentData.Problem,
		AgeGroup:    req.AppointmentData.AgeGroup,
		Gender:      req.AppointmentData.Gender,
		Amount:      req.Amount,
		Currency:    req.Currency,
		BookedAt:    s.now(),
	}
	encoded, err := meta.Encode()
	if err != nil {
		return CreateIntentResponse{}, err
	}

	amountMinor := int64(math.Round(req.Amount * 100))
	intent, err := s.provider.CreateIntent(ctx, amountMinor, req.Currency, encoded)
	if err != nil {
		return CreateIntentResponse{}, &ProviderError{Op: "create intent", Err: err}
	}

	return CreateIntentResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// Confirm reconciles an externally captured payment into a durable
// appointment. The availability and conflict checks are re-done here, after
// payment success, because both may have changed since intent creation. When
// the slot is gone the captured payment is compensated with a refund.
func (s *Service) Confirm(ctx context.Context, caller auth.Caller, req ConfirmRequest) (models.Appointment, error) {
	if !caller.IsPatient() {
		return models.Appointment{}, ErrForbidden
	}

	intent, err := s.provider.GetIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return models.Appointment{}, &ProviderError{Op: "get intent", Err: err}
	}
	if intent.Status != payments.StatusSucceeded {
		return models.Appointment{}, &PaymentStateError{Status: intent.Status}
	}

	meta, err := DecodeIntentMetadata(intent.Metadata)
	if err != nil {
		return models.Appointment{}, err
	}
	if meta.PatientID != caller.ID {
		return models.Appointment{}, ErrIdentityMismatch
	}
	// Clients may echo the appointment back; the metadata recorded at intent
	// creation stays authoritative, an echo naming a different slot is a bug.
	if req.AppointmentData != nil {
		if req.AppointmentData.Date != meta.Date || req.AppointmentData.Slot != meta.Slot {
			return models.Appointment{}, fmt.Errorf("%w: appointmentData does not match intent", ErrBadMetadata)
		}
	}

	doctor, err := s.repo.GetDoctor(ctx, meta.DoctorID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrDoctorNotFound
		}
		return models.Appointment{}, err
	}
	loc := s.doctorLocation(doctor)

	// Availability may have been withdrawn since intent creation. Payment is
	// already captured, so this is compensated exactly like a slot conflict.
	allowed, err := schedule.SlotAllowed(doctorAvailability(doctor), meta.Date, meta.Slot, loc)
	if err != nil {
		return models.Appointment{}, err
	}
	if !allowed {
		return models.Appointment{}, s.compensate(ctx, intent.ID, "slot withdrawn from availability")
	}

	// Best-effort serialization of same-slot confirms. The unique partial
	// index remains the hard guarantee when the lock is unavailable.
	lockKey := "slotlock:" + meta.DoctorID + ":" + meta.Date + ":" + meta.Slot
	if acquired, token, lockErr := s.locks.TryLock(ctx, lockKey, slotLockTTL); lockErr == nil && acquired {
		defer func() {
			if unlockErr := s.locks.Unlock(context.WithoutCancel(ctx), lockKey, token); unlockErr != nil {
				s.log.Warn("slot unlock failed", slog.String("key", lockKey), slog.String("error", unlockErr.Error()))
			}
		}()
	} else if lockErr != nil {
		s.log.Warn("slot lock unavailable", slog.String("key", lockKey), slog.String("error", lockErr.Error()))
	}

	window, err := schedule.ParseSlot(meta.Slot)
	if err != nil {
		return models.Appointment{}, err
	}
	active, err := s.repo.ListActiveForDay(ctx, meta.DoctorID, meta.Date)
	if err != nil {
		return models.Appointment{}, err
	}
	for _, existing := range active {
		existingWindow, parseErr := schedule.ParseSlot(existing.Slot)
		if parseErr != nil {
			continue
		}
		if schedule.Overlaps(window, existingWindow) {
			return models.Appointment{}, s.compensate(ctx, intent.ID, "slot conflict")
		}
	}

	startAt, err := schedule.SlotStart(meta.Date, meta.Slot, loc)
	if err != nil {
		return models.Appointment{}, err
	}

	appointment := models.Appointment{
		ID:              s.newID(),
		PatientID:       meta.PatientID,
		DoctorID:        meta.DoctorID,
		Date:            meta.Date,
		Slot:            meta.Slot,
		StartAt:         startAt,
		Timezone:        loc.String(),
		Status:          models.AppointmentRequested,
		PaymentStatus:   models.PaymentPaid,
		PaymentIntentID: intent.ID,
		StripeChargeID:  intent.ChargeID,
		Fee:             meta.Amount,
		Currency:        meta.Currency,
		PatientName:     meta.PatientName,
		AgeGroup:        meta.AgeGroup,
		Gender:          meta.Gender,
		Problem:         meta.Problem,
		CreatedAt:       s.now(),
		UpdatedAt:       s.now(),
	}

	if err := s.repo.InsertAppointment(ctx, appointment); err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			// Lost the insert race: same compensation as a found conflict.
			return models.Appointment{}, s.compensate(ctx, intent.ID, "slot conflict")
		}
		return models.Appointment{}, err
	}

	s.notifier.Notify(ctx, appointment.DoctorID, "new_appointment",
		"New appointment",
		appointment.PatientName+" booked "+appointment.Slot+" on "+appointment.Date,
		map[string]string{"appointmentId": appointment.ID},
	)

	return appointment, nil
}

// compensate issues the refund for a conflicting confirm. A failing refund is
// logged and flagged on the conflict error but never swallows the conflict
// itself.
func (s *Service) compensate(ctx context.Context, intentID, reason string) error {
	receipt, err := s.provider.Refund(ctx, intentID, reason)
	if err != nil {
		s.log.Error("compensating refund failed",
			slog.String("payment_intent_id", intentID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return &SlotConflictError{RefundFailed: true}
	}
	s.log.Info("compensating refund issued",
		slog.String("payment_intent_id", intentID),
		slog.String("refund_id", receipt.ID),
		slog.String("reason", reason),
	)
	return &SlotConflictError{RefundID: receipt.ID}
}

// HandleWebhook applies a provider event to the matching appointment.
// Idempotent: a re-delivered event id is a no-op.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}

	inserted, err := s.repo.RecordPaymentEvent(ctx, models.PaymentEvent{
		ID:         s.newID(),
		EventID:    event.ID,
		Type:       event.Type,
		IntentID:   event.IntentID,
		ReceivedAt: s.now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Info("webhook event already processed", slog.String("event_id", event.ID))
		return nil
	}

	var status string
	switch event.Type {
	case payments.EventIntentSucceeded:
		status = models.PaymentPaid
	case payments.EventIntentFailed:
		status = models.PaymentFailed
	default:
		return nil
	}

	matched, err := s.repo.SetPaymentStatusByIntent(ctx, event.IntentID, status)
	if err != nil {
		return err
	}
	if !matched {
		// Confirm may not have run yet; the status lands when it does.
		s.log.Info("webhook for unknown intent",
			slog.String("event_id", event.ID),
			slog.String("payment_intent_id", event.IntentID),
		)
	}
	return nil
}

// Refund is the admin-triggered refund; it atomically cancels the
// appointment with the payment-status flip.
func (s *Service) Refund(ctx context.Context, caller auth.Caller, req RefundRequest) (RefundResponse, error) {
	if !caller.IsAdmin() {
		return RefundResponse{}, ErrForbidden
	}

	appointment, err := s.repo.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return RefundResponse{}, ErrAppointmentNotFound
		}
		return RefundResponse{}, err
	}

	switch appointment.PaymentStatus {
	case models.PaymentRefunded:
		return RefundResponse{}, ErrAlreadyRefunded
	case models.PaymentPaid:
	default:
		return RefundResponse{}, ErrNotPaid
	}

	receipt, err := s.provider.Refund(ctx, appointment.PaymentIntentID, req.Reason)
	if err != nil {
		return RefundResponse{}, &ProviderError{Op: "refund", Err: err}
	}

	updated, err := s.repo.MarkRefunded(ctx, appointment.ID, receipt.ID, models.RoleAdmin, req.Reason, s.now())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Raced with another refund after our read.
			return RefundResponse{}, ErrAlreadyRefunded
		}
		return RefundResponse{}, err
	}

	s.notifier.Notify(ctx, updated.PatientID, "payment_refunded",
		"Payment refunded",
		"Your appointment on "+updated.Date+" was cancelled and refunded",
		map[string]string{"appointmentId": updated.ID, "refundId": receipt.ID},
	)

	return RefundResponse{
		AppointmentID: updated.ID,
		RefundID:      receipt.ID,
		PaymentStatus: updated.PaymentStatus,
		Status:        updated.Status,
	}, nil
}

// History lists the caller's paid appointments, newest first.
func (s *Service) History(ctx context.Context, caller auth.Caller, limit, offset int64) ([]models.Appointment, int64, error) {
	if !caller.IsPatient() {
		return nil, 0, ErrForbidden
	}
	return s.repo.ListForPatient(ctx, caller.ID, true, limit, offset)
}

func (s *Service) List(ctx context.Context, caller auth.Caller, limit, offset int64) ([]models.Appointment, int64, error) {
	switch {
	case caller.IsPatient():
		return s.repo.ListForPatient(ctx, caller.ID, false, limit, offset)
	case caller.IsDoctor():
		return s.repo.ListForDoctor(ctx, caller.ID, limit, offset)
	default:
		return nil, 0, ErrForbidden
	}
}

// Accept moves a requested appointment to accepted and attaches the video
// call link.
func (s *Service) Accept(ctx context.Context, caller auth.Caller, appointmentID string) (models.Appointment, error) {
	appointment, err := s.getOwned(ctx, caller, appointmentID)
	if err != nil {
		return models.Appointment{}, err
	}
	if !caller.IsDoctor() || appointment.DoctorID != caller.ID {
		return models.Appointment{}, ErrForbidden
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID,
		[]string{models.AppointmentRequested},
		bson.M{
			"status":        models.AppointmentAccepted,
			"videoCallLink": s.videoBaseURL + "/" + appointmentID,
		},
	)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrBadTransition
		}
		return models.Appointment{}, err
	}

	s.notifier.Notify(ctx, updated.PatientID, "appointment_accepted",
		"Appointment accepted",
		"Your appointment on "+updated.Date+" at "+updated.Slot+" was accepted",
		map[string]string{"appointmentId": updated.ID},
	)
	return updated, nil
}

// Complete moves an accepted appointment to completed with optional notes.
func (s *Service) Complete(ctx context.Context, caller auth.Caller, appointmentID, notes string) (models.Appointment, error) {
	appointment, err := s.getOwned(ctx, caller, appointmentID)
	if err != nil {
		return models.Appointment{}, err
	}
	if !caller.IsDoctor() || appointment.DoctorID != caller.ID {
		return models.Appointment{}, ErrForbidden
	}

	set := bson.M{"status": models.AppointmentCompleted}
	if notes != "" {
		set["notes"] = notes
	}
	updated, err := s.repo.UpdateStatus(ctx, appointmentID,
		[]string{models.AppointmentAccepted}, set)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrBadTransition
		}
		return models.Appointment{}, err
	}
	return updated, nil
}

// Cancel marks an active appointment cancelled by either party. Money is not
// moved here; refunds are a separate admin action.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, appointmentID, reason string) (models.Appointment, error) {
	appointment, err := s.getOwned(ctx, caller, appointmentID)
	if err != nil {
		return models.Appointment{}, err
	}

	var cancelledBy string
	switch {
	case caller.IsDoctor() && appointment.DoctorID == caller.ID:
		cancelledBy = models.RoleDoctor
	case caller.IsPatient() && appointment.PatientID == caller.ID:
		cancelledBy = models.RolePatient
	case caller.IsAdmin():
		cancelledBy = models.RoleAdmin
	default:
		return models.Appointment{}, ErrForbidden
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID,
		models.ActiveAppointmentStatuses,
		bson.M{
			"status":             models.AppointmentCancelled,
			"cancelledBy":        cancelledBy,
			"cancellationReason": reason,
		},
	)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrBadTransition
		}
		return models.Appointment{}, err
	}

	notifyTarget := updated.PatientID
	if cancelledBy == models.RolePatient {
		notifyTarget = updated.DoctorID
	}
	s.notifier.Notify(ctx, notifyTarget, "appointment_cancelled",
		"Appointment cancelled",
		"Appointment on "+updated.Date+" at "+updated.Slot+" was cancelled",
		map[string]string{"appointmentId": updated.ID, "cancelledBy": cancelledBy},
	)
	return updated, nil
}

func (s *Service) getOwned(ctx context.Context, caller auth.Caller, appointmentID string) (models.Appointment, error) {
	appointment, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrAppointmentNotFound
		}
		return models.Appointment{}, err
	}
	if !caller.IsAdmin() && appointment.DoctorID != caller.ID && appointment.PatientID != caller.ID {
		return models.Appointment{}, ErrForbidden
	}
	return appointment, nil
}

func (s *Service) checkSlotOpen(doctor models.User, date, slot string, loc *time.Location) error {
	allowed, err := schedule.SlotAllowed(doctorAvailability(doctor), date, slot, loc)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrSlotNotOffered
	}
	past, err := schedule.IsSlotPast(date, slot, loc, s.now())
	if err != nil {
		return err
	}
	if past {
		return ErrSlotPast
	}
	return nil
}

func (s *Service) doctorLocation(doctor models.User) *time.Location {
	if doctor.Timezone != "" {
		if loc, err := time.LoadLocation(doctor.Timezone); err == nil {
			return loc
		}
	}
	return s.defaultTZ
}

func doctorAvailability(doctor models.User) map[string][]string {
	if doctor.Doctor == nil {
		return nil
	}
	return doctor.Doctor.Availability
}
