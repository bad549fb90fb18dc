package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/locker"
	"telehealth-backend/internal/models"
	"telehealth-backend/internal/payments"
	"telehealth-backend/internal/schedule"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var _ payments.Provider = (*fakeProvider)(nil)

type fakeProvider struct {
	CreateIntentFunc  func(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (payments.Intent, error)
	GetIntentFunc     func(ctx context.Context, id string) (payments.Intent, error)
	RefundFunc        func(ctx context.Context, intentID, reason string) (payments.RefundReceipt, error)
	VerifyWebhookFunc func(payload []byte, signature string) (payments.WebhookEvent, error)

	mu          sync.Mutex
	refundCalls []string
}

func (f *fakeProvider) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (payments.Intent, error) {
	if f.CreateIntentFunc != nil {
		return f.CreateIntentFunc(ctx, amountMinor, currency, metadata)
	}
	return payments.Intent{}, errors.New("CreateIntentFunc not set")
}

func (f *fakeProvider) GetIntent(ctx context.Context, id string) (payments.Intent, error) {
	if f.GetIntentFunc != nil {
		return f.GetIntentFunc(ctx, id)
	}
	return payments.Intent{}, errors.New("GetIntentFunc not set")
}

func (f *fakeProvider) Refund(ctx context.Context, intentID, reason string) (payments.RefundReceipt, error) {
	f.mu.Lock()
	f.refundCalls = append(f.refundCalls, intentID)
	f.mu.Unlock()
	if f.RefundFunc != nil {
		return f.RefundFunc(ctx, intentID, reason)
	}
	return payments.RefundReceipt{ID: "re_" + intentID, Status: "succeeded"}, nil
}

func (f *fakeProvider) VerifyWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	if f.VerifyWebhookFunc != nil {
		return f.VerifyWebhookFunc(payload, signature)
	}
	return payments.WebhookEvent{}, errors.New("VerifyWebhookFunc not set")
}

func (f *fakeProvider) refunded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refundCalls...)
}

var _ Repository = (*fakeBookingRepo)(nil)

// fakeBookingRepo is an in-memory store that mirrors the unique partial index
// on (doctorId, date, slot) for active appointments.
type fakeBookingRepo struct {
	mu           sync.Mutex
	doctors      map[string]models.User
	appointments map[string]models.Appointment
	events       map[string]bool
}

func newFakeBookingRepo(doctors ...models.User) *fakeBookingRepo {
	repo := &fakeBookingRepo{
		doctors:      make(map[string]models.User),
		appointments: make(map[string]models.Appointment),
		events:       make(map[string]bool),
	}
	for _, doctor := range doctors {
		repo.doctors[doctor.ID] = doctor
	}
	return repo
}

func (f *fakeBookingRepo) GetDoctor(ctx context.Context, doctorID string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doctor, ok := f.doctors[doctorID]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	return doctor, nil
}

func (f *fakeBookingRepo) ListActiveForDay(ctx context.Context, doctorID, date string) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]models.Appointment, 0)
	for _, appointment := range f.appointments {
		if appointment.DoctorID == doctorID && appointment.Date == date && isActive(appointment.Status) {
			items = append(items, appointment)
		}
	}
	return items, nil
}

func (f *fakeBookingRepo) InsertAppointment(ctx context.Context, appointment models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.appointments {
		if existing.DoctorID == appointment.DoctorID &&
			existing.Date == appointment.Date &&
			existing.Slot == appointment.Slot &&
			isActive(existing.Status) {
			return ErrDuplicateSlot
		}
	}
	f.appointments[appointment.ID] = appointment
	return nil
}

func (f *fakeBookingRepo) GetAppointment(ctx context.Context, id string) (models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appointment, ok := f.appointments[id]
	if !ok {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	return appointment, nil
}

func (f *fakeBookingRepo) SetPaymentStatusByIntent(ctx context.Context, intentID, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, appointment := range f.appointments {
		if appointment.PaymentIntentID == intentID {
			appointment.PaymentStatus = status
			f.appointments[id] = appointment
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookingRepo) MarkRefunded(ctx context.Context, appointmentID, refundID, cancelledBy, reason string, now time.Time) (models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appointment, ok := f.appointments[appointmentID]
	if !ok || appointment.PaymentStatus != models.PaymentPaid {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	appointment.PaymentStatus = models.PaymentRefunded
	appointment.Status = models.AppointmentCancelled
	appointment.CancelledBy = cancelledBy
	appointment.CancellationReason = reason
	appointment.RefundID = refundID
	appointment.UpdatedAt = now
	f.appointments[appointmentID] = appointment
	return appointment, nil
}

func (f *fakeBookingRepo) UpdateStatus(ctx context.Context, appointmentID string, fromStatuses []string, set bson.M) (models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appointment, ok := f.appointments[appointmentID]
	if !ok {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	matched := false
	for _, status := range fromStatuses {
		if appointment.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	if v, ok := set["status"].(string); ok {
		appointment.Status = v
	}
	if v, ok := set["videoCallLink"].(string); ok {
		appointment.VideoCallLink = v
	}
	if v, ok := set["notes"].(string); ok {
		appointment.Notes = v
	}
	if v, ok := set["cancelledBy"].(string); ok {
		appointment.CancelledBy = v
	}
	if v, ok := set["cancellationReason"].(string); ok {
		appointment.CancellationReason = v
	}
	f.appointments[appointmentID] = appointment
	return appointment, nil
}

func (f *fakeBookingRepo) ListForPatient(ctx context.Context, patientID string, paidOnly bool, limit, offset int64) ([]models.Appointment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]models.Appointment, 0)
	for _, appointment := range f.appointments {
		if appointment.PatientID != patientID {
			continue
		}
		if paidOnly && appointment.PaymentStatus != models.PaymentPaid && appointment.PaymentStatus != models.PaymentRefunded {
			continue
		}
		items = append(items, appointment)
	}
	return items, int64(len(items)), nil
}

func (f *fakeBookingRepo) ListForDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.Appointment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]models.Appointment, 0)
	for _, appointment := range f.appointments {
		if appointment.DoctorID == doctorID {
			items = append(items, appointment)
		}
	}
	return items, int64(len(items)), nil
}

func (f *fakeBookingRepo) RecordPaymentEvent(ctx context.Context, event models.PaymentEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events[event.EventID] {
		return false, nil
	}
	f.events[event.EventID] = true
	return true, nil
}

func (f *fakeBookingRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appointments)
}

func isActive(status string) bool {
	for _, active := range models.ActiveAppointmentStatuses {
		if status == active {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	users []string
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, notifType, title, body string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notifType)
	f.users = append(f.users, userID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 2025-01-01 is a Wednesday.
const (
	testDate = "2025-01-01"
	testSlot = "10:00-10:30"
)

func testDoctor(id string) models.User {
	return models.User{
		ID:       id,
		Name:     "Dr. Slot",
		Role:     models.RoleDoctor,
		Timezone: "UTC",
		Doctor: &models.DoctorProfile{
			Availability: map[string][]string{
				"wednesday": {"10:00-10:30", "10:30-11:00"},
			},
			EarningNegotiationStatus: models.NegotiationAgreed,
			AgreedFee:                4500,
			Currency:                 models.CurrencyPKR,
		},
	}
}

func newBookingService(repo Repository, provider payments.Provider, notifier Notifier) *Service {
	service := NewService(repo, provider, locker.NewLocal(), notifier, testLogger(), time.UTC, "https://meet.example/call")
	service.now = func() time.Time {
		return time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC)
	}
	counter := int64(0)
	service.newID = func() string {
		return "appt-" + strconv.FormatInt(atomic.AddInt64(&counter, 1), 10)
	}
	return service
}

func testMetadata(patientID string) map[string]string {
	meta, _ := IntentMetadata{
		DoctorID:    "doc-1",
		PatientID:   patientID,
		PatientName: "Pat Test",
		Date:        testDate,
		Slot:        testSlot,
		Amount:      4500,
		Currency:    models.CurrencyPKR,
		BookedAt:    time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC),
	}.Encode()
	return meta
}

func succeededIntent(id, patientID string) payments.Intent {
	return payments.Intent{
		ID:       id,
		Status:   payments.StatusSucceeded,
		Metadata: testMetadata(patientID),
		ChargeID: "ch_" + id,
	}
}

var patientCaller = auth.Caller{ID: "pat-1", Role: models.RolePatient}

func TestCreateIntent(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		CreateIntentFunc: func(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (payments.Intent, error) {
			assert.Equal(t, int64(450000), amountMinor)
			assert.Equal(t, models.CurrencyPKR, currency)
			assert.Equal(t, "doc-1", metadata["doctorId"])
			assert.Equal(t, "pat-1", metadata["patientId"])
			return payments.Intent{ID: "pi_1", ClientSecret: "secret_1"}, nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})

	resp, err := service.CreateIntent(context.Background(), patientCaller, CreateIntentRequest{
		Amount:   4500,
		Currency: models.CurrencyPKR,
		DoctorID: "doc-1",
		AppointmentData: AppointmentData{
			Date:        testDate,
			Slot:        testSlot,
			PatientName: "Pat Test",
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, "pi_1", resp.PaymentIntentID)
	assert.Equal(t, "secret_1", resp.ClientSecret)
	assert.Equal(t, 0, repo.count(), "no appointment before confirm")
}

func TestCreateIntentRejections(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	service := newBookingService(repo, &fakeProvider{}, &fakeNotifier{})
	ctx := context.Background()

	base := CreateIntentRequest{
		Amount:   4500,
		Currency: models.CurrencyPKR,
		DoctorID: "doc-1",
		AppointmentData: AppointmentData{
			Date:        testDate,
			Slot:        testSlot,
			PatientName: "Pat Test",
		},
	}

	_, err := service.CreateIntent(ctx, auth.Caller{ID: "doc-1", Role: models.RoleDoctor}, base)
	assert.ErrorIs(t, err, ErrForbidden)

	missing := base
	missing.DoctorID = "doc-404"
	_, err = service.CreateIntent(ctx, patientCaller, missing)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	offSchedule := base
	offSchedule.AppointmentData.Slot = "22:00-22:30"
	_, err = service.CreateIntent(ctx, patientCaller, offSchedule)
	assert.ErrorIs(t, err, ErrSlotNotOffered)

	past := base
	past.AppointmentData.Date = "2024-12-25" // a Wednesday before "now"
	_, err = service.CreateIntent(ctx, patientCaller, past)
	assert.ErrorIs(t, err, ErrSlotPast)
}

func TestConfirmCreatesAppointment(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
	}
	notifier := &fakeNotifier{}
	service := newBookingService(repo, provider, notifier)

	appointment, err := service.Confirm(context.Background(), patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})
	assert.NoError(t, err)
	assert.Equal(t, models.AppointmentRequested, appointment.Status)
	assert.Equal(t, models.PaymentPaid, appointment.PaymentStatus)
	assert.Equal(t, "pi_1", appointment.PaymentIntentID)
	assert.Equal(t, "ch_pi_1", appointment.StripeChargeID)
	assert.Equal(t, testSlot, appointment.Slot)

	wantStart, _ := schedule.SlotStart(testDate, testSlot, time.UTC)
	assert.True(t, appointment.StartAt.Equal(wantStart))

	assert.Empty(t, provider.refunded())
	assert.Equal(t, []string{"new_appointment"}, notifier.sent)
	assert.Equal(t, []string{"doc-1"}, notifier.users)
}

func TestConfirmRequiresSucceededIntent(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			intent := succeededIntent(id, "pat-1")
			intent.Status = "requires_payment_method"
			return intent, nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})

	_, err := service.Confirm(context.Background(), patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})

	var state *PaymentStateError
	assert.ErrorAs(t, err, &state)
	assert.Equal(t, "requires_payment_method", state.Status)
	assert.Equal(t, 0, repo.count(), "no appointment for unpaid intent")
	assert.Empty(t, provider.refunded(), "no refund for unpaid intent")
}

func TestConfirmIdentityMismatch(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "someone-else"), nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})

	_, err := service.Confirm(context.Background(), patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Equal(t, 0, repo.count())
	assert.Empty(t, provider.refunded())
}

func TestConfirmConflictRefundsLoser(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})
	ctx := context.Background()

	_, err := service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_winner"})
	assert.NoError(t, err)

	_, err = service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_loser"})
	var conflict *SlotConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, "re_pi_loser", conflict.RefundID)
	assert.False(t, conflict.RefundFailed)

	assert.Equal(t, 1, repo.count(), "loser creates no appointment")
	assert.Equal(t, []string{"pi_loser"}, provider.refunded(), "refund references the loser's own intent")
}

func TestConfirmConcurrentSameSlot(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})

	var wg sync.WaitGroup
	results := make([]error, 2)
	intents := []string{"pi_a", "pi_b"}
	for i := range intents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = service.Confirm(context.Background(), patientCaller, ConfirmRequest{PaymentIntentID: intents[i]})
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		if err == nil {
			winners++
			continue
		}
		var conflict *SlotConflictError
		assert.ErrorAs(t, err, &conflict)
		assert.Contains(t, provider.refunded(), intents[i])
	}
	assert.Equal(t, 1, winners, "exactly one confirm wins the slot")
	assert.Equal(t, 1, repo.count())
	assert.Len(t, provider.refunded(), 1)
}

func TestConfirmRefundFailureIsFlagged(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
		RefundFunc: func(ctx context.Context, intentID, reason string) (payments.RefundReceipt, error) {
			return payments.RefundReceipt{}, errors.New("provider down")
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})
	ctx := context.Background()

	_, err := service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_winner"})
	assert.NoError(t, err)

	_, err = service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_loser"})
	var conflict *SlotConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.RefundFailed)
	assert.Empty(t, conflict.RefundID)
}

func TestConfirmAvailabilityWithdrawn(t *testing.T) {
	doctor := testDoctor("doc-1")
	doctor.Doctor.Availability = map[string][]string{}
	repo := newFakeBookingRepo(doctor)
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})

	_, err := service.Confirm(context.Background(), patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})
	var conflict *SlotConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"pi_1"}, provider.refunded())
	assert.Equal(t, 0, repo.count())
}

func TestWebhookIdempotency(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
		VerifyWebhookFunc: func(payload []byte, signature string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{ID: "evt_1", Type: payments.EventIntentSucceeded, IntentID: "pi_1"}, nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})
	ctx := context.Background()

	_, err := service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})
	assert.NoError(t, err)

	assert.NoError(t, service.HandleWebhook(ctx, []byte("{}"), "sig"))
	assert.NoError(t, service.HandleWebhook(ctx, []byte("{}"), "sig"), "re-delivery is a no-op")
	assert.Len(t, repo.events, 1, "event id recorded once")
}

func TestWebhookBadSignature(t *testing.T) {
	provider := &fakeProvider{
		VerifyWebhookFunc: func(payload []byte, signature string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{}, payments.ErrBadSignature
		},
	}
	service := newBookingService(newFakeBookingRepo(), provider, &fakeNotifier{})

	err := service.HandleWebhook(context.Background(), []byte("{}"), "bad")
	assert.ErrorIs(t, err, payments.ErrBadSignature)
}

func TestWebhookFailedPaymentMarksAppointment(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	repo.appointments["appt-1"] = models.Appointment{
		ID:              "appt-1",
		PaymentIntentID: "pi_1",
		PaymentStatus:   models.PaymentPending,
		Status:          models.AppointmentRequested,
	}
	provider := &fakeProvider{
		VerifyWebhookFunc: func(payload []byte, signature string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{ID: "evt_2", Type: payments.EventIntentFailed, IntentID: "pi_1"}, nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})

	assert.NoError(t, service.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	stored, _ := repo.GetAppointment(context.Background(), "appt-1")
	assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)
}

func TestRefundLifecycle(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
	}
	notifier := &fakeNotifier{}
	service := newBookingService(repo, provider, notifier)
	ctx := context.Background()

	appointment, err := service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})
	assert.NoError(t, err)

	admin := auth.Caller{ID: "admin-1", Role: models.RoleAdmin}

	_, err = service.Refund(ctx, patientCaller, RefundRequest{AppointmentID: appointment.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	resp, err := service.Refund(ctx, admin, RefundRequest{AppointmentID: appointment.ID, Reason: "patient request"})
	assert.NoError(t, err)
	assert.Equal(t, "re_pi_1", resp.RefundID)
	assert.Equal(t, models.PaymentRefunded, resp.PaymentStatus)
	assert.Equal(t, models.AppointmentCancelled, resp.Status)

	_, err = service.Refund(ctx, admin, RefundRequest{AppointmentID: appointment.ID})
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	stored, _ := repo.GetAppointment(ctx, appointment.ID)
	assert.Equal(t, "re_pi_1", stored.RefundID, "first refund id is preserved")
	assert.Contains(t, notifier.sent, "payment_refunded")
}

func TestRefundRequiresPaidAppointment(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	repo.appointments["appt-1"] = models.Appointment{
		ID:            "appt-1",
		PaymentStatus: models.PaymentPending,
		Status:        models.AppointmentRequested,
	}
	service := newBookingService(repo, &fakeProvider{}, &fakeNotifier{})

	admin := auth.Caller{ID: "admin-1", Role: models.RoleAdmin}
	_, err := service.Refund(context.Background(), admin, RefundRequest{AppointmentID: "appt-1"})
	assert.ErrorIs(t, err, ErrNotPaid)
}

func TestAcceptCompleteLifecycle(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
	}
	service := newBookingService(repo, provider, &fakeNotifier{})
	ctx := context.Background()

	appointment, err := service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})
	assert.NoError(t, err)

	doctor := auth.Caller{ID: "doc-1", Role: models.RoleDoctor}
	otherDoctor := auth.Caller{ID: "doc-2", Role: models.RoleDoctor}

	_, err = service.Accept(ctx, otherDoctor, appointment.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	accepted, err := service.Accept(ctx, doctor, appointment.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.AppointmentAccepted, accepted.Status)
	assert.Equal(t, "https://meet.example/call/"+appointment.ID, accepted.VideoCallLink)

	_, err = service.Accept(ctx, doctor, appointment.ID)
	assert.ErrorIs(t, err, ErrBadTransition, "accept is not repeatable")

	completed, err := service.Complete(ctx, doctor, appointment.ID, "all good")
	assert.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, completed.Status)
	assert.Equal(t, "all good", completed.Notes)
}

func TestCancelNotifiesCounterpart(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, "pat-1"), nil
		},
	}
	notifier := &fakeNotifier{}
	service := newBookingService(repo, provider, notifier)
	ctx := context.Background()

	appointment, err := service.Confirm(ctx, patientCaller, ConfirmRequest{PaymentIntentID: "pi_1"})
	assert.NoError(t, err)

	cancelled, err := service.Cancel(ctx, patientCaller, appointment.ID, "can't make it")
	assert.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, cancelled.Status)
	assert.Equal(t, models.RolePatient, cancelled.CancelledBy)

	assert.Equal(t, "doc-1", notifier.users[len(notifier.users)-1], "doctor is told about a patient cancel")

	_, err = service.Cancel(ctx, patientCaller, appointment.ID, "again")
	assert.ErrorIs(t, err, ErrBadTransition)
}
