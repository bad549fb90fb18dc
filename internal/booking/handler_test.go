package booking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"telehealth-backend/internal/middleware"
	"telehealth-backend/internal/payments"
	"telehealth-backend/internal/validation"

	"github.com/stretchr/testify/assert"
)

func newConfirmRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.ContextWithCaller(req.Context(), patientCaller))
}

func TestConfirmAcceptsEchoedAppointmentData(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, patientCaller.ID), nil
		},
	}
	handler := NewHandler(newBookingService(repo, provider, &fakeNotifier{}), validation.New(), testLogger())

	body := `{
		"paymentIntentId": "pi_echo",
		"appointmentData": {"date": "` + testDate + `", "slot": "` + testSlot + `", "patientName": "Pat Test"}
	}`
	rec := httptest.NewRecorder()
	handler.Confirm(rec, newConfirmRequest(body))

	assert.Equal(t, http.StatusCreated, rec.Code, "echoed appointmentData must not fail decoding")
	assert.Contains(t, rec.Body.String(), `"doctorId":"doc-1"`)
}

func TestConfirmRejectsMismatchedEcho(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, patientCaller.ID), nil
		},
	}
	handler := NewHandler(newBookingService(repo, provider, &fakeNotifier{}), validation.New(), testLogger())

	body := `{
		"paymentIntentId": "pi_echo",
		"appointmentData": {"date": "` + testDate + `", "slot": "10:30-11:00", "patientName": "Pat Test"}
	}`
	rec := httptest.NewRecorder()
	handler.Confirm(rec, newConfirmRequest(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.appointments, "no appointment on an echo mismatch")
}

func TestConfirmWithoutEchoStillWorks(t *testing.T) {
	repo := newFakeBookingRepo(testDoctor("doc-1"))
	provider := &fakeProvider{
		GetIntentFunc: func(ctx context.Context, id string) (payments.Intent, error) {
			return succeededIntent(id, patientCaller.ID), nil
		},
	}
	handler := NewHandler(newBookingService(repo, provider, &fakeNotifier{}), validation.New(), testLogger())

	rec := httptest.NewRecorder()
	handler.Confirm(rec, newConfirmRequest(`{"paymentIntentId": "pi_plain"}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
}
