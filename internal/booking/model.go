package booking

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"telehealth-backend/internal/models"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrForbidden           = errors.New("caller may not perform this action")
	ErrIdentityMismatch    = errors.New("payment intent does not belong to caller")
	ErrSlotNotOffered      = errors.New("slot is not on the doctor's availability")
	ErrSlotPast            = errors.New("slot is in the past")
	ErrAlreadyRefunded     = errors.New("payment already refunded")
	ErrNotPaid             = errors.New("appointment was never paid")
	ErrBadMetadata         = errors.New("payment intent metadata is invalid")
	ErrBadTransition       = errors.New("invalid appointment status transition")
)

// ProviderError wraps a payment-provider failure so handlers can sanitize it
// before it reaches a client.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return "payment provider: " + e.Op + ": " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// PaymentStateError reports a confirm attempt against an intent that is not
// in a succeeded state. The client is expected to poll and redrive.
type PaymentStateError struct {
	Status string
}

func (e *PaymentStateError) Error() string {
	return "payment not completed, current status: " + e.Status
}

// SlotConflictError is returned when the slot was taken between payment
// capture and appointment creation. RefundID is set when the compensating
// refund went through; RefundFailed flags the case needing operator
// attention.
type SlotConflictError struct {
	RefundID     string
	RefundFailed bool
}

func (e *SlotConflictError) Error() string {
	if e.RefundFailed {
		return "slot already booked; automatic refund failed, support has been alerted"
	}
	return "slot already booked; your payment has been refunded"
}

// IntentMetadata is the appointment context carried on the payment intent so
// the confirm step can rebuild the appointment without trusting a second
// client round-trip.
type IntentMetadata struct {
	DoctorID    string
	PatientID   string
	PatientName string
	Date        string
	Slot        string
	Problem     string
	AgeGroup    string
	Gender      string
	Amount      float64
	Currency    string
	BookedAt    time.Time
}

func (m IntentMetadata) validate() error {
	if m.DoctorID == "" || m.PatientID == "" || m.PatientName == "" {
		return ErrBadMetadata
	}
	if m.Date == "" || m.Slot == "" {
		return ErrBadMetadata
	}
	if m.Amount <= 0 || !models.IsValidCurrency(m.Currency) {
		return ErrBadMetadata
	}
	return nil
}

func (m IntentMetadata) Encode() (map[string]string, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return map[string]string{
		"doctorId":    m.DoctorID,
		"patientId":   m.PatientID,
		"patientName": m.PatientName,
		"date":        m.Date,
		"slot":        m.Slot,
		"problem":     m.Problem,
		"ageGroup":    m.AgeGroup,
		"gender":      m.Gender,
		"amount":      strconv.FormatFloat(m.Amount, 'f', -1, 64),
		"currency":    m.Currency,
		"bookedAt":    m.BookedAt.UTC().Format(time.RFC3339),
	}, nil
}

func DecodeIntentMetadata(raw map[string]string) (IntentMetadata, error) {
	amount, err := strconv.ParseFloat(raw["amount"], 64)
	if err != nil {
		return IntentMetadata{}, fmt.Errorf("%w: amount", ErrBadMetadata)
	}
	bookedAt, err := time.Parse(time.RFC3339, raw["bookedAt"])
	if err != nil {
		return IntentMetadata{}, fmt.Errorf("%w: bookedAt", ErrBadMetadata)
	}

	m := IntentMetadata{
		DoctorID:    raw["doctorId"],
		PatientID:   raw["patientId"],
		PatientName: raw["patientName"],
		Date:        raw["date"],
		Slot:        raw["slot"],
		Problem:     raw["problem"],
		AgeGroup:    raw["ageGroup"],
		Gender:      raw["gender"],
		Amount:      amount,
		Currency:    raw["currency"],
		BookedAt:    bookedAt,
	}
	if err := m.validate(); err != nil {
		return IntentMetadata{}, err
	}
	return m, nil
}

type AppointmentData struct {
	Date        string `json:"date" validate:"required,date"`
	Slot        string `json:"slot" validate:"required,slot"`
	PatientName string `json:"patientName" validate:"required"`
	AgeGroup    string `json:"ageGroup"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other"`
	Problem     string `json:"problem"`
}

type CreateIntentRequest struct {
	Amount          float64         `json:"amount" validate:"required,gt=0"`
	Currency        string          `json:"currency" validate:"required,currency"`
	DoctorID        string          `json:"doctorId" validate:"required"`
	AppointmentData AppointmentData `json:"appointmentData" validate:"required"`
}

type CreateIntentResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
}

// ConfirmRequest carries the intent id. The appointment itself is rebuilt
// from the intent metadata recorded at create time; clients may still echo
// appointmentData, which is cross-checked against that metadata.
type ConfirmRequest struct {
	PaymentIntentID string           `json:"paymentIntentId" validate:"required"`
	AppointmentData *AppointmentData `json:"appointmentData"`
}

type RefundRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required"`
	Reason        string `json:"reason"`
}

type RefundResponse struct {
	AppointmentID string `json:"appointmentId"`
	RefundID      string `json:"refundId"`
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}
