package models

import "time"

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"

	CurrencyUSD = "USD"
	CurrencyPKR = "PKR"

	NegotiationPending     = "pending"
	NegotiationNegotiating = "negotiating"
	NegotiationAgreed      = "agreed"

	SenderAdmin  = "admin"
	SenderDoctor = "doctor"

	AppointmentRequested = "requested"
	AppointmentAccepted  = "accepted"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentMissed    = "missed"

	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

func IsValidCurrency(value string) bool {
	return value == CurrencyUSD || value == CurrencyPKR
}

// ActiveAppointmentStatuses are the statuses that hold a slot.
var ActiveAppointmentStatuses = []string{AppointmentRequested, AppointmentAccepted}

type NegotiationMessage struct {
	Sender      string    `bson:"sender" json:"sender"`
	Message     string    `bson:"message" json:"message"`
	ProposedFee float64   `bson:"proposedFee,omitempty" json:"proposedFee,omitempty"`
	Currency    string    `bson:"currency,omitempty" json:"currency,omitempty"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}

// DoctorProfile is embedded on users with role "doctor". Availability maps a
// lowercase weekday name ("monday") to the slot strings bookable that day.
type DoctorProfile struct {
	Specialization            string               `bson:"specialization,omitempty" json:"specialization,omitempty"`
	About                     string               `bson:"about,omitempty" json:"about,omitempty"`
	Availability              map[string][]string  `bson:"availability,omitempty" json:"availability,omitempty"`
	ProposedFee               float64              `bson:"proposedFee,omitempty" json:"proposedFee,omitempty"`
	AgreedFee                 float64              `bson:"agreedFee,omitempty" json:"agreedFee,omitempty"`
	Currency                  string               `bson:"currency,omitempty" json:"currency,omitempty"`
	Commission                float64              `bson:"commission,omitempty" json:"commission,omitempty"`
	EarningNegotiationStatus  string               `bson:"earningNegotiationStatus" json:"earningNegotiationStatus"`
	EarningNegotiationHistory []NegotiationMessage `bson:"earningNegotiationHistory,omitempty" json:"earningNegotiationHistory,omitempty"`
	RatingAvg                 float64              `bson:"ratingAvg" json:"ratingAvg"`
	RatingCount               int                  `bson:"ratingCount" json:"ratingCount"`
}

type User struct {
	ID           string         `bson:"_id,omitempty" json:"id"`
	Name         string         `bson:"name" json:"name"`
	Email        string         `bson:"email" json:"email"`
	PasswordHash string         `bson:"passwordHash" json:"-"`
	Role         string         `bson:"role" json:"role"`
	Phone        string         `bson:"phone,omitempty" json:"phone,omitempty"`
	Gender       string         `bson:"gender,omitempty" json:"gender,omitempty"`
	Timezone     string         `bson:"timezone,omitempty" json:"timezone,omitempty"`
	Doctor       *DoctorProfile `bson:"doctor,omitempty" json:"doctor,omitempty"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time      `bson:"updatedAt" json:"updatedAt"`
}

type Appointment struct {
	ID                 string    `bson:"_id,omitempty" json:"id"`
	PatientID          string    `bson:"patientId" json:"patientId"`
	DoctorID           string    `bson:"doctorId" json:"doctorId"`
	Date               string    `bson:"date" json:"date"`
	Slot               string    `bson:"slot" json:"slot"`
	StartAt            time.Time `bson:"startAt" json:"startAt"`
	Timezone           string    `bson:"timezone" json:"timezone"`
	Status             string    `bson:"status" json:"status"`
	CancelledBy        string    `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	CancellationReason string    `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`
	VideoCallLink      string    `bson:"videoCallLink,omitempty" json:"videoCallLink,omitempty"`
	Notes              string    `bson:"notes,omitempty" json:"notes,omitempty"`
	PaymentStatus      string    `bson:"paymentStatus" json:"paymentStatus"`
	PaymentIntentID    string    `bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	StripeChargeID     string    `bson:"stripeChargeId,omitempty" json:"stripeChargeId,omitempty"`
	RefundID           string    `bson:"refundId,omitempty" json:"refundId,omitempty"`
	Fee                float64   `bson:"fee" json:"fee"`
	Currency           string    `bson:"currency" json:"currency"`
	PatientName        string    `bson:"patientName" json:"patientName"`
	AgeGroup           string    `bson:"ageGroup,omitempty" json:"ageGroup,omitempty"`
	Gender             string    `bson:"gender,omitempty" json:"gender,omitempty"`
	Problem            string    `bson:"problem,omitempty" json:"problem,omitempty"`
	CreatedAt          time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time `bson:"updatedAt" json:"updatedAt"`
}

type Review struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	DoctorID      string    `bson:"doctorId" json:"doctorId"`
	PatientID     string    `bson:"patientId" json:"patientId"`
	AppointmentID string    `bson:"appointmentId" json:"appointmentId,omitempty"`
	Rating        int       `bson:"rating" json:"rating"`
	Review        string    `bson:"review" json:"review"`
	IsAnonymous   bool      `bson:"isAnonymous" json:"isAnonymous"`
	IsApproved    bool      `bson:"isApproved" json:"isApproved"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

type Notification struct {
	ID        string            `bson:"_id,omitempty" json:"id"`
	UserID    string            `bson:"userId" json:"userId"`
	Type      string            `bson:"type" json:"type"`
	Title     string            `bson:"title" json:"title"`
	Body      string            `bson:"body" json:"body"`
	Data      map[string]string `bson:"data,omitempty" json:"data,omitempty"`
	Read      bool              `bson:"read" json:"read"`
	CreatedAt time.Time         `bson:"createdAt" json:"createdAt"`
}

// PaymentEvent records a processed provider webhook event for idempotency.
type PaymentEvent struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	EventID    string    `bson:"eventId" json:"eventId"`
	Type       string    `bson:"type" json:"type"`
	IntentID   string    `bson:"intentId" json:"intentId"`
	ReceivedAt time.Time `bson:"receivedAt" json:"receivedAt"`
}
