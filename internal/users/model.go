package users

import (
	"errors"

	"telehealth-backend/internal/models"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrForbidden      = errors.New("forbidden")
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=patient doctor"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Gender   string `json:"gender" validate:"omitempty,oneof=male female other"`
	Timezone string `json:"timezone" validate:"omitempty,max=64"`

	// Doctor-only profile fields, ignored for patients.
	Specialization string              `json:"specialization" validate:"omitempty,max=100"`
	About          string              `json:"about" validate:"omitempty,max=2000"`
	Availability   map[string][]string `json:"availability" validate:"omitempty,dive,dive,slot"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type AuthResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         models.User `json:"user"`
}

type UpdateAvailabilityRequest struct {
	Availability map[string][]string `json:"availability" validate:"required,dive,dive,slot"`
}

// DoctorSummary is the public directory entry. Fee fields surface only once
// the negotiation reached "agreed".
type DoctorSummary struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Specialization string              `json:"specialization,omitempty"`
	About          string              `json:"about,omitempty"`
	Availability   map[string][]string `json:"availability,omitempty"`
	Fee            float64             `json:"fee,omitempty"`
	Currency       string              `json:"currency,omitempty"`
	RatingAvg      float64             `json:"ratingAvg"`
	RatingCount    int                 `json:"ratingCount"`
}

func summaryFromUser(user models.User) DoctorSummary {
	summary := DoctorSummary{ID: user.ID, Name: user.Name}
	if user.Doctor == nil {
		return summary
	}
	summary.Specialization = user.Doctor.Specialization
	summary.About = user.Doctor.About
	summary.Availability = user.Doctor.Availability
	summary.RatingAvg = user.Doctor.RatingAvg
	summary.RatingCount = user.Doctor.RatingCount
	if user.Doctor.EarningNegotiationStatus == models.NegotiationAgreed {
		summary.Fee = user.Doctor.AgreedFee
		summary.Currency = user.Doctor.Currency
	}
	return summary
}
