package negotiation

import (
	"telehealth-backend/internal/models"
)

// Record is the negotiation view over a doctor's user document.
type Record struct {
	DoctorID    string                      `json:"doctorId"`
	DoctorName  string                      `json:"doctorName"`
	ProposedFee float64                     `json:"proposedFee,omitempty"`
	AgreedFee   float64                     `json:"agreedFee,omitempty"`
	Currency    string                      `json:"currency,omitempty"`
	Commission  float64                     `json:"commission,omitempty"`
	Status      string                      `json:"earningNegotiationStatus"`
	History     []models.NegotiationMessage `json:"earningNegotiationHistory"`
}

// Summary is the list-view row for the admin console.
type Summary struct {
	DoctorID       string  `json:"doctorId"`
	DoctorName     string  `json:"doctorName"`
	Specialization string  `json:"specialization,omitempty"`
	ProposedFee    float64 `json:"proposedFee,omitempty"`
	AgreedFee      float64 `json:"agreedFee,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	Status         string  `json:"earningNegotiationStatus"`
	Messages       int     `json:"messages"`
}

type UpdateRequest struct {
	Message     string   `json:"message"`
	ProposedFee *float64 `json:"proposedFee" validate:"omitempty,gt=0"`
	Currency    string   `json:"currency"`
	Commission  *float64 `json:"commission" validate:"omitempty,gte=0,lte=100"`
	Status      string   `json:"status" validate:"omitempty,oneof=negotiating"`
}

type AgreeRequest struct {
	AgreedFee  float64  `json:"agreedFee" validate:"required,gt=0"`
	Commission *float64 `json:"commission" validate:"omitempty,gte=0,lte=100"`
}

func recordFromUser(user models.User) Record {
	record := Record{
		DoctorID:   user.ID,
		DoctorName: user.Name,
		Status:     models.NegotiationPending,
		History:    []models.NegotiationMessage{},
	}
	if user.Doctor == nil {
		return record
	}
	record.ProposedFee = user.Doctor.ProposedFee
	record.AgreedFee = user.Doctor.AgreedFee
	record.Currency = user.Doctor.Currency
	record.Commission = user.Doctor.Commission
	if user.Doctor.EarningNegotiationStatus != "" {
		record.Status = user.Doctor.EarningNegotiationStatus
	}
	if user.Doctor.EarningNegotiationHistory != nil {
		record.History = user.Doctor.EarningNegotiationHistory
	}
	return record
}

func summaryFromUser(user models.User) Summary {
	summary := Summary{
		DoctorID:   user.ID,
		DoctorName: user.Name,
		Status:     models.NegotiationPending,
	}
	if user.Doctor == nil {
		return summary
	}
	summary.Specialization = user.Doctor.Specialization
	summary.ProposedFee = user.Doctor.ProposedFee
	summary.AgreedFee = user.Doctor.AgreedFee
	summary.Currency = user.Doctor.Currency
	summary.Messages = len(user.Doctor.EarningNegotiationHistory)
	if user.Doctor.EarningNegotiationStatus != "" {
		summary.Status = user.Doctor.EarningNegotiationStatus
	}
	return summary
}
