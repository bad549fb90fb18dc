package reviews

import (
	"errors"

	"telehealth-backend/internal/models"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrReviewNotFound      = errors.New("review not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrForbidden           = errors.New("forbidden")
	ErrDuplicateReview     = errors.New("review already exists")
	ErrNotEligible         = errors.New("no eligible appointment with this doctor")
)

type CreateRequest struct {
	DoctorID      string `json:"doctorId" validate:"required"`
	AppointmentID string `json:"appointmentId"`
	Rating        int    `json:"rating" validate:"required,min=1,max=5"`
	Review        string `json:"review" validate:"required,min=10,max=500"`
	IsAnonymous   bool   `json:"isAnonymous"`
}

// View is the public shape of a review. Anonymous reviews drop the patient
// reference and display name.
type View struct {
	ID          string `json:"id"`
	DoctorID    string `json:"doctorId"`
	PatientID   string `json:"patientId,omitempty"`
	PatientName string `json:"patientName,omitempty"`
	Rating      int    `json:"rating"`
	Review      string `json:"review"`
	IsAnonymous bool   `json:"isAnonymous"`
	CreatedAt   string `json:"createdAt"`
}

type RatingSummary struct {
	DoctorID    string  `json:"doctorId"`
	RatingAvg   float64 `json:"ratingAvg"`
	RatingCount int     `json:"ratingCount"`
}

func viewFromReview(review models.Review, patientName string) View {
	v := View{
		ID:          review.ID,
		DoctorID:    review.DoctorID,
		Rating:      review.Rating,
		Review:      review.Review,
		IsAnonymous: review.IsAnonymous,
		CreatedAt:   review.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if !review.IsAnonymous {
		v.PatientID = review.PatientID
		v.PatientName = patientName
	}
	return v
}
