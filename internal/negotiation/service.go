package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound        = errors.New("doctor not found")
	ErrForbidden       = errors.New("caller may not access this negotiation")
	ErrMessageRequired = errors.New("message is required")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Get(ctx context.Context, caller auth.Caller, doctorID string) (Record, error) {
	if err := s.authorize(caller, doctorID); err != nil {
		return Record{}, err
	}
	user, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return recordFromUser(user), nil
}

func (s *Service) List(ctx context.Context, caller auth.Caller, status string, limit, offset int64) ([]Summary, int64, error) {
	if !caller.IsAdmin() {
		return nil, 0, ErrForbidden
	}
	users, total, err := s.repo.ListDoctors(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	summaries := make([]Summary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, summaryFromUser(user))
	}
	return summaries, total, nil
}

// PostUpdate applies one admin or doctor negotiation update: mutates the fee
// fields when provided, evaluates the status transition, and appends exactly
// one transcript message.
func (s *Service) PostUpdate(ctx context.Context, caller auth.Caller, doctorID string, req UpdateRequest) (Record, error) {
	if err := s.authorize(caller, doctorID); err != nil {
		return Record{}, err
	}

	message := strings.TrimSpace(req.Message)
	if caller.IsDoctor() && message == "" {
		return Record{}, ErrMessageRequired
	}

	current, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	record := recordFromUser(current)

	sender := models.SenderDoctor
	if caller.IsAdmin() {
		sender = models.SenderAdmin
	}

	entry := models.NegotiationMessage{
		Sender:    sender,
		Message:   message,
		Timestamp: s.now(),
	}
	var update Update

	if req.ProposedFee != nil {
		fee := *req.ProposedFee
		update.ProposedFee = &fee
		entry.ProposedFee = fee

		// A fee update only re-opens the negotiation when it changes the
		// economic terms: re-proposing the already-agreed fee is a no-op
		// transition.
		next := models.NegotiationNegotiating
		if record.Status == models.NegotiationAgreed && record.AgreedFee == fee {
			next = models.NegotiationAgreed
		}
		if next != record.Status {
			update.Status = &next
		}
	} else if req.Status == models.NegotiationNegotiating && caller.IsAdmin() {
		next := models.NegotiationNegotiating
		update.Status = &next
	}

	// Unrecognized currencies are ignored rather than rejected so transport
	// noise never reaches the state machine.
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); models.IsValidCurrency(currency) {
		update.Currency = &currency
		entry.Currency = currency
	}

	if caller.IsAdmin() && req.Commission != nil {
		commission := *req.Commission
		update.Commission = &commission
	}

	update.Message = &entry

	updated, err := s.repo.Apply(ctx, doctorID, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return recordFromUser(updated), nil
}

// Agree finalizes the negotiation at an explicit fee. Admin only. The agreed
// fee, status and the system transcript message move in a single write.
func (s *Service) Agree(ctx context.Context, caller auth.Caller, doctorID string, req AgreeRequest) (Record, error) {
	if !caller.IsAdmin() {
		return Record{}, ErrForbidden
	}

	current, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	record := recordFromUser(current)

	currency := record.Currency
	if currency == "" {
		currency = models.CurrencyPKR
	}

	agreed := models.NegotiationAgreed
	fee := req.AgreedFee
	entry := models.NegotiationMessage{
		Sender:      models.SenderAdmin,
		Message:     fmt.Sprintf("Fee agreed at %.0f %s", fee, currency),
		ProposedFee: fee,
		Currency:    currency,
		Timestamp:   s.now(),
	}

	update := Update{
		AgreedFee: &fee,
		Status:    &agreed,
		Message:   &entry,
	}
	if req.Commission != nil {
		commission := *req.Commission
		update.Commission = &commission
	}

	updated, err := s.repo.Apply(ctx, doctorID, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return recordFromUser(updated), nil
}

func (s *Service) authorize(caller auth.Caller, doctorID string) error {
	switch {
	case caller.IsAdmin():
		return nil
	case caller.IsDoctor() && caller.ID == doctorID:
		return nil
	default:
		return ErrForbidden
	}
}
