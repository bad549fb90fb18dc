package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/cache"
	"telehealth-backend/internal/models"
	"telehealth-backend/internal/schedule"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const doctorsCacheTTL = 60 * time.Second

type Service struct {
	repo    Repository
	tokens  *auth.Manager
	cache   cache.Cache
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

func NewService(repo Repository, tokens *auth.Manager, c cache.Cache, log *slog.Logger) *Service {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Service{
		repo:   repo,
		tokens: tokens,
		cache:  c,
		log:    log,
		now:    time.Now,
		newID:  func() string { return primitive.NewObjectID().Hex() },
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return AuthResponse{}, err
	}

	if err := validateAvailability(req.Availability); err != nil {
		return AuthResponse{}, err
	}

	now := s.now().UTC()
	user := models.User{
		ID:           s.newID(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
		Phone:        strings.TrimSpace(req.Phone),
		Gender:       req.Gender,
		Timezone:     req.Timezone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Role == models.RoleDoctor {
		user.Doctor = &models.DoctorProfile{
			Specialization:           strings.TrimSpace(req.Specialization),
			About:                    strings.TrimSpace(req.About),
			Availability:             req.Availability,
			EarningNegotiationStatus: models.NegotiationPending,
		}
	}

	if err := s.repo.Insert(ctx, user); err != nil {
		return AuthResponse{}, err
	}

	if user.Role == models.RoleDoctor {
		s.invalidateDoctorsCache(ctx)
	}

	return s.issueTokens(user)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return AuthResponse{}, ErrBadCredentials
		}
		return AuthResponse{}, err
	}

	if err := auth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		return AuthResponse{}, ErrBadCredentials
	}
	return s.issueTokens(user)
}

// Refresh exchanges a valid refresh token for a fresh token pair. The user
// is re-read so a deleted account or changed role invalidates old tokens.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (AuthResponse, error) {
	claims, err := s.tokens.Parse(req.RefreshToken)
	if err != nil {
		return AuthResponse{}, ErrBadCredentials
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return AuthResponse{}, ErrBadCredentials
		}
		return AuthResponse{}, err
	}
	return s.issueTokens(user)
}

func (s *Service) issueTokens(user models.User) (AuthResponse, error) {
	token, err := s.tokens.NewAccessToken(user.ID, user.Role)
	if err != nil {
		return AuthResponse{}, err
	}
	refresh, err := s.tokens.NewRefreshToken(user.ID, user.Role)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Token: token, RefreshToken: refresh, User: user}, nil
}

func (s *Service) Me(ctx context.Context, caller auth.Caller) (models.User, error) {
	user, err := s.repo.GetByID(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// ListDoctors serves the public directory. Results are cached briefly since
// the listing changes rarely and the mobile app polls it.
func (s *Service) ListDoctors(ctx context.Context, specialization string, limit, offset int64) ([]DoctorSummary, int64, error) {
	key := fmt.Sprintf("doctors:%s:%d:%d", specialization, limit, offset)
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var cached struct {
			Items []DoctorSummary `json:"items"`
			Total int64           `json:"total"`
		}
		if json.Unmarshal(raw, &cached) == nil {
			return cached.Items, cached.Total, nil
		}
	}

	users, total, err := s.repo.ListDoctors(ctx, specialization, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	items := make([]DoctorSummary, 0, len(users))
	for _, user := range users {
		items = append(items, summaryFromUser(user))
	}

	if raw, err := json.Marshal(struct {
		Items []DoctorSummary `json:"items"`
		Total int64           `json:"total"`
	}{items, total}); err == nil {
		if err := s.cache.Set(ctx, key, raw, doctorsCacheTTL); err != nil {
			s.log.Warn("doctors cache set failed", slog.String("error", err.Error()))
		}
	}
	return items, total, nil
}

func (s *Service) GetDoctor(ctx context.Context, id string) (DoctorSummary, error) {
	user, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return DoctorSummary{}, ErrNotFound
		}
		return DoctorSummary{}, err
	}
	return summaryFromUser(user), nil
}

// UpdateAvailability replaces a doctor's weekly availability table.
func (s *Service) UpdateAvailability(ctx context.Context, caller auth.Caller, req UpdateAvailabilityRequest) (DoctorSummary, error) {
	if !caller.IsDoctor() {
		return DoctorSummary{}, ErrForbidden
	}
	if err := validateAvailability(req.Availability); err != nil {
		return DoctorSummary{}, err
	}

	user, err := s.repo.SetAvailability(ctx, caller.ID, req.Availability, s.now().UTC())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return DoctorSummary{}, ErrNotFound
		}
		return DoctorSummary{}, err
	}

	s.invalidateDoctorsCache(ctx)
	return summaryFromUser(user), nil
}

func (s *Service) invalidateDoctorsCache(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, "doctors:"); err != nil {
		s.log.Warn("doctors cache invalidate failed", slog.String("error", err.Error()))
	}
}

func validateAvailability(availability map[string][]string) error {
	for day, slots := range availability {
		if !schedule.IsWeekdayName(day) {
			return fmt.Errorf("unknown weekday %q", day)
		}
		windows := make([]schedule.Interval, 0, len(slots))
		for _, slot := range slots {
			window, err := schedule.ParseSlot(slot)
			if err != nil {
				return fmt.Errorf("day %s: %w", day, err)
			}
			// Slot reservations are keyed by the exact slot string, so two
			// overlapping windows on one day would dodge that exclusivity.
			for _, other := range windows {
				if schedule.Overlaps(window, other) {
					return fmt.Errorf("day %s: slot %s overlaps another slot", day, slot)
				}
			}
			windows = append(windows, window)
		}
	}
	return nil
}
