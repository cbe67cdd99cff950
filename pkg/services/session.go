package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/crypto"
	"github.com/forensic-testing/fts-intake/pkg/logging"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/repositories"
)

// MinPasswordLength is the shortest password accepted by ChangePassword.
const MinPasswordLength = 8

// Session is an issued session token for a signed-in user.
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// SessionService signs users in and manages their own passwords.
type SessionService interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	ChangePassword(ctx context.Context, principal *auth.Principal, current, newPassword, confirm string) error
	// SeedSuperadmin creates the superadmin account when it does not exist.
	// Returns true when an account was created.
	SeedSuperadmin(ctx context.Context, email, password string) (bool, error)
}

type sessionService struct {
	userRepo repositories.UserRepository
	hasher   crypto.PasswordHasher
	sessions auth.SessionManager
	now      func() time.Time
	logger   *zap.Logger
}

// NewSessionService creates a SessionService.
func NewSessionService(userRepo repositories.UserRepository, hasher crypto.PasswordHasher, sessions auth.SessionManager, logger *zap.Logger) SessionService {
	return &sessionService{
		userRepo: userRepo,
		hasher:   hasher,
		sessions: sessions,
		now:      now,
		logger:   logger,
	}
}

var _ SessionService = (*sessionService)(nil)

func invalidCredentials() error {
	return apperrors.Unauthorized("invalid_credentials", "Invalid credentials")
}

func (s *sessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !user.IsActive || !s.hasher.Verify(user.PasswordHash, password) {
		return nil, invalidCredentials()
	}

	token, expiresAt, err := s.sessions.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *sessionService) ChangePassword(ctx context.Context, principal *auth.Principal, current, newPassword, confirm string) error {
	if newPassword != confirm {
		return apperrors.Validation("password_mismatch", "Passwords do not match")
	}
	if len(newPassword) > crypto.MaxPasswordBytes {
		return apperrors.Validation("password_too_long", "Password is too long (maximum %d bytes)", crypto.MaxPasswordBytes)
	}
	if len([]rune(newPassword)) < MinPasswordLength {
		return apperrors.Validation("password_too_short", "Password must be at least %d characters", MinPasswordLength)
	}

	user, err := s.userRepo.GetByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Unauthorized("invalid_session", "Invalid session")
		}
		return err
	}
	if !user.IsActive {
		return apperrors.Unauthorized("invalid_session", "Invalid session")
	}
	if !s.hasher.Verify(user.PasswordHash, current) {
		return apperrors.Validation("current_password_incorrect", "Current password incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return err
	}

	s.logger.Info("Password changed", zap.String("user_id", user.ID.String()))
	return nil
}

func (s *sessionService) SeedSuperadmin(ctx context.Context, email, password string) (bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, err
	}
	ts := s.now()
	err = s.userRepo.Create(ctx, &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleSuperadmin,
		IsActive:     true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	})
	if err != nil {
		// Another instance seeded it first.
		if errors.Is(err, apperrors.ErrConflict) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("Seeded superadmin account", zap.String("email", logging.MaskEmail(email)))
	return true, nil
}
