package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/crypto"
	"github.com/forensic-testing/fts-intake/pkg/export"
	"github.com/forensic-testing/fts-intake/pkg/logging"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/repositories"
)

// UserService applies the account administration rules.
type UserService interface {
	// List returns users newest first, each with draft and submission counts.
	List(ctx context.Context) ([]*models.UserWithCounts, error)
	// Create adds an account with a generated temporary password, which is
	// returned once and never stored in the clear.
	Create(ctx context.Context, requester *auth.Principal, email, role string) (*models.User, string, error)
	UpdateRole(ctx context.Context, requester *auth.Principal, id uuid.UUID, role string) (*models.User, error)
	Delete(ctx context.Context, requester *auth.Principal, id uuid.UUID) error
}

// OwnerCounter tallies questionnaires per owner key.
type OwnerCounter interface {
	OwnerCounts(ctx context.Context) (map[string]export.OwnerCounts, error)
}

// UserPolicy holds the configurable account rules.
type UserPolicy struct {
	AllowedEmailDomain string
	// StrictAdminDelete restricts deleting admin accounts to superadmins.
	StrictAdminDelete bool
}

type userService struct {
	userRepo repositories.UserRepository
	counter  OwnerCounter
	hasher   crypto.PasswordHasher
	policy   UserPolicy
	now      func() time.Time
	logger   *zap.Logger
}

// NewUserService creates a new user service with dependencies.
func NewUserService(
	userRepo repositories.UserRepository,
	counter OwnerCounter,
	hasher crypto.PasswordHasher,
	policy UserPolicy,
	logger *zap.Logger,
) UserService {
	return &userService{
		userRepo: userRepo,
		counter:  counter,
		hasher:   hasher,
		policy:   policy,
		now:      now,
		logger:   logger,
	}
}

var _ UserService = (*userService)(nil)

func (s *userService) List(ctx context.Context) ([]*models.UserWithCounts, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.counter.OwnerCounts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.UserWithCounts, 0, len(users))
	for _, u := range users {
		row := &models.UserWithCounts{User: *u}
		// Records carry the owner's id; older ones may only carry the email.
		for _, key := range []string{
			models.OwnerKey(&u.ID, ""),
			models.OwnerKey(nil, u.Email),
		} {
			c := counts[key]
			row.Drafts += c.Drafts
			row.Submissions += c.Submissions
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *userService) Create(ctx context.Context, requester *auth.Principal, email, role string) (*models.User, string, error) {
	email = models.NormalizeEmail(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return nil, "", apperrors.Validation("invalid_email", "A valid email address is required")
	}
	if !strings.EqualFold(domain, strings.TrimSpace(s.policy.AllowedEmailDomain)) {
		return nil, "", apperrors.Validation("email_domain_not_allowed",
			"Only @%s email addresses are allowed", s.policy.AllowedEmailDomain)
	}
	if !models.IsAssignableRole(role) {
		return nil, "", invalidRole()
	}

	tempPassword, err := crypto.GenerateTempPassword(crypto.TempPasswordLength)
	if err != nil {
		return nil, "", err
	}
	hash, err := s.hasher.Hash(tempPassword)
	if err != nil {
		return nil, "", err
	}

	ts := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, "", apperrors.Conflict("account_exists", "Account already exists")
		}
		return nil, "", err
	}

	s.logger.Info("User created",
		zap.String("user_id", user.ID.String()),
		zap.String("email", logging.MaskEmail(email)),
		zap.String("role", role),
		zap.String("created_by", requester.ID.String()))
	return user, tempPassword, nil
}

func (s *userService) UpdateRole(ctx context.Context, requester *auth.Principal, id uuid.UUID, role string) (*models.User, error) {
	if !models.IsAssignableRole(role) {
		return nil, invalidRole()
	}

	target, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Role == models.RoleSuperadmin {
		return nil, apperrors.Forbidden("superadmin_protected", "Cannot modify superadmin")
	}
	if requester.ID == target.ID {
		return nil, apperrors.Validation("own_role", "Cannot change your own role")
	}

	ts := s.now()
	if err := s.userRepo.UpdateRole(ctx, id, role, ts); err != nil {
		return nil, err
	}
	target.Role = role
	target.UpdatedAt = ts

	s.logger.Info("User role updated",
		zap.String("user_id", id.String()),
		zap.String("role", role),
		zap.String("updated_by", requester.ID.String()))
	return target, nil
}

func (s *userService) Delete(ctx context.Context, requester *auth.Principal, id uuid.UUID) error {
	target, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target.Role == models.RoleSuperadmin {
		return apperrors.Forbidden("superadmin_protected", "Cannot delete superadmin")
	}
	if requester.ID == target.ID {
		return apperrors.Forbidden("own_account", "Cannot delete your own account")
	}
	if s.policy.StrictAdminDelete && target.Role == models.RoleAdmin && !requester.IsSuperadmin() {
		return apperrors.Forbidden("superadmin_required", "Only superadmin can delete admins")
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("User deleted",
		zap.String("user_id", id.String()),
		zap.String("deleted_by", requester.ID.String()))
	return nil
}

func invalidRole() error {
	return apperrors.Validation("invalid_role", "role must be 'user' or 'admin'")
}
