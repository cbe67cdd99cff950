package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/models"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrInactiveUser         = errors.New("user not found or inactive")
)

// Token sources reported by ValidateRequest.
const (
	TokenSourceCookie = "cookie"
	TokenSourceHeader = "header"
)

// UserLookup resolves the subject of a session token.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthService defines the interface for authentication operations.
// This abstraction enables clean separation between HTTP handling
// and authentication logic, making both easier to test.
type AuthService interface {
	// ValidateRequest extracts and validates a session token from the request.
	// It checks for the token in:
	//   1. The session cookie (browser clients)
	//   2. Authorization header with "Bearer" scheme (API clients)
	// Returns the validated claims, the raw token string and where it came from.
	ValidateRequest(r *http.Request) (*Claims, string, string, error)

	// ResolvePrincipal loads the active user named by the claims.
	ResolvePrincipal(ctx context.Context, claims *Claims) (*Principal, error)
}

type authService struct {
	sessions   SessionManager
	users      UserLookup
	cookieName string
	logger     *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(sessions SessionManager, users UserLookup, cookieName string, logger *zap.Logger) AuthService {
	return &authService{
		sessions:   sessions,
		users:      users,
		cookieName: cookieName,
		logger:     logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, string, error) {
	var tokenString string
	var tokenSource string

	// Try cookie first (browser clients)
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		tokenString = cookie.Value
		tokenSource = TokenSourceCookie
	} else {
		// Fallback to Authorization header (API clients)
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.logger.Debug("No session token found in request",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method))
			return nil, "", "", ErrMissingAuthorization
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			s.logger.Debug("Invalid Authorization header format",
				zap.String("path", r.URL.Path))
			return nil, "", "", ErrInvalidAuthFormat
		}
		tokenString = parts[1]
		tokenSource = TokenSourceHeader
	}

	claims, err := s.sessions.Parse(tokenString)
	if err != nil {
		s.logger.Debug("Session token validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", tokenSource))
		return nil, "", "", err
	}

	return claims, tokenString, tokenSource, nil
}

func (s *authService) ResolvePrincipal(ctx context.Context, claims *Claims) (*Principal, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil || user == nil || !user.IsActive {
		if err != nil {
			s.logger.Debug("Session user lookup failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
		return nil, ErrInactiveUser
	}

	return PrincipalFromUser(user), nil
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
