// Package service implements authentication for warehouse users.
package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/stockbridge/stockbridge-backend/internal/user/repository"
	"github.com/stockbridge/stockbridge-backend/pkg/auth"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

// UserStore is the persistence surface the service needs.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*repository.User, error)
	GetByID(ctx context.Context, id string) (*repository.User, error)
	TouchLastLogin(ctx context.Context, id string) error
}

// AuthService authenticates users and issues tokens.
type AuthService struct {
	store      UserStore
	jwtManager *auth.Manager
	logger     *logger.Logger
}

// NewAuthService creates an auth service.
func NewAuthService(store UserStore, jwtManager *auth.Manager, log *logger.Logger) *AuthService {
	return &AuthService{
		store:      store,
		jwtManager: jwtManager,
		logger:     log.WithComponent("auth-service"),
	}
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse carries the issued tokens and the authenticated user.
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int64            `json:"expires_in"`
	User         *repository.User `json:"user"`
}

// Login verifies the credentials and returns a token pair. Invalid username
// and invalid password produce the same error so accounts cannot be probed.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.store.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.InvalidCredentials()
		}
		return nil, err
	}
	if !user.Active {
		return nil, errors.InvalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.InvalidCredentials()
	}

	tokens, err := s.jwtManager.GenerateTokenPair(user.ID, user.Username, user.Email, user.Role, user.Branch)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to generate tokens")
		return nil, errors.Internal("failed to generate tokens")
	}

	if err := s.store.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	return &LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		User:         user,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, errors.Unauthorized("unknown user")
	}
	if !user.Active {
		return nil, errors.Unauthorized("account disabled")
	}

	return s.jwtManager.GenerateTokenPair(user.ID, user.Username, user.Email, user.Role, user.Branch)
}

// CurrentUser loads the authenticated user's profile.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*repository.User, error) {
	return s.store.GetByID(ctx, userID)
}
