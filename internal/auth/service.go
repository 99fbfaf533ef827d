package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Service is the main auth service with dependencies
type Service struct {
	userRepo       UserRepository
	tokenGenerator *JWTTokenGenerator
	hasher         *BcryptHasher
	logger         *slog.Logger
}

func NewService(userRepo UserRepository, tokenGen *JWTTokenGenerator, hasher *BcryptHasher, logger *slog.Logger) *Service {
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		hasher:         hasher,
		logger:         logger,
	}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.userRepo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(dto.Email)))
	if err != nil {
		return AuthTokens{}, fmt.Errorf("load credentials: %w", err)
	}
	if u == nil || !s.hasher.Compare(u.PasswordHash, dto.Password) {
		return AuthTokens{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return AuthTokens{}, ErrUserInactive
	}

	s.logger.InfoContext(ctx, "user authenticated", "user_id", u.ID)
	return s.issue(u.ID, u.Email)
}

// RefreshTokens validates a refresh token and returns a new pair
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return AuthTokens{}, err
	}

	u, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return AuthTokens{}, ErrInvalidToken
	}
	if !u.IsActive {
		return AuthTokens{}, ErrUserInactive
	}

	return s.issue(u.ID, u.Email)
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString, TokenTypeAccess)
}

// IssueFor mints tokens for an existing active user without a password check.
func (s *Service) IssueFor(ctx context.Context, userID int64) (AuthTokens, error) {
	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return AuthTokens{}, fmt.Errorf("user %d does not exist", userID)
	}
	if !u.IsActive {
		return AuthTokens{}, ErrUserInactive
	}
	return s.issue(u.ID, u.Email)
}

func (s *Service) issue(userID int64, email string) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(userID, email)
	if err != nil {
		return AuthTokens{}, err
	}
	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(userID, email)
	if err != nil {
		return AuthTokens{}, err
	}
	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokenGenerator.AccessTokenTTL.Seconds()),
	}, nil
}
