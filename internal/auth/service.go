package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"converse/infrastructure"
	"converse/internal/realtime"
	"converse/internal/user"
	"converse/pkg/jwt"
)

const refreshKeyPrefix = "refresh:"

// SessionStore persists refresh-token sessions; satisfied by cache.RedisCache.
type SessionStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Service struct {
	users      user.Repository
	sessions   SessionStore
	accessJWT  *jwt.JWT
	refreshJWT *jwt.JWT
	refreshTTL time.Duration
	log        *zap.Logger
}

func NewService(users user.Repository, sessions SessionStore, accessJWT, refreshJWT *jwt.JWT, refreshTTL time.Duration, log *zap.Logger) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		accessJWT:  accessJWT,
		refreshJWT: refreshJWT,
		refreshTTL: refreshTTL,
		log:        log,
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, infrastructure.ErrUserNotFound) {
			return nil, infrastructure.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, infrastructure.ErrInvalidCredentials
	}

	return s.issuePair(ctx, u.ID)
}

// Refresh rotates a refresh token: the presented token's session is
// revoked and a fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.refreshJWT.ValidateToken(refreshToken)
	if err != nil {
		return nil, infrastructure.ErrInvalidToken
	}

	owner, err := s.sessions.Get(ctx, refreshKeyPrefix+claims.ID)
	if err != nil || owner != claims.UserID {
		return nil, infrastructure.ErrInvalidToken
	}

	if err := s.sessions.Del(ctx, refreshKeyPrefix+claims.ID); err != nil {
		s.log.Warn("failed to revoke rotated refresh token", zap.Error(err))
	}
	return s.issuePair(ctx, claims.UserID)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.refreshJWT.ValidateToken(refreshToken)
	if err != nil {
		return infrastructure.ErrInvalidToken
	}
	return s.sessions.Del(ctx, refreshKeyPrefix+claims.ID)
}

// ValidateAccess checks an access token and returns the user id it
// was issued for.
func (s *Service) ValidateAccess(token string) (string, error) {
	claims, err := s.accessJWT.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", infrastructure.ErrTokenExpired
		}
		return "", infrastructure.ErrInvalidToken
	}
	return claims.UserID, nil
}

// ResolveIdentity implements realtime.IdentityResolver. Called once
// per websocket handshake; the resolved identity is pinned to the
// connection for its lifetime.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (realtime.Identity, error) {
	if token == "" {
		return realtime.Identity{}, infrastructure.ErrMissingToken
	}

	claims, err := s.accessJWT.ValidateToken(token)
	if err != nil {
		return realtime.Identity{}, infrastructure.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, infrastructure.ErrUserNotFound) {
			return realtime.Identity{}, infrastructure.ErrUnknownUser
		}
		return realtime.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	return realtime.Identity{ID: u.ID, Name: u.Username}, nil
}

func (s *Service) issuePair(ctx context.Context, userID string) (*TokenPair, error) {
	sessionID := uuid.New().String()

	access, err := s.accessJWT.GenerateToken(userID, "")
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := s.refreshJWT.GenerateToken(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.sessions.Set(ctx, refreshKeyPrefix+sessionID, userID, s.refreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh session: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
