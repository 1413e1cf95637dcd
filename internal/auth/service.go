package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"cadence/internal/config"
	"cadence/internal/database"
	"cadence/pkg/models"
)

var (
	ErrRegistrationDisabled = errors.New("registration is disabled")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidUsername      = errors.New("username must be 3-32 letters, digits, '.', '_' or '-'")
	ErrWeakPassword         = errors.New("password is too short")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,32}$`)

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Service provides authentication functionality
type Service struct {
	users             UserStore
	secret            []byte
	ttl               time.Duration
	allowRegistration bool
	minPasswordLength int
	cost              int
	now               func() time.Time
}

// NewService creates a new authentication service
func NewService(cfg config.AuthConfig, users UserStore) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	ttl, err := cfg.ParseTokenDuration()
	if err != nil {
		return nil, err
	}

	return &Service{
		users:             users,
		secret:            []byte(cfg.JWTSecret),
		ttl:               ttl,
		allowRegistration: cfg.AllowRegistration,
		minPasswordLength: cfg.MinPasswordLength,
		cost:              defaultCost,
		now:               time.Now,
	}, nil
}

// IsRegistrationAllowed returns whether user registration is enabled
func (s *Service) IsRegistrationAllowed() bool {
	return s.allowRegistration
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	if !s.allowRegistration {
		return nil, ErrRegistrationDisabled
	}
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if len(password) < s.minPasswordLength || isHashedPassword(password) {
		return nil, ErrWeakPassword
	}

	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and issues a bearer token
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !checkPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, _, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
