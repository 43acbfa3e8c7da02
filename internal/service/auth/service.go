package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/scribe/internal/domain"
	"github.com/splax/scribe/internal/repository"
	"github.com/splax/scribe/pkg/config"
	"github.com/splax/scribe/pkg/crypto"
	jwtpkg "github.com/splax/scribe/pkg/jwt"
)

var (
	// ErrValidation marks missing or malformed registration/login input.
	ErrValidation = errors.New("validation failed")
	// ErrUserExists is returned when registering an email that is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when logging in with an unknown email.
	ErrUserNotFound = errors.New("user does not exist")
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("password does not match")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	errPasswordTooLong = fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, crypto.MaxPasswordBytes)
)

// Identity is the caller extracted from a verified token.
type Identity struct {
	UserID string
	Email  string
}

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, logger: logger, cfg: cfg}
}

// Register creates a new user with a bcrypt hash of the password.
func (s Service) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	case email == "":
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	case password == "":
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	case len(password) > crypto.MaxPasswordBytes:
		return nil, errPasswordTooLong
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrUserExists
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := crypto.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return nil, errPasswordTooLong
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and returns a signed token.
func (s Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if len(password) > crypto.MaxPasswordBytes {
		return "", errPasswordTooLong
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		if crypto.IsMismatch(err) {
			return "", ErrInvalidCredentials
		}
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return "", errPasswordTooLong
		}
		return "", fmt.Errorf("compare password: %w", err)
	}
	token, err := jwtpkg.GenerateToken(user.ID, user.Email, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return token, nil
}

// Authorize validates a bearer token without touching the user store.
func (s Service) Authorize(_ context.Context, token string) (Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Identity{}, ErrInvalidToken
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
