package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrInvalidCredentials covers both unknown usernames and wrong
// passwords, so responses do not leak which one it was.
var ErrInvalidCredentials = errors.New("invalid username or password")

// LoginService authenticates primary credentials.
type LoginService struct {
	repo UserRepository
}

// NewLoginService creates a new LoginService
func NewLoginService(repo UserRepository) *LoginService {
	return &LoginService{repo: repo}
}

// Authenticate verifies a username/password pair and returns the
// matching user. Failures are logged with the username, never the
// password.
func (s *LoginService) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			slog.Warn("Login attempt for unknown username", "username", username)
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	valid, err := CheckPasswordHash(password, user.PasswordHash)
	if err != nil {
		return User{}, fmt.Errorf("error checking password: %w", err)
	}
	if !valid {
		slog.Warn("Login attempt with wrong password", "username", username, "userID", user.ID)
		return User{}, ErrInvalidCredentials
	}

	slog.Info("Primary credentials verified", "username", username, "userID", user.ID)
	return user, nil
}

// Register creates a user account with a hashed password.
func (s *LoginService) Register(ctx context.Context, username, email, password string) (User, error) {
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return User{}, fmt.Errorf("username already taken: %s", username)
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	slog.Info("User registered", "username", username, "userID", user.ID)
	return user, nil
}

// GetUser loads a user by ID.
func (s *LoginService) GetUser(ctx context.Context, userID uuid.UUID) (User, error) {
	return s.repo.GetByID(ctx, userID)
}

// PrimaryEmail returns the account email for a user. It satisfies the
// email resolution needed when sending two-factor codes.
func (s *LoginService) PrimaryEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
