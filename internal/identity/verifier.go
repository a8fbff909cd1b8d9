package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MinPasswordLength is the minimum accepted password length for new accounts.
const MinPasswordLength = 8

// Service verifies credentials and manages accounts. It implements Verifier.
type Service struct {
	repo    Repository
	limiter *attemptLimiter
	logger  Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRateLimit enables per-email sign-in attempt limiting.
func WithRateLimit(attemptsPerMinute int) ServiceOption {
	return func(s *Service) {
		if attemptsPerMinute > 0 {
			s.limiter = newAttemptLimiter(attemptsPerMinute)
		}
	}
}

// WithLogger sets the logger used by the service.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates an identity service backed by the given repository.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyCredentials checks an email/password pair against stored accounts.
// Invalid email, unknown account, and wrong password all return
// ErrInvalidCredentials so callers cannot probe which emails exist; the
// specific cause is logged server-side only.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*Account, error) {
	if !IsValidEmail(email) {
		return nil, ErrEmailInvalid
	}

	key := strings.ToLower(email)
	if s.limiter != nil && !s.limiter.allow(key) {
		s.logger.Warn("sign-in rate limited", "email", key)
		return nil, ErrTooManyRequests
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.logger.Info("sign-in failed: unknown account", "email", key)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.logger.Info("sign-in failed: wrong password", "account_id", account.ID)
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		s.limiter.reset(key)
	}
	return account, nil
}

// CreateAccount hashes the password and stores a new account.
func (s *Service) CreateAccount(ctx context.Context, email, password string) (*Account, error) {
	if !IsValidEmail(email) {
		return nil, ErrEmailInvalid
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{Email: email, PasswordHash: hash}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account created", "account_id", account.ID, "email", account.Email)
	return account, nil
}

// GetByID retrieves an account by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// Count returns the number of stored accounts.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}
