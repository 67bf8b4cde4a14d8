package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/auth"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked due to too many failed login attempts")
	ErrAccountInactive    = errors.New("account is deactivated")
)

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

type authService struct {
	userRepo repository.UserRepository
	tokens   *auth.TokenManager
	logger   *zap.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

func NewAuthService(userRepo repository.UserRepository, tokens *auth.TokenManager, logger *zap.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
		tracer:   otel.Tracer("auth_service"),
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*domain.User, string, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	if err := auth.ValidatePassword(input.Password); err != nil {
		return nil, "", err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, s.logger, "Error hashing password", zap.Error(err))

		return nil, "", err
	}

	user := &domain.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:        input.Phone,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		span.RecordError(err)
		return nil, "", err
	}

	span.SetAttributes(attribute.Int64("user_id", user.ID))

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}

	mylogger.Info(ctx, s.logger, "User registered", zap.Int64("user_id", user.ID))

	return user, token, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			mylogger.Warn(ctx, s.logger, "Login for unknown email")
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	span.SetAttributes(attribute.Int64("user_id", user.ID))

	now := s.now()
	if user.IsLocked(now) {
		return nil, "", ErrAccountLocked
	}

	if !user.IsActive {
		return nil, "", ErrAccountInactive
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		updated, err := s.userRepo.RecordFailedLogin(ctx, user.ID, domain.MaxLoginAttempts, now.Add(domain.LockDuration))
		if err != nil {
			return nil, "", err
		}

		mylogger.Warn(
			ctx,
			s.logger,
			"Invalid credentials",
			zap.Int64("user_id", user.ID),
			zap.Int("attempts", updated.LoginAttempts),
		)

		if updated.IsLocked(now) {
			return nil, "", ErrAccountLocked
		}

		return nil, "", ErrInvalidCredentials
	}

	if user.LoginAttempts > 0 || user.LockUntil != nil {
		if err := s.userRepo.ResetLoginAttempts(ctx, user.ID); err != nil {
			return nil, "", err
		}
		user.LoginAttempts = 0
		user.LockUntil = nil
	}

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Authenticate resolves a bearer token to an active, unlocked user.
func (s *authService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.ErrTokenInvalid
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if user.IsLocked(s.now()) {
		return nil, ErrAccountLocked
	}

	return user, nil
}
