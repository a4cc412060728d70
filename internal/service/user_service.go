package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/service/auth"
	"github.com/phrazzld/circles-api/internal/store"
)

const userServiceName = "user_service"

// UserService provides registration, authentication and profile operations.
type UserService interface {
	// Register creates a user with a hashed password.
	// Returns ErrEmailTaken if the email already has an account.
	Register(ctx context.Context, name, email, password string) (*domain.User, error)

	// Authenticate returns the user owning email when password matches.
	// Unknown emails and wrong passwords both return ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// UpdateProfile replaces the user's financial profile.
	UpdateProfile(ctx context.Context, userID uuid.UUID, profile domain.FinancialProfile) (*domain.User, error)
}

type userService struct {
	users    store.UserStore
	hasher   auth.PasswordHasher
	verifier auth.PasswordVerifier
	now      func() time.Time
	logger   *slog.Logger
}

var _ UserService = (*userService)(nil)

// NewUserService creates a UserService.
func NewUserService(
	users store.UserStore,
	hasher auth.PasswordHasher,
	verifier auth.PasswordVerifier,
	log *slog.Logger,
) (UserService, error) {
	if users == nil || hasher == nil || verifier == nil {
		return nil, &ServiceError{Service: userServiceName, Operation: "create_service", Message: "dependencies cannot be nil"}
	}
	if log == nil {
		return nil, &ServiceError{Service: userServiceName, Operation: "create_service", Message: "logger cannot be nil"}
	}
	return &userService{
		users:    users,
		hasher:   hasher,
		verifier: verifier,
		now:      time.Now,
		logger:   log.With(slog.String("component", userServiceName)),
	}, nil
}

// Register implements UserService.
func (s *userService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	const op = "register"
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := domain.NewUser(name, email, password)
	if err != nil {
		return nil, newServiceError(userServiceName, op, "invalid user data",
			fmt.Errorf("%w: %w", domain.ErrValidation, err))
	}

	hash, err := s.hasher.Hash(user.Password)
	if err != nil {
		log.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, newServiceError(userServiceName, op, "failed to hash password", err)
	}
	user.HashedPassword = hash
	user.Password = ""

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			log.Debug("registration with existing email")
		} else {
			log.Error("failed to save user", slog.String("error", err.Error()))
		}
		return nil, newServiceError(userServiceName, op, "failed to save user", err)
	}

	log.Info("user registered", slog.String("user_id", user.ID.String()))
	return user, nil
}

// Authenticate implements UserService.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	const op = "authenticate"
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newServiceError(userServiceName, op, "login rejected", ErrInvalidCredentials)
		}
		log.Error("failed to load user by email", slog.String("error", err.Error()))
		return nil, newServiceError(userServiceName, op, "failed to load user", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		log.Debug("password mismatch", slog.String("user_id", user.ID.String()))
		return nil, newServiceError(userServiceName, op, "login rejected", ErrInvalidCredentials)
	}
	return user, nil
}

// GetUser implements UserService.
func (s *userService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, newServiceError(userServiceName, "get_user", "failed to load user", err)
	}
	return user, nil
}

// UpdateProfile implements UserService.
func (s *userService) UpdateProfile(
	ctx context.Context,
	userID uuid.UUID,
	profile domain.FinancialProfile,
) (*domain.User, error) {
	const op = "update_profile"
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("user_id", userID.String()))

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, newServiceError(userServiceName, op, "failed to load user", err)
	}
	if err := user.UpdateProfile(profile, s.now()); err != nil {
		return nil, newServiceError(userServiceName, op, "invalid profile", err)
	}
	if err := s.users.Update(ctx, user); err != nil {
		log.Error("failed to save profile", slog.String("error", err.Error()))
		return nil, newServiceError(userServiceName, op, "failed to save profile", err)
	}

	log.Info("financial profile updated")
	return user, nil
}
