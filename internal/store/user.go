package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
)

// UserStore persists registered users and their financial profiles.
type UserStore interface {
	// Create inserts a user that already carries a HashedPassword.
	// A taken email yields ErrEmailExists.
	Create(ctx context.Context, user *domain.User) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail expects the lower-cased, trimmed address that domain.NewUser stores.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update overwrites name, email and profile (including credit history).
	// Lookups and updates on a missing user yield ErrUserNotFound.
	Update(ctx context.Context, user *domain.User) error
}
