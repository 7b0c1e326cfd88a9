package store

import (
	"context"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
)

type UserRepository interface {
	// CreateUser inserts the user and its profile in one transaction.
	// Returns ErrEmailTaken when the email is already registered.
	CreateUser(ctx context.Context, user domain.User, profile domain.Profile) (domain.User, error)

	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	FindProfileByUserID(ctx context.Context, userID uuid.UUID) (domain.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, firstName, lastName string) error
}
