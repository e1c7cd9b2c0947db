package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrIdentifierTaken = errors.New("identifier already belongs to another user")
)

// IdentifierConflictError is returned when an identifier is already claimed by OwnerID.
type IdentifierConflictError struct {
	Identifier models.Identifier
	OwnerID    uuid.UUID
}

func (e *IdentifierConflictError) Error() string {
	return fmt.Sprintf("identifier %s belongs to user %s", e.Identifier, e.OwnerID)
}

func (e *IdentifierConflictError) Unwrap() error {
	return ErrIdentifierTaken
}

// UserStore persists users and the identifiers that point at them. Every identifier
// belongs to at most one user; the store enforces that atomically.
//
// Users crossing this interface carry no conversation: messages live in the ConversationStore.
type UserStore interface {
	// Owners returns the owner of every identifier in ids that is already claimed.
	Owners(ctx context.Context, ids models.IdentifierSet) (map[models.Identifier]uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	// Create inserts u and claims all its identifiers, or fails with *IdentifierConflictError
	// without writing anything.
	Create(ctx context.Context, u *models.User) error
	// Attach claims id for the user. Claiming an identifier the user already owns is a no-op.
	Attach(ctx context.Context, userID uuid.UUID, id models.Identifier) (*models.User, error)
	// Update applies fn to the stored user under a per-user lock. If fn fails nothing is written.
	Update(ctx context.Context, id uuid.UUID, fn func(u *models.User) error) (*models.User, error)
	// Merge folds loser into target and deletes loser. A loser that no longer exists is a no-op.
	Merge(ctx context.Context, targetID, loserID uuid.UUID) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context) (int, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// ConversationStore is the append-only message log of each user.
type ConversationStore interface {
	// Append stores msg after every previously appended message and returns the new length.
	Append(ctx context.Context, userID uuid.UUID, msg models.Message) (int, error)
	Recent(ctx context.Context, userID uuid.UUID, n int) ([]models.Message, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	UpdateSummary(ctx context.Context, userID uuid.UUID, summary, short string) error
}

// Store is what the services need from a backend.
type Store interface {
	UserStore
	ConversationStore
}
