package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxResolveAttempts = 5

// IdentityResolver maps weak identifiers to one durable user per physical person.
type IdentityResolver struct {
	store   repository.Store
	creates singleflight.Group
	now     func() time.Time
	logger  *zap.Logger
}

func NewIdentityResolver(store repository.Store, logger *zap.Logger) *IdentityResolver {
	return &IdentityResolver{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// Resolve returns the user owning the given identifiers, creating one when none is known.
// Identifiers not yet claimed are attached to the result. When the identifiers point at several
// users, all of them are merged into the owner of the highest-priority identifier.
//
// An empty set yields an ephemeral user that is never persisted.
func (r *IdentityResolver) Resolve(ctx context.Context, ids models.IdentifierSet) (*models.User, error) {
	if ids.Empty() {
		return models.NewUser(nil, r.now()), nil
	}

	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		owners, err := r.store.Owners(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to look up identifiers: %w", err)
		}

		var u *models.User
		if len(owners) == 0 {
			u, err = r.create(ctx, ids)
		} else {
			u, err = r.consolidate(ctx, ids, owners)
		}
		if err == nil {
			return u, nil
		}
		// Another request claimed or merged one of our identifiers in between; look again.
		if errors.Is(err, repository.ErrIdentifierTaken) || errors.Is(err, repository.ErrUserNotFound) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to resolve identity after %d attempts: %w", maxResolveAttempts, lastErr)
}

// Lookup is Resolve without side effects: it never creates, attaches or merges.
func (r *IdentityResolver) Lookup(ctx context.Context, ids models.IdentifierSet) (*models.User, error) {
	if ids.Empty() {
		return nil, ErrUnknownSession
	}
	owners, err := r.store.Owners(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identifiers: %w", err)
	}
	if len(owners) == 0 {
		return nil, ErrUnknownSession
	}
	u, err := r.store.Get(ctx, canonicalOwner(ids, owners))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUnknownSession
	}
	return u, err
}

// AttachIdentifier links id to the user. If id already belongs to someone else the two users are merged.
func (r *IdentityResolver) AttachIdentifier(ctx context.Context, userID uuid.UUID, id models.Identifier) (*models.User, error) {
	norm, ok := id.Normalize()
	if !ok {
		return r.store.Get(ctx, userID)
	}

	u, err := r.store.Attach(ctx, userID, norm)
	var conflict *repository.IdentifierConflictError
	if errors.As(err, &conflict) {
		r.logger.Info("Identifier belongs to another user, merging",
			zap.String("user_id", userID.String()),
			zap.String("owner_id", conflict.OwnerID.String()),
			zap.String("kind", string(norm.Kind)),
		)
		return r.Merge(ctx, userID, conflict.OwnerID)
	}
	return u, err
}

// Merge unifies two users. The one with the longer conversation survives, then the older one.
// Merging users that were already merged returns the survivor.
func (r *IdentityResolver) Merge(ctx context.Context, a, b uuid.UUID) (*models.User, error) {
	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		ua, errA := r.store.Get(ctx, a)
		ub, errB := r.store.Get(ctx, b)
		switch {
		case errA != nil && errB != nil:
			return nil, errA
		case errA != nil:
			return ub, nil
		case errB != nil:
			return ua, nil
		case a == b:
			return ua, nil
		}

		historyA, err := r.store.Count(ctx, a)
		if err != nil {
			return nil, err
		}
		historyB, err := r.store.Count(ctx, b)
		if err != nil {
			return nil, err
		}

		target, loser := models.ChooseCanonical(ua, historyA, ub, historyB)
		merged, err := r.store.Merge(ctx, target.ID, loser.ID)
		if errors.Is(err, repository.ErrUserNotFound) {
			lastErr = err
			continue
		}
		return merged, err
	}
	return nil, fmt.Errorf("failed to merge users: %w", lastErr)
}

// create coalesces concurrent creations for the same identifier set into one insert.
// Creations for overlapping but different sets are arbitrated by the store's uniqueness check.
func (r *IdentityResolver) create(ctx context.Context, ids models.IdentifierSet) (*models.User, error) {
	key := identifierKey(ids)
	v, err, _ := r.creates.Do(key, func() (interface{}, error) {
		u := models.NewUser(ids, r.now())
		if err := r.store.Create(ctx, u); err != nil {
			return nil, err
		}
		r.logger.Info("User created",
			zap.String("user_id", u.ID.String()),
			zap.Bool("provisional", u.Provisional),
		)
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User).Clone(), nil
}

func (r *IdentityResolver) consolidate(ctx context.Context, ids models.IdentifierSet, owners map[models.Identifier]uuid.UUID) (*models.User, error) {
	canonical := canonicalOwner(ids, owners)

	var u *models.User
	merged := make(map[uuid.UUID]bool)
	for _, id := range ids {
		owner, ok := owners[id]
		if !ok || owner == canonical || merged[owner] {
			continue
		}
		r.logger.Warn("Identity conflict: identifiers point at different users",
			zap.String("canonical_id", canonical.String()),
			zap.String("other_id", owner.String()),
			zap.String("kind", string(id.Kind)),
		)
		var err error
		u, err = r.store.Merge(ctx, canonical, owner)
		if err != nil {
			return nil, err
		}
		merged[owner] = true
	}

	for _, id := range ids {
		if _, ok := owners[id]; ok {
			continue
		}
		var err error
		u, err = r.store.Attach(ctx, canonical, id)
		var conflict *repository.IdentifierConflictError
		if errors.As(err, &conflict) {
			u, err = r.store.Merge(ctx, canonical, conflict.OwnerID)
		}
		if err != nil {
			return nil, err
		}
	}

	if u == nil {
		return r.store.Get(ctx, canonical)
	}
	return u, nil
}

// canonicalOwner picks the owner of the highest-priority identifier. ids is priority-sorted.
func canonicalOwner(ids models.IdentifierSet, owners map[models.Identifier]uuid.UUID) uuid.UUID {
	for _, id := range ids {
		if owner, ok := owners[id]; ok {
			return owner
		}
	}
	return uuid.Nil
}

func identifierKey(ids models.IdentifierSet) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, "|")
}
