package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"go.uber.org/zap"
)

// MemoryStore keeps everything in process memory. All snapshots crossing its boundary are deep copies.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	owners   map[models.Identifier]uuid.UUID
	messages map[uuid.UUID][]models.Message
	logger   *zap.Logger
}

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		owners:   make(map[models.Identifier]uuid.UUID),
		messages: make(map[uuid.UUID][]models.Message),
		logger:   logger,
	}
}

func (s *MemoryStore) Owners(_ context.Context, ids models.IdentifierSet) (map[models.Identifier]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[models.Identifier]uuid.UUID)
	for _, id := range ids {
		if owner, ok := s.owners[id]; ok {
			found[id] = owner
		}
	}
	return found, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := u.Identifiers()
	for _, id := range ids {
		if owner, ok := s.owners[id]; ok {
			return &IdentifierConflictError{Identifier: id, OwnerID: owner}
		}
	}
	stored := u.Clone()
	stored.Conversation = nil
	s.users[u.ID] = stored
	for _, id := range ids {
		s.owners[id] = u.ID
	}
	if len(u.Conversation) > 0 {
		s.messages[u.ID] = cloneMessages(u.Conversation)
	}
	return nil
}

func (s *MemoryStore) Attach(_ context.Context, userID uuid.UUID, id models.Identifier) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if owner, taken := s.owners[id]; taken && owner != userID {
		return nil, &IdentifierConflictError{Identifier: id, OwnerID: owner}
	}
	s.owners[id] = userID
	u.AddIdentifier(id)
	return u.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn func(u *models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	working := u.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = id
	working.Conversation = nil
	s.users[id] = working
	s.reindex(working)
	return working.Clone(), nil
}

func (s *MemoryStore) Merge(_ context.Context, targetID, loserID uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.users[targetID]
	if !ok {
		return nil, ErrUserNotFound
	}
	loser, ok := s.users[loserID]
	if !ok || targetID == loserID {
		return target.Clone(), nil
	}

	t := target.Clone()
	t.Conversation = s.messages[targetID]
	l := loser.Clone()
	l.Conversation = s.messages[loserID]
	merged := models.MergeUsers(t, l)

	s.messages[targetID] = merged.Conversation
	merged.Conversation = nil
	s.users[targetID] = merged

	for id, owner := range s.owners {
		if owner == loserID {
			s.owners[id] = targetID
		}
	}
	s.reindex(merged)
	delete(s.users, loserID)
	delete(s.messages, loserID)

	s.logger.Info("Users merged",
		zap.String("target_id", targetID.String()),
		zap.String("loser_id", loserID.String()),
	)
	return merged.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	s.deleteLocked(id)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.users)
	s.users = make(map[uuid.UUID]*models.User)
	s.owners = make(map[models.Identifier]uuid.UUID)
	s.messages = make(map[uuid.UUID][]models.Message)
	return n, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastActive.After(all[j].LastActive)
	})

	if offset >= len(all) {
		return []*models.User{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*models.User, 0, end-offset)
	for _, u := range all[offset:end] {
		out = append(out, u.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, userID uuid.UUID, msg models.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	s.messages[userID] = append(s.messages[userID], msg.Clone())
	if msg.Timestamp.After(u.LastActive) {
		u.LastActive = msg.Timestamp
	}
	return len(s.messages[userID]), nil
}

func (s *MemoryStore) Recent(_ context.Context, userID uuid.UUID, n int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrUserNotFound
	}
	msgs := s.messages[userID]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return cloneMessages(msgs), nil
}

func (s *MemoryStore) Count(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return 0, ErrUserNotFound
	}
	return len(s.messages[userID]), nil
}

func (s *MemoryStore) UpdateSummary(_ context.Context, userID uuid.UUID, summary, short string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.SetSummary(summary, short)
	return nil
}

// reindex claims identifiers that fn or a merge added to the record. Identifiers owned by
// another user are left alone.
func (s *MemoryStore) reindex(u *models.User) {
	for _, id := range u.Identifiers() {
		if _, taken := s.owners[id]; !taken {
			s.owners[id] = u.ID
		}
	}
}

func (s *MemoryStore) deleteLocked(id uuid.UUID) {
	delete(s.users, id)
	delete(s.messages, id)
	for ident, owner := range s.owners {
		if owner == id {
			delete(s.owners, ident)
		}
	}
}

func cloneMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
