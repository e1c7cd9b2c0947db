package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"go.uber.org/zap"
)

var userColumns = []string{
	"id", "sessions", "cookie_id", "device_id", "contact",
	"document", "documents", "payment", "payment_history",
	"summary", "short_summary", "provisional", "outcome",
	"created_at", "last_active",
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable Store. Users keep their nested records in JSONB columns;
// identifiers and messages live in their own tables so uniqueness and ordering are enforced by Postgres.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStore) Owners(ctx context.Context, ids models.IdentifierSet) (map[models.Identifier]uuid.UUID, error) {
	found := make(map[models.Identifier]uuid.UUID)
	if ids.Empty() {
		return found, nil
	}

	match := squirrel.Or{}
	for _, id := range ids {
		match = append(match, squirrel.Eq{"kind": string(id.Kind), "value": id.Value})
	}
	query := squirrel.Select("kind", "value", "user_id").
		From("user_identifiers").
		Where(match).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, value string
		var owner uuid.UUID
		if err := rows.Scan(&kind, &value, &owner); err != nil {
			return nil, err
		}
		found[models.Identifier{Kind: models.IdentifierKind(kind), Value: value}] = owner
	}
	return found, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return selectUser(ctx, s.db, id, false)
}

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		for _, id := range u.Identifiers() {
			if err := claimIdentifier(ctx, tx, u.ID, id); err != nil {
				return err
			}
		}
		for _, m := range u.Conversation {
			if err := insertMessage(ctx, tx, u.ID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) Attach(ctx context.Context, userID uuid.UUID, id models.Identifier) (*models.User, error) {
	var result *models.User
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		u, err := selectUser(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		if err := claimIdentifier(ctx, tx, userID, id); err != nil {
			return err
		}
		u.AddIdentifier(id)
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		result = u
		return nil
	})
	return result, err
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, fn func(u *models.User) error) (*models.User, error) {
	var result *models.User
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		u, err := selectUser(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.ID = id
		u.Conversation = nil
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		if err := claimFree(ctx, tx, u); err != nil {
			return err
		}
		result = u
		return nil
	})
	return result, err
}

func (s *PostgresStore) Merge(ctx context.Context, targetID, loserID uuid.UUID) (*models.User, error) {
	var result *models.User
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// Both rows are locked in id order so concurrent merges of the same pair serialize.
		lock := squirrel.Select("id").
			From("users").
			Where(squirrel.Eq{"id": []uuid.UUID{targetID, loserID}}).
			OrderBy("id").
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar)
		sql, args, err := lock.ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to lock users: %w", err)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		target, err := selectUser(ctx, tx, targetID, false)
		if err != nil {
			return err
		}
		if targetID == loserID {
			result = target
			return nil
		}
		loser, err := selectUser(ctx, tx, loserID, false)
		if errors.Is(err, ErrUserNotFound) {
			result = target
			return nil
		}
		if err != nil {
			return err
		}

		merged := models.MergeUsers(target, loser)
		merged.Conversation = nil

		for _, table := range []string{"messages", "user_identifiers"} {
			if err := reparent(ctx, tx, table, loserID, targetID); err != nil {
				return err
			}
		}
		if err := deleteUser(ctx, tx, loserID); err != nil {
			return err
		}
		if err := saveUser(ctx, tx, merged); err != nil {
			return err
		}
		if err := claimFree(ctx, tx, merged); err != nil {
			return err
		}
		result = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Users merged",
		zap.String("target_id", targetID.String()),
		zap.String("loser_id", loserID.String()),
	)
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteUser(ctx, s.db, id)
}

func (s *PostgresStore) DeleteAll(ctx context.Context) (int, error) {
	sql, args, err := squirrel.Delete("users").PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete users: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := squirrel.Select(userColumns...).
		From("users").
		OrderBy("last_active DESC").
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func selectUser(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.User, error) {
	query := squirrel.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	u, err := scanUser(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var sessions, contact, document, docs, payment, history, outcome []byte
	err := row.Scan(
		&u.ID, &sessions, &u.CookieID, &u.DeviceID, &contact,
		&document, &docs, &payment, &history,
		&u.Summary, &u.ShortSummary, &u.Provisional, &outcome,
		&u.CreatedAt, &u.LastActive,
	)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		raw []byte
		dst any
	}{
		{sessions, &u.Sessions},
		{contact, &u.Contact},
		{document, &u.Document},
		{docs, &u.Documents},
		{payment, &u.Payment},
		{history, &u.PaymentHistory},
		{outcome, &u.Outcome},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode user %s: %w", u.ID, err)
		}
	}
	if u.Sessions == nil {
		u.Sessions = []string{}
	}
	return &u, nil
}

// userValues returns the column values of u keyed by column name, JSONB columns encoded as text.
func userValues(u *models.User) (map[string]any, error) {
	values := map[string]any{
		"id":            u.ID,
		"cookie_id":     u.CookieID,
		"device_id":     u.DeviceID,
		"summary":       u.Summary,
		"short_summary": u.ShortSummary,
		"provisional":   u.Provisional,
		"created_at":    u.CreatedAt,
		"last_active":   u.LastActive,
	}

	sessions := u.Sessions
	if sessions == nil {
		sessions = []string{}
	}
	documents := u.Documents
	if documents == nil {
		documents = []models.DocumentRef{}
	}
	history := u.PaymentHistory
	if history == nil {
		history = []models.PaymentRecord{}
	}

	encoded := map[string]any{
		"sessions":        sessions,
		"contact":         u.Contact,
		"documents":       documents,
		"payment_history": history,
	}
	if u.Document != nil {
		encoded["document"] = u.Document
	} else {
		values["document"] = nil
	}
	if u.Payment != nil {
		encoded["payment"] = u.Payment
	} else {
		values["payment"] = nil
	}
	if u.Outcome != nil {
		encoded["outcome"] = u.Outcome
	} else {
		values["outcome"] = nil
	}

	for column, v := range encoded {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", column, err)
		}
		values[column] = string(raw)
	}
	return values, nil
}

func insertUser(ctx context.Context, q querier, u *models.User) error {
	values, err := userValues(u)
	if err != nil {
		return err
	}
	row := make([]any, len(userColumns))
	for i, column := range userColumns {
		row[i] = values[column]
	}

	sql, args, err := squirrel.Insert("users").
		Columns(userColumns...).
		Values(row...).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, sql, args...)
	return err
}

func saveUser(ctx context.Context, q querier, u *models.User) error {
	values, err := userValues(u)
	if err != nil {
		return err
	}
	delete(values, "id")

	sql, args, err := squirrel.Update("users").
		SetMap(values).
		Where(squirrel.Eq{"id": u.ID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, sql, args...)
	return err
}

func deleteUser(ctx context.Context, q querier, id uuid.UUID) error {
	sql, args, err := squirrel.Delete("users").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// claimIdentifier inserts the identifier row, relying on the (kind, value) primary key to
// make concurrent claims race-free.
func claimIdentifier(ctx context.Context, q querier, userID uuid.UUID, id models.Identifier) error {
	sql, args, err := squirrel.Insert("user_identifiers").
		Columns("kind", "value", "user_id").
		Values(string(id.Kind), id.Value, userID).
		Suffix("ON CONFLICT (kind, value) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to claim identifier: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	sql, args, err = squirrel.Select("user_id").
		From("user_identifiers").
		Where(squirrel.Eq{"kind": string(id.Kind), "value": id.Value}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	var owner uuid.UUID
	if err := q.QueryRow(ctx, sql, args...).Scan(&owner); err != nil {
		return fmt.Errorf("failed to read identifier owner: %w", err)
	}
	if owner == userID {
		return nil
	}
	return &IdentifierConflictError{Identifier: id, OwnerID: owner}
}

// claimFree claims every identifier of u that nobody owns yet.
func claimFree(ctx context.Context, q querier, u *models.User) error {
	for _, id := range u.Identifiers() {
		err := claimIdentifier(ctx, q, u.ID, id)
		if err != nil && !errors.Is(err, ErrIdentifierTaken) {
			return err
		}
	}
	return nil
}

func reparent(ctx context.Context, q querier, table string, from, to uuid.UUID) error {
	sql, args, err := squirrel.Update(table).
		Set("user_id", to).
		Where(squirrel.Eq{"user_id": from}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to move %s: %w", table, err)
	}
	return nil
}
