package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
)

var messageColumns = []string{"id", "role", "content", "metadata", "created_at"}

func (s *PostgresStore) Append(ctx context.Context, userID uuid.UUID, msg models.Message) (int, error) {
	var count int
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// Touching the user row first serializes appends for one user and rejects unknown users.
		sql, args, err := squirrel.Update("users").
			Set("last_active", squirrel.Expr("GREATEST(last_active, ?)", msg.Timestamp)).
			Where(squirrel.Eq{"id": userID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		if err := insertMessage(ctx, tx, userID, msg); err != nil {
			return err
		}
		count, err = countMessages(ctx, tx, userID)
		return err
	})
	return count, err
}

func (s *PostgresStore) Recent(ctx context.Context, userID uuid.UUID, n int) ([]models.Message, error) {
	return selectMessages(ctx, s.db, userID, n)
}

func (s *PostgresStore) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	return countMessages(ctx, s.db, userID)
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, userID uuid.UUID, summary, short string) error {
	var bounded models.User
	bounded.SetSummary(summary, short)

	sql, args, err := squirrel.Update("users").
		Set("summary", bounded.Summary).
		Set("short_summary", bounded.ShortSummary).
		Where(squirrel.Eq{"id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func insertMessage(ctx context.Context, q querier, userID uuid.UUID, msg models.Message) error {
	var metadata any
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(raw)
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	sql, args, err := squirrel.Insert("messages").
		Columns("user_id", "role", "content", "metadata", "created_at").
		Values(userID, string(msg.Role), msg.Content, metadata, ts).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, sql, args...)
	return err
}

// selectMessages returns the last n messages in time order, or all of them when n <= 0.
// Rows reparented by a merge keep their ids, so id alone is not a time order.
func selectMessages(ctx context.Context, q querier, userID uuid.UUID, n int) ([]models.Message, error) {
	inner := squirrel.Select(messageColumns...).
		From("messages").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if n > 0 {
		inner = inner.Limit(uint64(n))
	}
	query := squirrel.Select(messageColumns...).
		FromSelect(inner, "recent").
		OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			id       int64
			role     string
			msg      models.Message
			metadata []byte
		)
		if err := rows.Scan(&id, &role, &msg.Content, &metadata, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of message %d: %w", id, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func countMessages(ctx context.Context, q querier, userID uuid.UUID) (int, error) {
	sql, args, err := squirrel.Select("COUNT(*)").
		From("messages").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := q.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
