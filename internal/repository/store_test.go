package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// backends returns every Store implementation available to the test run. Postgres joins
// when DB_HOST points at a database the tests may wipe.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	out := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(zaptest.NewLogger(t))
		},
	}
	if os.Getenv("DB_HOST") == "" {
		return out
	}
	out["postgres"] = func(t *testing.T) Store {
		ctx := context.Background()
		logger := zaptest.NewLogger(t)

		cfg, err := config.Load()
		require.NoError(t, err)
		pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
		require.NoError(t, err)
		t.Cleanup(pool.Close)
		require.NoError(t, postgres.Migrate(ctx, pool, logger))

		s := NewPostgresStore(pool, logger)
		_, err = s.DeleteAll(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { s.DeleteAll(context.Background()) })
		return s
	}
	return out
}

func TestStore_MergeKeepsConversationInTimeOrder(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			base := time.Now().UTC().Truncate(time.Millisecond)

			target := models.NewUser(models.NewIdentifierSet(device("d1")), base)
			loser := models.NewUser(models.NewIdentifierSet(session("s1")), base)
			require.NoError(t, s.Create(ctx, target))
			require.NoError(t, s.Create(ctx, loser))

			// the target talks later but is written first
			appendAt := func(u *models.User, content string, offset time.Duration) {
				_, err := s.Append(ctx, u.ID, models.Message{Role: models.RoleUser, Content: content, Timestamp: base.Add(offset)})
				require.NoError(t, err)
			}
			appendAt(target, "t5", 5*time.Second)
			appendAt(target, "t6", 6*time.Second)
			appendAt(loser, "t1", time.Second)
			appendAt(loser, "t2", 2*time.Second)

			_, err := s.Merge(ctx, target.ID, loser.ID)
			require.NoError(t, err)

			all, err := s.Recent(ctx, target.ID, 0)
			require.NoError(t, err)
			var contents []string
			for _, m := range all {
				contents = append(contents, m.Content)
			}
			assert.Equal(t, []string{"t1", "t2", "t5", "t6"}, contents)

			last, err := s.Recent(ctx, target.ID, 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "t5", last[0].Content)
			assert.Equal(t, "t6", last[1].Content)
		})
	}
}
