package cli

import (
	"context"
	"testing"
	"time"

	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/stretchr/testify/require"
)

func TestFindRunByPrefix(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	_, err = database.MigrateUp(ctx)
	require.NoError(t, err)

	runs := db.NewRunRepository(database)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"abcd1111-0000", "abcd2222-0000", "ffff0000-0000"} {
		require.NoError(t, runs.Create(ctx, &models.Run{
			ID:         id,
			Recipe:     "ones_create_epic",
			Runtime:    "chrome-js",
			StepsTotal: 3,
			StartedAt:  started.Add(time.Duration(i) * time.Minute),
		}))
	}

	run, err := findRunByPrefix(ctx, runs, "abcd2")
	require.NoError(t, err)
	require.Equal(t, "abcd2222-0000", run.ID)

	_, err = findRunByPrefix(ctx, runs, "abcd")
	require.ErrorContains(t, err, "ambiguous")

	_, err = findRunByPrefix(ctx, runs, "0000ffff")
	require.ErrorIs(t, err, db.ErrRunNotFound)

	_, err = findRunByPrefix(ctx, runs, "ff")
	require.ErrorIs(t, err, db.ErrRunNotFound)
}
