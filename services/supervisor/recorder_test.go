package supervisor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/services/engine"
	"nodeflow/services/node"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping run repository tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestRunRepository_RecordAndLoad(t *testing.T) {
	repo := NewRunRepository(getTestPool(t))
	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))
	require.NoError(t, repo.InitSchema(ctx))

	id := uuid.NewString()
	started := time.Now().UTC().Truncate(time.Millisecond)
	rec := RunRecord{
		RunID:          id,
		WorkflowID:     "wf-1",
		State:          engine.StateRunning,
		ResultsVersion: 2,
		LatestResults: &engine.Snapshot{
			Phase:         engine.PhaseTick,
			Outputs:       map[string]node.Outputs{"a": {"value": "x"}},
			ExecutedNodes: []string{"a"},
		},
		StartedAt: started,
		UpdatedAt: started,
	}
	require.NoError(t, repo.Record(ctx, rec))

	// An older version does not overwrite a newer one.
	stale := rec
	stale.ResultsVersion = 1
	stale.State = engine.StateErrored
	require.NoError(t, repo.Record(ctx, stale))

	got, err := repo.Load(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.StateRunning, got.State)
	assert.Equal(t, uint64(2), got.ResultsVersion)
	require.NotNil(t, got.LatestResults)
	assert.Equal(t, "x", got.LatestResults.Outputs["a"]["value"])

	rec.State = engine.StateStopped
	require.NoError(t, repo.Record(ctx, rec))
	got, err = repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StateStopped, got.State)
}

func TestRunRepository_LoadMissing(t *testing.T) {
	repo := NewRunRepository(getTestPool(t))
	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	got, err := repo.Load(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}
