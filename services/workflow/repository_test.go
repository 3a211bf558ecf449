package workflow

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping repository tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestRepository_InitSchema(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	err := repo.InitSchema(context.Background())
	require.NoError(t, err)

	// Running again should be idempotent
	err = repo.InitSchema(context.Background())
	require.NoError(t, err)
}

func TestRepository_Seed_Idempotent(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	require.NoError(t, repo.Seed(ctx))
	require.NoError(t, repo.Seed(ctx)) // Second call should not error
}

func TestRepository_Get_Found(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))
	require.NoError(t, repo.Seed(ctx))

	g, err := repo.Get(ctx, SampleWorkflowID)
	require.NoError(t, err)
	require.NotNil(t, g)

	assert.Equal(t, SampleWorkflowID, g.ID)
	assert.Equal(t, "Weather Alert Workflow", g.Name)
	assert.Len(t, g.Nodes, len(SampleGraph().Nodes))
	assert.Len(t, g.Connections, len(SampleGraph().Connections))
}

func TestRepository_SaveAndList(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	g := &Graph{
		ID:    "repo-test-wf",
		Name:  "first",
		Nodes: []NodeSpec{{ID: "a", Type: "constant"}},
	}
	require.NoError(t, repo.Save(ctx, g))

	g.Name = "second"
	require.NoError(t, repo.Save(ctx, g))

	got, err := repo.Get(ctx, "repo-test-wf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Name)
	assert.Empty(t, got.Connections)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	var found bool
	for _, s := range list {
		if s.ID == "repo-test-wf" {
			found = true
			assert.Equal(t, 1, s.NodeCount)
		}
	}
	assert.True(t, found)
}

func TestRepository_Get_NotFound(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	g, err := repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	g, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, g)

	require.NoError(t, store.Save(ctx, SampleGraph()))
	got, err := store.Get(ctx, SampleWorkflowID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Weather Alert Workflow", got.Name)
	assert.False(t, got.CreatedAt.IsZero())

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, len(SampleGraph().Nodes), list[0].NodeCount)
}
