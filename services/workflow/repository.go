package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store abstracts workflow document persistence for testability.
type Store interface {
	Get(ctx context.Context, id string) (*Graph, error)
	Save(ctx context.Context, g *Graph) error
	List(ctx context.Context) ([]Summary, error)
}

// Repository handles workflow persistence in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the workflows table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			nodes       JSONB NOT NULL DEFAULT '[]',
			connections JSONB NOT NULL DEFAULT '[]',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Seed inserts the sample weather-alert workflow if it does not already exist.
func (r *Repository) Seed(ctx context.Context) error {
	nodesJSON, connsJSON, err := marshalGraph(SampleGraph())
	if err != nil {
		return fmt.Errorf("marshal seed workflow: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflows (id, name, nodes, connections)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, SampleWorkflowID, SampleGraph().Name, nodesJSON, connsJSON)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

// Save inserts or replaces a workflow document.
func (r *Repository) Save(ctx context.Context, g *Graph) error {
	nodesJSON, connsJSON, err := marshalGraph(g)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflows (id, name, nodes, connections)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, nodes = EXCLUDED.nodes,
		    connections = EXCLUDED.connections, updated_at = NOW()
	`, g.ID, g.Name, nodesJSON, connsJSON)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow by ID. Returns nil, nil if not found.
func (r *Repository) Get(ctx context.Context, id string) (*Graph, error) {
	var g Graph
	var nodesJSON, connsJSON []byte

	err := r.db.QueryRow(ctx, `
		SELECT id, name, nodes, connections, created_at, updated_at
		FROM workflows WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &nodesJSON, &connsJSON, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	if err := json.Unmarshal(nodesJSON, &g.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(connsJSON, &g.Connections); err != nil {
		return nil, fmt.Errorf("unmarshal connections: %w", err)
	}
	return &g, nil
}

// List returns a summary of every stored workflow, most recently updated first.
func (r *Repository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, jsonb_array_length(nodes), updated_at
		FROM workflows ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var s Summary
		err := row.Scan(&s.ID, &s.Name, &s.NodeCount, &s.UpdatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan workflows: %w", err)
	}
	return summaries, nil
}

// InitDB creates the schema and seeds initial data. Called from main on startup.
func InitDB(ctx context.Context, pool *pgxpool.Pool) error {
	repo := NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		return err
	}
	return repo.Seed(ctx)
}

func marshalGraph(g *Graph) ([]byte, []byte, error) {
	nodes := g.Nodes
	if nodes == nil {
		nodes = []NodeSpec{}
	}
	conns := g.Connections
	if conns == nil {
		conns = []Connection{}
	}
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return nil, nil, err
	}
	connsJSON, err := json.Marshal(conns)
	if err != nil {
		return nil, nil, err
	}
	return nodesJSON, connsJSON, nil
}
