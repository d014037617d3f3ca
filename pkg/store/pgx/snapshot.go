package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/graphmerge/internal/util"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// SnapshotStore implements store.GraphStore on the graph_snapshots table.
// Every graph is one JSONB document; counts and the subgraph counter are
// duplicated into columns for listing without decoding.
type SnapshotStore struct {
	conn pgxIConn
}

// NewSnapshotStore creates a SnapshotStore on an existing connection or
// pool. Run Migrate first.
func NewSnapshotStore(conn pgxIConn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

func (s *SnapshotStore) Load(ctx context.Context, graphID string) (*common.Graph, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, loadSnapshotSQL, graphID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load graph %s: %w", graphID, err)
	}
	return store.Decode(data)
}

func (s *SnapshotStore) Save(ctx context.Context, graphID string, g *common.Graph) error {
	if g == nil {
		g = common.NewGraph()
	}
	if err := store.Check(g); err != nil {
		return err
	}
	data, err := store.Encode(g)
	if err != nil {
		return err
	}

	err = util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		_, err := s.conn.Exec(ctx, saveSnapshotSQL, graphID, data, g.SubgraphCounter, len(g.Nodes), len(g.Edges))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save graph %s: %w", graphID, err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, graphID string) error {
	if _, err := s.conn.Exec(ctx, deleteSnapshotSQL, graphID); err != nil {
		return fmt.Errorf("failed to delete graph %s: %w", graphID, err)
	}
	return nil
}

const loadSnapshotSQL = `
SELECT snapshot FROM graph_snapshots WHERE graph_id = $1;
`

const saveSnapshotSQL = `
INSERT INTO graph_snapshots (graph_id, snapshot, subgraph_counter, node_count, edge_count)
VALUES ($1, $2::jsonb, $3, $4, $5)
ON CONFLICT (graph_id) DO UPDATE
SET snapshot         = EXCLUDED.snapshot,
    subgraph_counter = EXCLUDED.subgraph_counter,
    node_count       = EXCLUDED.node_count,
    edge_count       = EXCLUDED.edge_count,
    updated_at       = now();
`

const deleteSnapshotSQL = `
DELETE FROM graph_snapshots WHERE graph_id = $1;
`
