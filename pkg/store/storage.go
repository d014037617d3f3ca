package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

var (
	// ErrNotFound is returned by Load for graphs that were never saved.
	ErrNotFound = errors.New("graph not found")
	// ErrCorrupt is returned when a stored snapshot fails decoding or its
	// integrity check.
	ErrCorrupt = errors.New("corrupt graph snapshot")
)

// GraphStore persists accumulator snapshots keyed by graph id. Callers
// serialize Load-modify-Save cycles per graph, see the workspace package.
type GraphStore interface {
	Load(ctx context.Context, graphID string) (*common.Graph, error)
	Save(ctx context.Context, graphID string, g *common.Graph) error
	Delete(ctx context.Context, graphID string) error
}
