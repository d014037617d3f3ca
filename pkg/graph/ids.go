package graph

import (
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Source names the kind of operation that produced a batch. It prefixes
// every id allocated for that batch.
type Source string

const (
	SourceSegment      Source = "seg"
	SourceWebSearch    Source = "ws"
	SourceCollaborator Source = "collab"
)

// Namespace scopes allocated ids to one provenance batch.
type Namespace struct {
	Source Source
	Batch  common.SubgraphID
}

func (ns Namespace) prefix() string {
	src := ns.Source
	if src == "" {
		src = SourceSegment
	}
	return fmt.Sprintf("%s%d", src, ns.Batch)
}

// IdentifierAllocator generates node and edge ids for a namespace.
type IdentifierAllocator interface {
	NodeID(ns Namespace) (string, error)
	EdgeID(ns Namespace) (string, error)
}

const defaultNanoidSize = 12

// NanoidAllocator allocates random ids such as "ws4-n-V1StGXR8_Z5j".
type NanoidAllocator struct {
	size int
}

// NewNanoidAllocator returns an allocator using nanoids of the given size.
// A size <= 0 selects the default of 12 characters.
func NewNanoidAllocator(size int) *NanoidAllocator {
	if size <= 0 {
		size = defaultNanoidSize
	}
	return &NanoidAllocator{size: size}
}

func (a *NanoidAllocator) NodeID(ns Namespace) (string, error) {
	id, err := gonanoid.New(a.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate node id: %w", err)
	}
	return ns.prefix() + "-n-" + id, nil
}

func (a *NanoidAllocator) EdgeID(ns Namespace) (string, error) {
	id, err := gonanoid.New(a.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate edge id: %w", err)
	}
	return ns.prefix() + "-e-" + id, nil
}

// SequenceAllocator allocates deterministic ids such as "seg2-n3". Since a
// batch id is never reused within a graph, sequence ids never collide with
// ids of earlier batches.
type SequenceAllocator struct {
	mu    sync.Mutex
	nodes map[Namespace]int
	edges map[Namespace]int
}

// NewSequenceAllocator returns an empty SequenceAllocator.
func NewSequenceAllocator() *SequenceAllocator {
	return &SequenceAllocator{
		nodes: make(map[Namespace]int),
		edges: make(map[Namespace]int),
	}
}

func (a *SequenceAllocator) NodeID(ns Namespace) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes[ns]++
	return fmt.Sprintf("%s-n%d", ns.prefix(), a.nodes[ns]), nil
}

func (a *SequenceAllocator) EdgeID(ns Namespace) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edges[ns]++
	return fmt.Sprintf("%s-e%d", ns.prefix(), a.edges[ns]), nil
}

const maxAllocAttempts = 5

// allocateUnique draws ids from next until one is not in used, then marks
// it as used.
func allocateUnique(next func(Namespace) (string, error), ns Namespace, used map[string]struct{}) (string, error) {
	for range maxAllocAttempts {
		id, err := next(ns)
		if err != nil {
			return "", err
		}
		if _, taken := used[id]; taken {
			continue
		}
		used[id] = struct{}{}
		return id, nil
	}
	return "", fmt.Errorf("could not allocate a free id in namespace %s after %d attempts", ns.prefix(), maxAllocAttempts)
}
