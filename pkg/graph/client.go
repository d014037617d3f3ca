package graph

// Engine is the graph merge and entity-resolution engine. It folds partial
// graphs into an accumulator graph: resolving duplicates, remapping ids,
// tagging provenance batches and keeping anchored merges connected.
//
// An Engine holds no graph state and may be shared. Callers own the
// accumulator and must serialize operations on one accumulator, see
// Accumulator for an in-process handle doing that.
//
// An Engine should be created using NewEngine.
type Engine struct {
	policy    Policy
	resolver  *Resolver
	allocator IdentifierAllocator
}

// EngineParams defines the configuration parameters for creating a new
// Engine.
//
// Policy overrides DefaultPolicy when set. Allocator defaults to a
// NanoidAllocator.
type EngineParams struct {
	Policy    *Policy
	Allocator IdentifierAllocator
}

// NewEngine creates and returns a new Engine configured with the provided
// parameters.
//
// Example:
//
//	policy := graph.DefaultPolicy()
//	policy.Threshold = 0.9
//	engine, err := graph.NewEngine(graph.EngineParams{Policy: &policy})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Returns an error if the policy is invalid.
func NewEngine(params EngineParams) (*Engine, error) {
	policy := DefaultPolicy()
	if params.Policy != nil {
		policy = *params.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	alloc := params.Allocator
	if alloc == nil {
		alloc = NewNanoidAllocator(0)
	}

	return &Engine{
		policy:    policy,
		resolver:  NewResolver(policy),
		allocator: alloc,
	}, nil
}

// Policy returns the merge policy of e.
func (e *Engine) Policy() Policy {
	return e.policy
}
