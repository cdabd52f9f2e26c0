// Package sanitize removes self-loops and parallel edges from the graph
// and checks for residual cycles before topological sorting begins.
package sanitize

import (
	"context"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/utils"
)

// Result reports what the sanitiser changed.
type Result struct {
	SelfLoopsRemoved     int64
	ParallelEdgesRemoved int64
	SourceVertexCount    int64
}

// Sanitiser removes self-loops and parallel edges, then checks for at
// least one source vertex, warning (but not failing) if none exists.
type Sanitiser struct {
	store  graphstore.Store
	logger utils.Logger
}

// New constructs a Sanitiser. A nil logger is replaced with a no-op one.
func New(store graphstore.Store, logger utils.Logger) *Sanitiser {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Sanitiser{store: store, logger: logger}
}

// Run removes self-loops, then parallel edges, then verifies at least one
// source vertex exists. Running it twice on an already-sanitised graph is
// a no-op in both return values.
func (s *Sanitiser) Run(ctx context.Context) (Result, error) {
	loops, err := s.store.RemoveSelfLoops(ctx)
	if err != nil {
		return Result{}, err
	}

	parallel, err := s.store.RemoveParallelEdges(ctx)
	if err != nil {
		return Result{}, err
	}

	sources, err := s.store.CountSourceVertices(ctx)
	if err != nil {
		return Result{}, err
	}
	if sources == 0 {
		s.logger.Warn("sanitiser found no source vertices; graph may be entirely cyclic")
	}

	return Result{
		SelfLoopsRemoved:     loops,
		ParallelEdgesRemoved: parallel,
		SourceVertexCount:    sources,
	}, nil
}
