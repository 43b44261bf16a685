// Package search implements the hybrid web/news search capability consumed
// by the retrieval planner. Failures are per-query and non-fatal: callers
// treat a failed query as contributing no evidence.
package search

import (
	"context"

	"github.com/agentra/factcheck/internal/model"
)

// Searcher dispatches one query to the search capability.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.RawResult, error)
}

// Func adapts a function to the Searcher interface, mainly for tests.
type Func func(ctx context.Context, query string) ([]model.RawResult, error)

func (f Func) Search(ctx context.Context, query string) ([]model.RawResult, error) {
	return f(ctx, query)
}
