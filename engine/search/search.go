// Package search runs hybrid queries: semantic and keyword strategies execute
// concurrently and independently, and rank fusion merges their results. A
// failing strategy degrades to zero results instead of failing the query;
// partial results beat no results.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
	"github.com/swasthyasetu/corpus-engine/engine/embed"
	"github.com/swasthyasetu/corpus-engine/pkg/fn"
)

// Defaults applied to requests that leave the knobs unset.
const (
	DefaultLimit     = 10
	DefaultThreshold = 0.3
	DefaultTimeout   = 5 * time.Second
)

// SemanticSearcher is the vector similarity lookup.
type SemanticSearcher interface {
	Query(ctx context.Context, embedding []float32, filters domain.SearchFilters, limit int, threshold float64) ([]domain.SearchResult, error)
}

// KeywordSearcher is the full-text lookup over active documents.
type KeywordSearcher interface {
	SearchFullText(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.SearchResult, error)
}

// Request is a hybrid search query. Zero Limit and Threshold take defaults.
type Request struct {
	Query     string               `json:"query"`
	Filters   domain.SearchFilters `json:"filters,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
	Threshold float64              `json:"threshold,omitempty"`
}

// Response is the fused result set. Results is never nil.
type Response struct {
	Results []domain.SearchResult `json:"results"`
	Total   int                   `json:"total"`
	Query   string                `json:"query"`
	Filters domain.SearchFilters  `json:"filters"`
}

// Opts configures the search service.
type Opts struct {
	Limit     int
	Threshold float64
	// Timeout bounds one whole search, both strategies included.
	Timeout time.Duration
}

// Service executes hybrid searches. Stateless; safe for concurrent use.
type Service struct {
	semantic SemanticSearcher
	keyword  KeywordSearcher
	embedder embed.Embedder
	opts     Opts
	log      *slog.Logger
}

// New creates a search Service, applying defaults for unset options.
func New(semantic SemanticSearcher, keyword KeywordSearcher, embedder embed.Embedder, opts Opts, log *slog.Logger) *Service {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{semantic: semantic, keyword: keyword, embedder: embedder, opts: opts, log: log}
}

// Search validates the query, runs both strategies concurrently, and fuses
// their results. A strategy error is logged and contributes zero results; the
// search as a whole fails only on an invalid query.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	if err := domain.ValidateQuery(req.Query); err != nil {
		return Response{}, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.opts.Limit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = s.opts.Threshold
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	embedStage := func(ctx context.Context, q string) fn.Result[[]float32] {
		return fn.FromPair(s.embedder.Embed(ctx, q))
	}
	queryStage := func(ctx context.Context, embedding []float32) fn.Result[[]domain.SearchResult] {
		return fn.FromPair(s.semantic.Query(ctx, embedding, req.Filters, limit, threshold))
	}
	semanticStage := fn.TracedStage("search.semantic", fn.Then(embedStage, queryStage))
	keywordStage := fn.TracedStage("search.keyword", func(ctx context.Context, q string) fn.Result[[]domain.SearchResult] {
		return fn.FromPair(s.keyword.SearchFullText(ctx, q, req.Filters, limit))
	})

	outcomes := fn.FanOut(
		func() fn.Result[[]domain.SearchResult] { return semanticStage(ctx, req.Query) },
		func() fn.Result[[]domain.SearchResult] { return keywordStage(ctx, req.Query) },
	)

	semanticHits := s.resultOrEmpty("semantic", req.Query, outcomes[0])
	keywordHits := s.resultOrEmpty("keyword", req.Query, outcomes[1])

	merged := Merge(semanticHits, keywordHits, limit)
	if merged == nil {
		merged = []domain.SearchResult{}
	}
	return Response{
		Results: merged,
		Total:   len(merged),
		Query:   req.Query,
		Filters: req.Filters,
	}, nil
}

// resultOrEmpty maps a failed strategy to zero results. The error is logged,
// never surfaced; the other strategy may still deliver.
func (s *Service) resultOrEmpty(strategy, query string, r fn.Result[[]domain.SearchResult]) []domain.SearchResult {
	hits, err := r.Unwrap()
	if err != nil {
		s.log.Warn("search: strategy degraded to zero results",
			"strategy", strategy,
			"query", query,
			"error", err,
		)
		return nil
	}
	return hits
}
