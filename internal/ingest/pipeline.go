// Package ingest is the entry point for incremental harvesting: it composes
// the works fetcher, record extraction, normalization, the pagination engine
// and the deduplicating store behind a single call.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/crawler"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/logger"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/metrics"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/storage"
	"github.com/samvad-hq/samvad-scholar-harvester/pkg/crossref"
)

// RunConfig bounds a single ingest run.
type RunConfig = crawler.RunConfig

// Stats summarizes a run.
type Stats = crawler.Stats

// Result is what a run committed to the store.
type Result struct {
	// Articles are all rows of every committed batch, including ones already stored.
	Articles []domain.Article
	// Added are the rows this run newly inserted.
	Added []domain.Article
	Stats Stats
}

// Option customizes a Pipeline.
type Option func(*options)

type options struct {
	engine []crawler.Option
}

// WithMetrics records run progress on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *options) { o.engine = append(o.engine, crawler.WithMetrics(rec)) }
}

// WithEngineOptions passes options straight to the pagination engine.
func WithEngineOptions(opts ...crawler.Option) Option {
	return func(o *options) { o.engine = append(o.engine, opts...) }
}

// Pipeline runs ingest queries against one store.
type Pipeline struct {
	store  storage.Store
	engine *crawler.Engine
	log    logger.Logger
}

// NewPipeline wires a pipeline. The store is owned by the caller.
func NewPipeline(fetcher crossref.PageFetcher, store storage.Store, log logger.Logger, opts ...Option) *Pipeline {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log = logger.Ensure(log)
	return &Pipeline{
		store:  store,
		engine: crawler.NewEngine(fetcher, store, log, o.engine...),
		log:    log,
	}
}

// RunIngest pages through query and merges every page into the store.
// The error is non-nil exactly when the run was aborted or cancelled; the
// Result still carries everything committed before that point.
func (p *Pipeline) RunIngest(ctx context.Context, query string, cfg RunConfig) (Result, error) {
	if p == nil || p.engine == nil || p.store == nil {
		return Result{}, fmt.Errorf("ingest pipeline is not initialized")
	}
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("ingest query is empty")
	}

	out, err := p.engine.Run(ctx, query, cfg)
	res := Result{Articles: out.Articles, Added: out.Added, Stats: out.Stats}

	if total, cerr := p.store.Count(); cerr == nil {
		p.log.InfoObj("store state after ingest", "store_state", map[string]any{
			"query":     labelOf(query, cfg),
			"rows":      total,
			"added_now": len(out.Added),
		})
	}
	if err != nil {
		return res, fmt.Errorf("ingest %q: %w", labelOf(query, cfg), err)
	}
	return res, nil
}

func labelOf(query string, cfg RunConfig) string {
	if cfg.Label != "" {
		return cfg.Label
	}
	return query
}
