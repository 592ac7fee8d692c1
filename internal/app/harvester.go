package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/config"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/crawler"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/ingest"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/logger"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/metrics"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/storage"
	"github.com/samvad-hq/samvad-scholar-harvester/pkg/crossref"
	"github.com/samvad-hq/samvad-scholar-harvester/pkg/httpclient"
	"github.com/samvad-hq/samvad-scholar-harvester/pkg/publishers"
	"github.com/samvad-hq/samvad-scholar-harvester/pkg/queries"
)

// Harvester is the scholar harvester runtime. It runs every configured query
// through the ingest pipeline, once or on an interval, and announces newly
// stored articles to the configured publishers.
type Harvester struct {
	cfg             *config.Config
	queries         []queries.Query
	pipeline        *ingest.Pipeline
	fanout          *publishers.Fanout
	store           storage.Store
	metrics         *metrics.Recorder
	metricsSrv      *http.Server
	harvestInterval time.Duration
	log             logger.Logger
}

// Option overrides a collaborator NewHarvester would otherwise build from config.
type Option func(*buildOptions)

type buildOptions struct {
	fetcher    crossref.PageFetcher
	publishers []publishers.Publisher
	registerer prometheus.Registerer
	engine     []crawler.Option
}

// WithFetcher replaces the Crossref works fetcher.
func WithFetcher(f crossref.PageFetcher) Option {
	return func(o *buildOptions) { o.fetcher = f }
}

// WithPublishers replaces the publishers loaded from publishers_file.
func WithPublishers(pubs ...publishers.Publisher) Option {
	return func(o *buildOptions) { o.publishers = pubs }
}

// WithRegisterer registers metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *buildOptions) { o.registerer = reg }
}

// WithEngineOptions passes options to every pagination engine.
func WithEngineOptions(opts ...crawler.Option) Option {
	return func(o *buildOptions) { o.engine = append(o.engine, opts...) }
}

// NewHarvester builds a harvester runtime from config.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	queryReg, err := loadQueries(cfg)
	if err != nil {
		return nil, err
	}
	enabledQueries := queryReg.Enabled()
	queryIDs := make([]string, 0, len(enabledQueries))
	for _, q := range enabledQueries {
		queryIDs = append(queryIDs, q.ID)
	}
	log.InfoObj("queries registry loaded", "queries_meta", map[string]any{
		"count": len(queryIDs),
		"ids":   queryIDs,
	})

	pubClients := bo.publishers
	if pubClients == nil {
		pubClients, err = buildPublishers(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
	}
	fanout := publishers.NewFanout(pubClients)

	store, err := storage.NewStore(ctx, storage.Options{
		Type:            cfg.StorageType,
		BBoltPath:       cfg.BBoltPath,
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		MongoCollection: cfg.MongoCollection,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":       cfg.StorageType,
		"path":       cfg.BBoltPath,
		"database":   cfg.MongoDatabase,
		"collection": cfg.MongoCollection,
	})

	reg := bo.registerer
	var gatherer prometheus.Gatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		private.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg, gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	rec := metrics.New(reg)

	fetcher := bo.fetcher
	if fetcher == nil {
		fetcher = crossref.NewFetcher(httpclient.NewRestyClient(cfg.HTTPTimeout), crossref.Options{
			BaseURL:   cfg.CrossrefBaseURL,
			Mailto:    cfg.CrossrefMailto,
			PlusToken: cfg.CrossrefPlusToken,
			UserAgent: cfg.AppName + "/" + cfg.AppVersion,
		})
	}

	pipeline := ingest.NewPipeline(fetcher, store, log,
		ingest.WithMetrics(rec),
		ingest.WithEngineOptions(bo.engine...),
	)

	h := &Harvester{
		cfg:             cfg,
		queries:         enabledQueries,
		pipeline:        pipeline,
		fanout:          fanout,
		store:           store,
		metrics:         rec,
		harvestInterval: cfg.HarvestInterval,
		log:             log,
	}
	if cfg.MetricsAddr != "" && gatherer != nil {
		h.metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return h, nil
}

func loadQueries(cfg *config.Config) (*queries.Registry, error) {
	if cfg.QueriesFile != "" {
		reg, err := queries.Load(cfg.QueriesFile)
		if err != nil {
			return nil, fmt.Errorf("load queries registry: %w", err)
		}
		return reg, nil
	}
	reg, err := queries.Single(cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("build default query: %w", err)
	}
	return reg, nil
}

func buildPublishers(ctx context.Context, cfg *config.Config, log logger.Logger) ([]publishers.Publisher, error) {
	if cfg.PublishersFile == "" {
		log.InfoObj("no publishers file configured; events disabled", "publishers_meta", map[string]any{"count": 0})
		return nil, nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()

	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return pubs, nil
}

func metricsMux(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Run executes harvest passes. With a zero harvest interval it runs a single
// pass and returns its error; otherwise it repeats until ctx is cancelled.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.pipeline == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()
	h.startMetricsServer()

	h.log.InfoObj("harvester starting", "harvester_state", map[string]any{
		"queries_count":     len(h.queries),
		"publishers_count":  h.fanout.Size(),
		"harvest_interval":  h.harvestInterval.String(),
		"query_concurrency": h.cfg.QueryConcurrency,
	})

	if h.harvestInterval <= 0 {
		return h.runOnce(ctx)
	}

	if err := h.runOnce(ctx); err != nil {
		h.log.ErrorObj("initial harvest failed", "error", err.Error())
	}

	ticker := time.NewTicker(h.harvestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoObj("harvester loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if err := h.runOnce(ctx); err != nil {
				h.log.ErrorObj("scheduled harvest failed", "error", err.Error())
			}
		}
	}
}

// runOnce runs every query, at most QueryConcurrency at a time, and joins
// their errors. One failing query never stops the others.
func (h *Harvester) runOnce(ctx context.Context) error {
	start := time.Now()
	h.log.InfoObj("harvest started", "harvest_meta", map[string]any{
		"queries_count": len(h.queries),
		"started_at":    start.UTC(),
	})

	var (
		mu    sync.Mutex
		errs  []error
		added int
	)

	var g errgroup.Group
	g.SetLimit(max(h.cfg.QueryConcurrency, 1))
	for _, q := range h.queries {
		g.Go(func() error {
			n, err := h.runQuery(ctx, q)
			mu.Lock()
			defer mu.Unlock()
			added += n
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	h.log.InfoObj("harvest completed", "harvest_meta", map[string]any{
		"queries_count": len(h.queries),
		"failed":        len(errs),
		"added":         added,
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
	return errors.Join(errs...)
}

func (h *Harvester) runQuery(ctx context.Context, q queries.Query) (int, error) {
	res, err := h.pipeline.RunIngest(ctx, q.Query, q.RunConfig(h.baseRunConfig()))
	h.publishAdded(ctx, q, res.Added)
	if err != nil {
		return len(res.Added), fmt.Errorf("query %s: %w", q.ID, err)
	}
	return len(res.Added), nil
}

// publishAdded announces committed rows even when the run was cancelled.
func (h *Harvester) publishAdded(ctx context.Context, q queries.Query, added []domain.Article) {
	if h.fanout.Size() == 0 || len(added) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	failed := 0
	for _, art := range added {
		if _, err := h.fanout.Publish(ctx, publishers.NewEvent(q.ID, q.Query, art)); err != nil {
			failed++
			h.metrics.PublishFailed(q.ID)
			h.log.WarnObj("publish article event failed", "publish_error", map[string]any{
				"query_id": q.ID,
				"doi":      art.DOI,
				"error":    err.Error(),
			})
		}
	}
	h.log.InfoObj("article events published", "publish_result", map[string]any{
		"query_id": q.ID,
		"events":   len(added),
		"failed":   failed,
	})
}

func (h *Harvester) baseRunConfig() crawler.RunConfig {
	retries := h.cfg.RetryBudget
	if retries == 0 {
		retries = -1
	}
	return crawler.RunConfig{
		RequestInterval: h.cfg.RequestInterval,
		MaxRequests:     h.cfg.MaxRequests,
		MaxArticles:     h.cfg.MaxArticles,
		PageSize:        h.cfg.PageSize,
		SortKey:         h.cfg.SortKey,
		RetryBudget:     retries,
	}
}

func (h *Harvester) startMetricsServer() {
	if h.metricsSrv == nil {
		return
	}
	srv := h.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.ErrorObj("metrics server failed", "error", err.Error())
		}
	}()
	h.log.InfoObj("metrics server listening", "metrics_addr", srv.Addr)
}

// close releases the store, publishers and metrics server, logging failures.
func (h *Harvester) close() {
	if h.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.metricsSrv.Shutdown(ctx); err != nil {
			h.log.ErrorObj("metrics server shutdown failed", "error", err.Error())
		}
		cancel()
	}
	if err := h.fanout.Close(); err != nil {
		h.log.ErrorObj("publishers close failed", "error", err.Error())
	}
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.log.ErrorObj("storage close failed", "error", err.Error())
		}
	}
}
