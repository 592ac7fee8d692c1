// Package crawler walks a deep-paging cursor and merges each page into the store.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/logger"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/metrics"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/normalize"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/storage"
	"github.com/samvad-hq/samvad-scholar-harvester/pkg/crossref"
)

// maxBackoffShift caps the exponential rate-limit backoff at interval·2^maxBackoffShift.
const maxBackoffShift = 10

// Engine runs one query at a time against a fetcher and a store.
// An Engine is safe for concurrent Runs; each Run owns its own cursor.
type Engine struct {
	fetcher crossref.PageFetcher
	store   BatchWriter
	log     logger.Logger
	metrics *metrics.Recorder
	sampler *logger.ErrorSampler

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records run progress on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = rec }
}

// WithAnomalySampler replaces the sampler that throttles extraction anomaly logs.
func WithAnomalySampler(s *logger.ErrorSampler) Option {
	return func(e *Engine) {
		if s != nil {
			e.sampler = s
		}
	}
}

// WithClock replaces the clock and the cancellable sleep used for pacing.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewEngine wires an engine with its collaborators.
func NewEngine(fetcher crossref.PageFetcher, store BatchWriter, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		store:   store,
		log:     logger.Ensure(log),
		sampler: logger.NewErrorSampler(50),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the mutable state of a single Run.
type run struct {
	query     string
	label     string
	cfg       RunConfig
	state     CursorState
	lastFetch time.Time
	out       Outcome
}

// Run pages through query until the cursor is exhausted, a ceiling is
// reached, a fetch or store failure aborts the run, or ctx is cancelled.
// The returned Outcome always reflects every committed batch; the error is
// non-nil only for aborted or cancelled runs.
func (e *Engine) Run(ctx context.Context, query string, cfg RunConfig) (Outcome, error) {
	if e == nil || e.fetcher == nil || e.store == nil {
		return Outcome{}, fmt.Errorf("crawler engine is not initialized")
	}

	cfg = cfg.Normalize()
	r := &run{
		query: query,
		label: cfg.Label,
		cfg:   cfg,
		state: CursorState{Cursor: crossref.StartCursor, State: StateIdle},
	}
	if r.label == "" {
		r.label = query
	}

	started := e.now()
	done := e.metrics.RunStarted()
	defer done()

	reason, err := e.loop(ctx, r)

	r.out.Final = r.state
	r.out.Stats.RequestsIssued = r.state.RequestsIssued
	r.out.Stats.RecordsRetrieved = r.state.RecordsRetrieved
	r.out.Stats.Reason = reason
	r.out.Stats.Duration = e.now().Sub(started)
	e.metrics.RunFinished(r.label, string(reason), r.out.Stats.Duration)

	fields := map[string]any{
		"query":             r.label,
		"reason":            reason,
		"requests_issued":   r.out.Stats.RequestsIssued,
		"records_retrieved": r.out.Stats.RecordsRetrieved,
		"pages":             r.out.Stats.Pages,
		"inserted":          r.out.Stats.Inserted,
		"skipped":           r.out.Stats.Skipped,
		"retries":           r.out.Stats.Retries,
		"anomalies":         r.out.Stats.Anomalies,
		"duration_ms":       r.out.Stats.Duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		if r.out.Stats.ErrorKind != "" {
			fields["error_kind"] = r.out.Stats.ErrorKind
		}
		e.log.ErrorObj("ingest run stopped early", "run_result", fields)
		return r.out, err
	}
	e.log.InfoObj("ingest run completed", "run_result", fields)
	return r.out, nil
}

func (e *Engine) loop(ctx context.Context, r *run) (Reason, error) {
	for {
		page, err := e.fetchPage(ctx, r)
		if err != nil {
			if kind, ok := crossref.KindOf(err); ok {
				return e.abort(r, fetchErrorKind(kind), err)
			}
			r.state.State = StateAborted
			return ReasonCancelled, err
		}
		r.out.Stats.Pages++
		e.metrics.PageFetched(r.label)

		r.state.State = StateExtracting
		batch := e.extract(r, page.Items)
		r.state.RecordsRetrieved += len(page.Items)

		r.state.State = StateUpserting
		res, err := e.store.UpsertBatch(batch)
		if err != nil {
			return e.abort(r, ErrorStoreWrite, err)
		}
		r.out.Articles = append(r.out.Articles, batch...)
		r.out.Added = append(r.out.Added, res.Added...)
		r.out.Stats.Inserted += res.Inserted
		r.out.Stats.Skipped += res.Skipped
		e.metrics.ArticlesStored(r.label, res.Inserted, res.Skipped)

		e.log.DebugObj("page committed", "page_result", map[string]any{
			"query":         r.label,
			"cursor":        r.state.Cursor,
			"items":         len(page.Items),
			"inserted":      res.Inserted,
			"skipped":       res.Skipped,
			"total_results": page.TotalResults,
		})

		r.state.Cursor = page.NextCursor
		switch {
		case r.state.Cursor == "":
			r.state.State = StateExhausted
			return ReasonExhausted, nil
		case r.state.RecordsRetrieved >= r.cfg.MaxArticles:
			r.state.State = StateExhausted
			return ReasonArticleCeiling, nil
		case r.state.RequestsIssued >= r.cfg.MaxRequests:
			r.state.State = StateExhausted
			return ReasonRequestCeiling, nil
		}
	}
}

func (e *Engine) abort(r *run, kind ErrorKind, err error) (Reason, error) {
	r.state.State = StateAborted
	r.out.Stats.ErrorKind = kind
	return ReasonAborted, &AbortError{Kind: kind, Cursor: r.state.Cursor, Err: err}
}

// fetchPage requests the current cursor, retrying retryable failures within
// the run's budget. It returns ctx.Err() when cancelled before or between
// attempts, and a *crossref.FetchError when the page cannot be fetched.
func (e *Engine) fetchPage(ctx context.Context, r *run) (crossref.Page, error) {
	req := crossref.Request{
		Query:    r.query,
		Cursor:   r.state.Cursor,
		PageSize: r.cfg.PageSize,
		SortKey:  r.cfg.SortKey,
		Order:    r.cfg.Order,
		Filter:   r.cfg.Filter,
	}

	gap := r.cfg.RequestInterval
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return crossref.Page{}, err
		}
		if err := e.waitSince(ctx, r.lastFetch, gap); err != nil {
			return crossref.Page{}, err
		}

		r.state.State = StateFetching
		r.lastFetch = e.now()
		r.state.RequestsIssued++

		// an issued request is allowed to finish even if ctx is cancelled meanwhile
		page, err := e.fetcher.Fetch(context.WithoutCancel(ctx), req)
		if err == nil {
			return page, nil
		}

		fe := asFetchError(err)
		e.metrics.FetchFailed(r.label, string(fe.Kind))

		exhausted := attempt >= r.cfg.RetryBudget
		atCeiling := r.state.RequestsIssued >= r.cfg.MaxRequests
		if !fe.Retryable() || exhausted || atCeiling {
			e.log.ErrorObj("page fetch failed", "fetch_error", map[string]any{
				"query":           r.label,
				"cursor":          r.state.Cursor,
				"kind":            fe.Kind,
				"attempt":         attempt + 1,
				"requests_issued": r.state.RequestsIssued,
				"error":           fe.Error(),
			})
			return crossref.Page{}, fe
		}

		gap = retryGap(fe, r.cfg.RequestInterval, attempt+1)
		r.out.Stats.Retries++
		e.metrics.FetchRetried(r.label)
		e.log.WarnObj("page fetch failed, retrying", "fetch_retry", map[string]any{
			"query":    r.label,
			"cursor":   r.state.Cursor,
			"kind":     fe.Kind,
			"attempt":  attempt + 1,
			"wait_ms":  gap.Milliseconds(),
			"error":    fe.Error(),
			"budget":   r.cfg.RetryBudget,
			"requests": r.state.RequestsIssued,
		})
	}
}

// waitSince blocks until gap has elapsed since last. A zero last means no
// request has been issued yet.
func (e *Engine) waitSince(ctx context.Context, last time.Time, gap time.Duration) error {
	if last.IsZero() || gap <= 0 {
		return nil
	}
	wait := gap - e.now().Sub(last)
	if wait <= 0 {
		return nil
	}
	return e.sleep(ctx, wait)
}

func (e *Engine) extract(r *run, items []json.RawMessage) []domain.Article {
	batch := make([]domain.Article, 0, len(items))
	for _, raw := range items {
		art, anomalies := crossref.Extract(raw)
		blank := false
		for _, a := range anomalies {
			if a.Field == crossref.FieldItem {
				blank = true
			}
			r.out.Stats.Anomalies++
			e.metrics.FieldAnomaly(r.label, a.Field)
			key := r.label + ":" + a.Field
			if e.sampler.ShouldLog(key) {
				e.log.WarnObj("record field unusable", "extraction_anomaly", map[string]any{
					"query":       r.label,
					"doi":         art.DOI,
					"field":       a.Field,
					"reason":      a.Reason,
					"occurrences": e.sampler.Count(key),
				})
			}
		}
		// a non-object item has no identity; storing it would repeat every run
		if blank {
			continue
		}
		batch = append(batch, normalize.Article(art))
	}
	return batch
}

// retryGap is the minimum spacing before retry n (1-based).
func retryGap(fe *crossref.FetchError, interval time.Duration, n int) time.Duration {
	if fe.Kind != crossref.KindRateLimited {
		return interval
	}
	shift := n
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	gap := interval << uint(shift)
	if fe.RetryAfter > gap {
		gap = fe.RetryAfter
	}
	return gap
}

func asFetchError(err error) *crossref.FetchError {
	var fe *crossref.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	// not produced by the HTTP exchange, so asking again cannot help
	return &crossref.FetchError{Kind: crossref.KindMalformedResponse, Err: err}
}

func fetchErrorKind(k crossref.Kind) ErrorKind {
	switch k {
	case crossref.KindRateLimited:
		return ErrorRateLimited
	case crossref.KindMalformedResponse:
		return ErrorMalformedResponse
	default:
		return ErrorTransport
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ BatchWriter = (storage.Store)(nil)
