package queries

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/crawler"
)

// Package queries loads the named ingest jobs (YAML/JSON) the harvester runs.

// Query is one named search. Zero-valued limits fall back to the harvester defaults.
type Query struct {
	ID                string `json:"id" yaml:"id"`
	Query             string `json:"query" yaml:"query"`
	Filter            string `json:"filter" yaml:"filter"`
	Sort              string `json:"sort" yaml:"sort"`
	Order             string `json:"order" yaml:"order"`
	PageSize          int    `json:"page_size" yaml:"page_size"`
	MaxRequests       int    `json:"max_requests" yaml:"max_requests"`
	MaxArticles       int    `json:"max_articles" yaml:"max_articles"`
	RequestIntervalMs int    `json:"request_interval_ms" yaml:"request_interval_ms"`
	RetryBudget       int    `json:"retry_budget" yaml:"retry_budget"`
	Disabled          bool   `json:"disabled" yaml:"disabled"`
}

// DefaultID names the query built from the single `query` config value.
const DefaultID = "default"

type registry struct {
	Queries []Query `json:"queries" yaml:"queries"`
}

// Registry is a validated, ordered set of queries.
type Registry struct {
	queries []Query
	idx     map[string]Query
}

// NewRegistry sanitizes and validates qs.
func NewRegistry(qs []Query) (*Registry, error) {
	if len(qs) == 0 {
		return nil, errors.New("no queries configured")
	}

	r := &Registry{
		queries: make([]Query, 0, len(qs)),
		idx:     make(map[string]Query, len(qs)),
	}
	for i := range qs {
		q := sanitizeQuery(qs[i])
		if err := validateQuery(q); err != nil {
			return nil, fmt.Errorf("query[%d]: %w", i, err)
		}
		if _, exists := r.idx[q.ID]; exists {
			return nil, fmt.Errorf("duplicate query id %q", q.ID)
		}
		r.queries = append(r.queries, q)
		r.idx[q.ID] = q
	}
	return r, nil
}

// Single builds a registry holding one query under DefaultID.
func Single(query string) (*Registry, error) {
	return NewRegistry([]Query{{ID: DefaultID, Query: query}})
}

// Load reads a registry from a YAML or JSON file.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("queries file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read queries file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(reg.Queries) == 0 {
		return nil, errors.New("queries file contains no queries entries")
	}
	return NewRegistry(reg.Queries)
}

// Enabled returns the queries that are not disabled, in file order.
func (r *Registry) Enabled() []Query {
	if r == nil {
		return nil
	}
	out := make([]Query, 0, len(r.queries))
	for _, q := range r.queries {
		if !q.Disabled {
			out = append(out, q)
		}
	}
	return out
}

// ByID returns the query with the given id, if loaded.
func (r *Registry) ByID(id string) (Query, bool) {
	if r == nil {
		return Query{}, false
	}
	q, ok := r.idx[strings.TrimSpace(id)]
	return q, ok
}

// RunConfig overlays the query's own limits on base.
func (q Query) RunConfig(base crawler.RunConfig) crawler.RunConfig {
	cfg := base
	cfg.Label = q.ID
	if q.Filter != "" {
		cfg.Filter = q.Filter
	}
	if q.Sort != "" {
		cfg.SortKey = q.Sort
	}
	if q.Order != "" {
		cfg.Order = q.Order
	}
	if q.PageSize > 0 {
		cfg.PageSize = q.PageSize
	}
	if q.MaxRequests > 0 {
		cfg.MaxRequests = q.MaxRequests
	}
	if q.MaxArticles > 0 {
		cfg.MaxArticles = q.MaxArticles
	}
	if q.RequestIntervalMs > 0 {
		cfg.RequestInterval = time.Duration(q.RequestIntervalMs) * time.Millisecond
	}
	if q.RetryBudget != 0 {
		cfg.RetryBudget = q.RetryBudget
	}
	return cfg
}

func parseRegistry(data []byte, ext string) (registry, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg registry
		if err := d.fn(data, &reg); err != nil {
			lastErr = fmt.Errorf("decode %s queries: %w", d.name, err)
			continue
		}
		return reg, nil
	}

	if lastErr != nil {
		return registry{}, lastErr
	}
	return registry{}, errors.New("queries file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func sanitizeQuery(q Query) Query {
	q.ID = strings.TrimSpace(q.ID)
	q.Query = strings.TrimSpace(q.Query)
	q.Filter = strings.TrimSpace(q.Filter)
	q.Sort = strings.TrimSpace(q.Sort)
	q.Order = strings.ToLower(strings.TrimSpace(q.Order))
	return q
}

func validateQuery(q Query) error {
	if q.ID == "" {
		return errors.New("id is required")
	}
	if q.Query == "" {
		return fmt.Errorf("query text is required for %q", q.ID)
	}
	if q.Order != "" && q.Order != "asc" && q.Order != "desc" {
		return fmt.Errorf("order for %q must be asc or desc, got %q", q.ID, q.Order)
	}
	if q.PageSize < 0 || q.MaxRequests < 0 || q.MaxArticles < 0 || q.RequestIntervalMs < 0 {
		return fmt.Errorf("limits for %q must not be negative", q.ID)
	}
	return nil
}
