package crawler

import (
	"strings"
	"time"

	"github.com/samvad-hq/samvad-scholar-harvester/pkg/crossref"
)

const (
	DefaultRequestInterval = time.Second
	DefaultMaxRequests     = 50
	DefaultMaxArticles     = 50000
	DefaultPageSize        = crossref.MaxPageSize
	DefaultSortKey         = "published"
	DefaultRetryBudget     = 3
)

// RunConfig bounds and shapes a single ingest run. Zero values take the
// defaults above; a negative RetryBudget disables retries.
type RunConfig struct {
	RequestInterval time.Duration
	MaxRequests     int
	MaxArticles     int
	PageSize        int
	SortKey         string
	Order           string
	Filter          string
	RetryBudget     int
	// Label names the run in logs and metrics. Defaults to the query text.
	Label string
}

// Normalize fills defaults and clamps PageSize to the API maximum.
func (c RunConfig) Normalize() RunConfig {
	if c.RequestInterval <= 0 {
		c.RequestInterval = DefaultRequestInterval
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.MaxArticles <= 0 {
		c.MaxArticles = DefaultMaxArticles
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	c.PageSize = crossref.ClampPageSize(c.PageSize)
	c.SortKey = strings.TrimSpace(c.SortKey)
	if c.SortKey == "" {
		c.SortKey = DefaultSortKey
	}
	c.Order = strings.TrimSpace(c.Order)
	c.Filter = strings.TrimSpace(c.Filter)
	switch {
	case c.RetryBudget == 0:
		c.RetryBudget = DefaultRetryBudget
	case c.RetryBudget < 0:
		c.RetryBudget = 0
	}
	return c
}
