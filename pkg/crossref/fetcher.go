package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-scholar-harvester/pkg/httpclient"
)

const (
	// StartCursor begins deep paging.
	StartCursor = "*"
	// MaxPageSize is the documented upper bound for rows per request.
	MaxPageSize = 1000
	// DefaultPageSize is what the API serves when rows is not given.
	DefaultPageSize = 20

	defaultBaseURL = "https://api.crossref.org"
	worksPath      = "/works"
)

// DefaultSelect is the field-selection list sent with every works query.
var DefaultSelect = []string{"DOI", "title", "created", "author", "abstract", "link", "type", "URL", "language"}

// PageFetcher retrieves one page of search results for a cursor.
type PageFetcher interface {
	Fetch(ctx context.Context, req Request) (Page, error)
}

// Request is a single works query at one cursor position.
type Request struct {
	Query    string
	Cursor   string
	PageSize int
	SortKey  string
	Order    string
	Filter   string
	Select   []string
}

// Page is one decoded page of results. NextCursor is empty once the result set is exhausted.
type Page struct {
	Items        []json.RawMessage
	NextCursor   string
	TotalResults int
}

// Options configures the works fetcher.
type Options struct {
	BaseURL   string
	Mailto    string
	PlusToken string
	UserAgent string
}

// Fetcher implements PageFetcher against the Crossref REST API.
type Fetcher struct {
	client  httpclient.Client
	baseURL string
	mailto  string
	token   string
	agent   string
}

// NewFetcher builds a works fetcher; a nil client gets the default resty transport.
func NewFetcher(client httpclient.Client, opts Options) *Fetcher {
	if client == nil {
		client = httpclient.NewRestyClient(30 * time.Second)
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Fetcher{
		client:  client,
		baseURL: base,
		mailto:  strings.TrimSpace(opts.Mailto),
		token:   strings.TrimSpace(opts.PlusToken),
		agent:   strings.TrimSpace(opts.UserAgent),
	}
}

// ClampPageSize bounds size to the API maximum; non-positive sizes use the API default.
func ClampPageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

// Fetch issues one works request and decodes the page.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Page, error) {
	if strings.TrimSpace(req.Cursor) == "" {
		return Page{}, malformedErr(0, ErrInvalidCursor)
	}

	target, err := f.worksURL(req)
	if err != nil {
		return Page{}, malformedErr(0, fmt.Errorf("build works url: %w", err))
	}

	resp, err := f.client.Get(ctx, target, f.headers())
	if err != nil {
		return Page{}, transportErr(0, fmt.Errorf("get works page: %w", err))
	}

	status := resp.StatusCode()
	body := resp.Body()
	switch {
	case status == http.StatusTooManyRequests:
		return Page{}, &FetchError{
			Kind:       KindRateLimited,
			StatusCode: status,
			RetryAfter: parseRetryAfter(resp.Header("Retry-After"), time.Now()),
			Err:        fmt.Errorf("throttled: %s", responseSnippet(body)),
		}
	case status >= http.StatusInternalServerError:
		return Page{}, transportErr(status, fmt.Errorf("server error: %s", responseSnippet(body)))
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		return Page{}, malformedErr(status, fmt.Errorf("request rejected: %s", responseSnippet(body)))
	}

	page, err := decodePage(body)
	if err != nil {
		return Page{}, malformedErr(status, err)
	}
	return page, nil
}

func (f *Fetcher) worksURL(req Request) (string, error) {
	u, err := url.Parse(f.baseURL + worksPath)
	if err != nil {
		return "", err
	}

	fields := req.Select
	if len(fields) == 0 {
		fields = DefaultSelect
	}

	q := u.Query()
	if query := strings.TrimSpace(req.Query); query != "" {
		q.Set("query", query)
	}
	q.Set("cursor", req.Cursor)
	q.Set("rows", strconv.Itoa(ClampPageSize(req.PageSize)))
	if sortKey := strings.TrimSpace(req.SortKey); sortKey != "" {
		q.Set("sort", sortKey)
	}
	if order := strings.TrimSpace(req.Order); order != "" {
		q.Set("order", order)
	}
	if filter := strings.TrimSpace(req.Filter); filter != "" {
		q.Set("filter", filter)
	}
	q.Set("select", strings.Join(fields, ","))
	if f.mailto != "" {
		q.Set("mailto", f.mailto)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) headers() map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	agent := f.agent
	if agent != "" && f.mailto != "" {
		agent = fmt.Sprintf("%s (mailto:%s)", agent, f.mailto)
	}
	if agent != "" {
		headers["User-Agent"] = agent
	}
	if f.token != "" {
		headers["Crossref-Plus-API-Token"] = "Bearer " + f.token
	}
	return headers
}

// parseRetryAfter accepts delta-seconds or an HTTP date; unparseable values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
