package publishers

import (
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

// Event announces one article newly inserted into the store.
type Event struct {
	ID         string         `json:"id"`
	QueryID    string         `json:"query_id"`
	Query      string         `json:"query"`
	Article    domain.Article `json:"article"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// NewEvent constructs an Event for an article ingested by the given query.
func NewEvent(queryID, query string, article domain.Article) Event {
	return Event{
		ID:         uuid.NewString(),
		QueryID:    queryID,
		Query:      query,
		Article:    article,
		IngestedAt: time.Now().UTC(),
	}
}

// attributes are the routing attributes attached to queue and topic messages.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{"query_id": e.QueryID}
	if e.ID != "" {
		attrs["event_id"] = e.ID
	}
	if e.Article.DOI != "" {
		attrs["doi"] = e.Article.DOI
	}
	if e.Article.Type != "" {
		attrs["work_type"] = e.Article.Type
	}
	return attrs
}
