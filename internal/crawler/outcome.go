package crawler

import (
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

// State is the engine's position in a run.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateExtracting State = "extracting"
	StateUpserting  State = "upserting"
	// StateExhausted ends a run that stopped cleanly: cursor exhausted or a ceiling reached.
	StateExhausted State = "exhausted"
	StateAborted   State = "aborted"
)

// Reason records why a run stopped.
type Reason string

const (
	ReasonExhausted      Reason = "exhausted"
	ReasonArticleCeiling Reason = "article_ceiling"
	ReasonRequestCeiling Reason = "request_ceiling"
	ReasonAborted        Reason = "aborted"
	ReasonCancelled      Reason = "cancelled"
)

// ErrorKind classifies the failure behind an aborted run.
type ErrorKind string

const (
	ErrorTransport         ErrorKind = "transport"
	ErrorRateLimited       ErrorKind = "rate_limited"
	ErrorMalformedResponse ErrorKind = "malformed_response"
	ErrorStoreWrite        ErrorKind = "store_write_failure"
)

// CursorState is the engine's progress through the result set.
type CursorState struct {
	Cursor           string
	RequestsIssued   int
	RecordsRetrieved int
	State            State
}

// Stats summarizes a run.
type Stats struct {
	RequestsIssued   int
	RecordsRetrieved int
	Pages            int
	Inserted         int
	Skipped          int
	Retries          int
	Anomalies        int
	Reason           Reason
	ErrorKind        ErrorKind
	Duration         time.Duration
}

// Outcome is everything a run committed. Articles holds every row of every
// committed batch (including rows deduplicated against the store); Added holds
// only the rows the run newly inserted.
type Outcome struct {
	Articles []domain.Article
	Added    []domain.Article
	Final    CursorState
	Stats    Stats
}

// AbortError is returned when a run ends on an unrecoverable failure.
type AbortError struct {
	Kind   ErrorKind
	Cursor string
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("ingest aborted (%s) at cursor %q: %v", e.Kind, e.Cursor, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
