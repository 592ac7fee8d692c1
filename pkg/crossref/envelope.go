package crossref

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// envelope mirrors {"status": ..., "message": {...}}. Message fields are decoded
// one by one so an unexpected extra field never fails the page.
type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
}

var errMissingItems = errors.New("envelope lacks message.items")

func decodePage(body []byte) (Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Page{}, fmt.Errorf("decode envelope: %w", err)
	}
	if isNull(env.Message) {
		return Page{}, fmt.Errorf("envelope lacks message")
	}

	var msg map[string]json.RawMessage
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return Page{}, fmt.Errorf("decode message: %w", err)
	}

	rawItems, ok := msg["items"]
	if !ok || isNull(rawItems) {
		return Page{}, errMissingItems
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return Page{}, fmt.Errorf("decode message.items: %w", err)
	}

	var next string
	if raw, ok := msg["next-cursor"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &next); err != nil {
			return Page{}, fmt.Errorf("decode message.next-cursor: %w", err)
		}
	}

	var total int
	if raw, ok := msg["total-results"]; ok {
		_ = json.Unmarshal(raw, &total)
	}

	// The API keeps handing out a cursor on the final, empty page.
	if len(items) == 0 {
		next = ""
	}

	return Page{
		Items:        items,
		NextCursor:   strings.TrimSpace(next),
		TotalResults: total,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
