package crossref

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

// Anomaly records a sub-field that was present but could not be decoded.
// The affected Article field is left at its zero value.
type Anomaly struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FieldItem is the Anomaly field reported when an item is not a JSON object at all.
const FieldItem = "item"

// Extract maps one raw works item to an Article. It never fails: every field is
// decoded on its own and degrades to its zero value when missing or malformed.
func Extract(raw json.RawMessage) (domain.Article, []Anomaly) {
	art := domain.Article{Authors: []string{}}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return art, []Anomaly{{Field: FieldItem, Reason: "not a JSON object"}}
	}

	x := extractor{fields: fields}
	art.DOI = strings.TrimSpace(x.str("DOI"))
	art.Title = x.title()
	art.Year = x.year()
	art.Authors = x.authors()
	art.Abstract = x.str("abstract")
	art.FullTextURL = x.firstLink()
	art.Type = x.str("type")
	art.URL = x.str("URL")
	art.Language = x.str("language")
	return art, x.anomalies
}

type extractor struct {
	fields    map[string]json.RawMessage
	anomalies []Anomaly
}

func (x *extractor) note(field, reason string) {
	x.anomalies = append(x.anomalies, Anomaly{Field: field, Reason: reason})
}

// lookup returns the raw field value, or false when absent or null.
func (x *extractor) lookup(key string) (json.RawMessage, bool) {
	raw, ok := x.fields[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (x *extractor) str(key string) string {
	raw, ok := x.lookup(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		x.note(key, "expected string")
		return ""
	}
	return s
}

func (x *extractor) title() string {
	raw, ok := x.lookup("title")
	if !ok {
		return ""
	}
	var titles []string
	if err := json.Unmarshal(raw, &titles); err != nil {
		x.note("title", "expected list of strings")
		return ""
	}
	if len(titles) == 0 {
		return ""
	}
	return titles[0]
}

func (x *extractor) year() int {
	raw, ok := x.lookup("created")
	if !ok {
		return 0
	}
	var created struct {
		DateParts [][]interface{} `json:"date-parts"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		x.note("created", "expected date-parts object")
		return 0
	}

	best, found := 0, false
	for _, parts := range created.DateParts {
		if len(parts) == 0 {
			continue
		}
		y, ok := asInt(parts[0])
		if !ok {
			continue
		}
		if !found || y < best {
			best, found = y, true
		}
	}
	if !found && len(created.DateParts) > 0 {
		x.note("created", "no usable year in date-parts")
	}
	return best
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func (x *extractor) authors() []string {
	out := []string{}
	raw, ok := x.lookup("author")
	if !ok {
		return out
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		x.note("author", "expected list")
		return out
	}

	for _, entry := range entries {
		var person map[string]json.RawMessage
		if err := json.Unmarshal(entry, &person); err != nil {
			x.note("author", "entry is not an object")
			out = append(out, "")
			continue
		}
		given := x.nameComponent(person, "given")
		family := x.nameComponent(person, "family")
		if given == "" && family == "" {
			out = append(out, "")
			continue
		}
		out = append(out, given+" "+family)
	}
	return out
}

func (x *extractor) nameComponent(person map[string]json.RawMessage, key string) string {
	raw, ok := person[key]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		x.note("author."+key, "expected string")
		return ""
	}
	return s
}

func (x *extractor) firstLink() string {
	raw, ok := x.lookup("link")
	if !ok {
		return ""
	}
	var links []struct {
		URL *string `json:"URL"`
	}
	if err := json.Unmarshal(raw, &links); err != nil {
		x.note("link", "expected list of link objects")
		return ""
	}
	if len(links) == 0 || links[0].URL == nil {
		return ""
	}
	return *links[0].URL
}
