package crossref

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

func TestExtractMapsFullItem(t *testing.T) {
	raw := json.RawMessage(`{
		"DOI": " 10.1234/abc ",
		"title": ["Deep paging", "Subtitle"],
		"created": {"date-parts": [[2021, 4, 9]]},
		"author": [
			{"given": "Ada", "family": "Lovelace"},
			{"family": "Turing"},
			{"given": "Grace"},
			{"affiliation": []}
		],
		"abstract": "<jats:p>Text</jats:p>",
		"link": [{"URL": "https://example.org/full.pdf"}, {"URL": "https://example.org/other"}],
		"type": "journal-article",
		"URL": "https://doi.org/10.1234/abc",
		"language": "en"
	}`)

	art, anomalies := Extract(raw)
	if len(anomalies) != 0 {
		t.Fatalf("unexpected anomalies %+v", anomalies)
	}
	want := domain.Article{
		DOI:         "10.1234/abc",
		Title:       "Deep paging",
		Year:        2021,
		Authors:     []string{"Ada Lovelace", " Turing", "Grace ", ""},
		Abstract:    "<jats:p>Text</jats:p>",
		FullTextURL: "https://example.org/full.pdf",
		Type:        "journal-article",
		URL:         "https://doi.org/10.1234/abc",
		Language:    "en",
	}
	if !reflect.DeepEqual(art, want) {
		t.Fatalf("Extract =\n%+v\nwant\n%+v", art, want)
	}
}

func TestExtractWithoutAuthorsYieldsEmptyList(t *testing.T) {
	art, anomalies := Extract(json.RawMessage(`{"DOI": "10.1/x"}`))
	if art.Authors == nil || len(art.Authors) != 0 {
		t.Fatalf("expected empty non-nil authors, got %#v", art.Authors)
	}
	if len(anomalies) != 0 {
		t.Fatalf("missing fields are not anomalies: %+v", anomalies)
	}
	if art.Title != "" || art.Year != 0 || art.FullTextURL != "" {
		t.Fatalf("expected zero optional fields, got %+v", art)
	}
}

func TestExtractDegradesMalformedFields(t *testing.T) {
	art, anomalies := Extract(json.RawMessage(`{
		"DOI": "10.1/y",
		"title": "not a list",
		"created": {"date-parts": [[null]]},
		"author": [{"given": 7, "family": "Hopper"}, "bogus"],
		"link": {"URL": "x"},
		"type": 12
	}`))

	if art.DOI != "10.1/y" {
		t.Fatalf("DOI = %q", art.DOI)
	}
	if art.Title != "" || art.Year != 0 || art.FullTextURL != "" || art.Type != "" {
		t.Fatalf("expected degraded fields, got %+v", art)
	}
	if !reflect.DeepEqual(art.Authors, []string{" Hopper", ""}) {
		t.Fatalf("Authors = %#v", art.Authors)
	}

	fields := map[string]bool{}
	for _, a := range anomalies {
		fields[a.Field] = true
	}
	for _, f := range []string{"title", "created", "author.given", "author", "link", "type"} {
		if !fields[f] {
			t.Errorf("expected anomaly for %s, got %+v", f, anomalies)
		}
	}
}

func TestExtractPicksEarliestDatePart(t *testing.T) {
	art, _ := Extract(json.RawMessage(`{"created": {"date-parts": [[2019, 2], [2017], ["2018"]]}}`))
	if art.Year != 2017 {
		t.Fatalf("Year = %d want 2017", art.Year)
	}
}

func TestExtractNonObjectItem(t *testing.T) {
	art, anomalies := Extract(json.RawMessage(`42`))
	if len(anomalies) != 1 || anomalies[0].Field != FieldItem {
		t.Fatalf("unexpected anomalies %+v", anomalies)
	}
	if art.DOI != "" || art.Authors == nil {
		t.Fatalf("unexpected article %+v", art)
	}
}
