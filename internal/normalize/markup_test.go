package normalize

import (
	"testing"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

func TestStripMarkup(t *testing.T) {
	cases := map[string]string{
		"<p>Hello <b>world</b></p>": "Hello world",
		"<jats:title>Abstract</jats:title><jats:p>Soil &amp; water</jats:p>": "AbstractSoil & water",
		"  plain text  ":        "plain text",
		"p < 0.05 was observed": "p < 0.05 was observed",
		"":                      "",
	}
	for in, want := range cases {
		if got := StripMarkup(in); got != want {
			t.Errorf("StripMarkup(%q) = %q want %q", in, got, want)
		}
	}
}

func TestArticleLeavesOtherFieldsAlone(t *testing.T) {
	in := domain.Article{DOI: "10.1/x", Title: "<i>Kept</i>", Abstract: "<p>Hello <b>world</b></p>"}
	out := Article(in)
	if out.Abstract != "Hello world" {
		t.Fatalf("Abstract = %q", out.Abstract)
	}
	if out.Title != "<i>Kept</i>" || out.DOI != "10.1/x" {
		t.Fatalf("unexpected changes %+v", out)
	}
	if out.Authors == nil {
		t.Fatalf("expected non-nil authors")
	}
	if in.Abstract == out.Abstract {
		t.Fatalf("input must not be modified")
	}
}
