// Package normalize cleans extracted records before they are persisted.
package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

// Article returns a copy of art with markup stripped from the abstract.
func Article(art domain.Article) domain.Article {
	art.Abstract = StripMarkup(art.Abstract)
	if art.Authors == nil {
		art.Authors = []string{}
	}
	return art
}

// StripMarkup removes HTML/JATS tags and decodes entities, keeping text content.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		// the html tokenizer only fails on reader errors
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
