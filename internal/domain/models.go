package domain

// Domain contains core models shared across packages.

// Article is a bibliographic record as persisted by the store.
// Empty strings and a zero Year mean the source did not carry the field.
type Article struct {
	DOI         string   `json:"doi" bson:"doi"`
	Title       string   `json:"title,omitempty" bson:"title,omitempty"`
	Year        int      `json:"year,omitempty" bson:"year,omitempty"`
	Authors     []string `json:"authors" bson:"authors"`
	Abstract    string   `json:"abstract,omitempty" bson:"abstract,omitempty"`
	FullTextURL string   `json:"full_text_url,omitempty" bson:"full_text_url,omitempty"`
	Type        string   `json:"type,omitempty" bson:"type,omitempty"`
	URL         string   `json:"url,omitempty" bson:"url,omitempty"`
	Language    string   `json:"language,omitempty" bson:"language,omitempty"`
}

// HasDOI reports whether the article can be deduplicated by key.
func (a Article) HasDOI() bool {
	return a.DOI != ""
}
