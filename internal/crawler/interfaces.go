package crawler

import (
	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/storage"
)

// BatchWriter commits one page worth of articles atomically.
// storage.Store satisfies it.
type BatchWriter interface {
	UpsertBatch(articles []domain.Article) (storage.UpsertResult, error)
}
