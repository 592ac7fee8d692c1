package storage

import (
	"sync"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

// MemoryStore is a process-local Store. It is not durable.
type MemoryStore struct {
	mu    sync.RWMutex
	byDOI map[string]int
	rows  []domain.Article
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byDOI: make(map[string]int)}
}

func (m *MemoryStore) Exists(doi string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byDOI[doi]
	return ok && doi != "", nil
}

func (m *MemoryStore) UpsertBatch(articles []domain.Article) (UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res UpsertResult
	for _, art := range articles {
		if art.HasDOI() {
			if _, ok := m.byDOI[art.DOI]; ok {
				res.Skipped++
				continue
			}
			m.byDOI[art.DOI] = len(m.rows)
		}
		m.rows = append(m.rows, cloneArticle(art))
		res.Inserted++
		res.Added = append(res.Added, art)
	}
	return res, nil
}

func (m *MemoryStore) LoadAll() ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Article, len(m.rows))
	for i, art := range m.rows {
		out[i] = cloneArticle(art)
	}
	return out, nil
}

func (m *MemoryStore) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows), nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneArticle(art domain.Article) domain.Article {
	art.Authors = append([]string{}, art.Authors...)
	return art
}
