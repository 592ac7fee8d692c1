package storage

import (
	"testing"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

func TestMemoryStoreDedup(t *testing.T) {
	store := NewMemoryStore()

	res, err := store.UpsertBatch([]domain.Article{
		{DOI: "10.1/a", Authors: []string{"A"}},
		{DOI: "10.1/a"},
		{Title: "no doi"},
	})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if res.Inserted != 2 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	rows, _ := store.LoadAll()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	// Returned rows are copies.
	rows[0].Authors[0] = "mutated"
	again, _ := store.LoadAll()
	if again[0].Authors[0] != "A" {
		t.Fatalf("LoadAll leaked internal state")
	}
}
