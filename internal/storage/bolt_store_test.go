package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

func openTestBolt(t *testing.T, path string) *boltStore {
	t.Helper()
	store, err := openBolt(path)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	return store
}

func TestBoltStoreUpsertIsIdempotent(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "articles.db"))
	defer store.Close()

	batch := []domain.Article{
		{DOI: "10.1/a", Title: "A", Authors: []string{}},
		{DOI: "10.1/b", Title: "B", Authors: []string{"Ada Lovelace"}},
	}

	first, err := store.UpsertBatch(batch)
	if err != nil {
		t.Fatalf("first UpsertBatch: %v", err)
	}
	if first.Inserted != 2 || first.Skipped != 0 || len(first.Added) != 2 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := store.UpsertBatch(batch)
	if err != nil {
		t.Fatalf("second UpsertBatch: %v", err)
	}
	if second.Inserted != 0 || second.Skipped != 2 || len(second.Added) != 0 {
		t.Fatalf("unexpected second result: %+v", second)
	}

	n, err := store.Count()
	if err != nil || n != 2 {
		t.Fatalf("expected 2 rows, got %d err=%v", n, err)
	}
}

func TestBoltStoreExistingRowWins(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "articles.db"))
	defer store.Close()

	if _, err := store.UpsertBatch([]domain.Article{{DOI: "10.1/a", Title: "original"}}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	res, err := store.UpsertBatch([]domain.Article{{DOI: "10.1/a", Title: "replacement"}})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", res)
	}

	rows, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "original" {
		t.Fatalf("expected original row to survive, got %+v", rows)
	}
}

func TestBoltStoreDuplicateWithinBatch(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "articles.db"))
	defer store.Close()

	res, err := store.UpsertBatch([]domain.Article{
		{DOI: "10.1/x", Title: "first"},
		{DOI: "10.1/x", Title: "second"},
	})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Added[0].Title != "first" {
		t.Fatalf("expected first occurrence to win, got %q", res.Added[0].Title)
	}
}

func TestBoltStoreAlwaysInsertsRowsWithoutDOI(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "articles.db"))
	defer store.Close()

	batch := []domain.Article{{Title: "untitled preprint"}, {Title: "untitled preprint"}}
	for i := 0; i < 2; i++ {
		res, err := store.UpsertBatch(batch)
		if err != nil {
			t.Fatalf("UpsertBatch: %v", err)
		}
		if res.Inserted != 2 {
			t.Fatalf("expected both rows inserted, got %+v", res)
		}
	}

	n, err := store.Count()
	if err != nil || n != 4 {
		t.Fatalf("expected 4 rows, got %d err=%v", n, err)
	}
	if ok, _ := store.Exists(""); ok {
		t.Fatalf("empty doi must never exist")
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.db")

	store := openTestBolt(t, path)
	if _, err := store.UpsertBatch([]domain.Article{{DOI: "10.1/keep", Title: "kept"}}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestBolt(t, path)
	defer reopened.Close()

	ok, err := reopened.Exists("10.1/keep")
	if err != nil || !ok {
		t.Fatalf("expected doi to survive reopen, ok=%v err=%v", ok, err)
	}
	res, err := reopened.UpsertBatch([]domain.Article{{DOI: "10.1/keep", Title: "again"}})
	if err != nil || res.Skipped != 1 {
		t.Fatalf("expected skip after reopen, res=%+v err=%v", res, err)
	}
}

func TestBoltStoreClosedWriteFails(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "articles.db"))
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := store.UpsertBatch([]domain.Article{{DOI: "10.1/a"}})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("expected ErrWriteFailure, got %v", err)
	}
}

func TestBoltStoreRollsBackFailedBatch(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "articles.db"))
	defer store.Close()

	// a nested bucket under a DOI makes the Put for that DOI fail mid-batch
	if err := store.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.Bucket([]byte(articleBucket)).CreateBucket([]byte("10.1/c"))
		return err
	}); err != nil {
		t.Fatalf("seed conflicting key: %v", err)
	}
	before, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}

	_, err = store.UpsertBatch([]domain.Article{{DOI: "10.1/a"}, {Title: "no doi"}, {DOI: "10.1/c"}})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("expected ErrWriteFailure, got %v", err)
	}

	after, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if after != before {
		t.Fatalf("expected no rows committed, count went %d -> %d", before, after)
	}
	if ok, _ := store.Exists("10.1/a"); ok {
		t.Fatalf("row before the failure must not be committed")
	}
}

func TestBoltStoreAcceptsOversizedDOI(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "articles.db"))
	defer store.Close()
	long := "10.1/" + strings.Repeat("x", bolt.MaxKeySize+10)

	res, err := store.UpsertBatch([]domain.Article{{DOI: "10.1/a"}, {DOI: long, Title: "long"}})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("expected 2 inserted, got %+v", res)
	}
	if ok, _ := store.Exists(long); !ok {
		t.Fatalf("expected oversized DOI to be found")
	}

	res, err = store.UpsertBatch([]domain.Article{{DOI: long, Title: "again"}})
	if err != nil {
		t.Fatalf("second UpsertBatch: %v", err)
	}
	if res.Inserted != 0 || res.Skipped != 1 {
		t.Fatalf("expected oversized DOI to dedupe, got %+v", res)
	}

	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	var found bool
	for _, art := range all {
		if art.DOI == long {
			found = art.Title == "long"
		}
	}
	if !found {
		t.Fatalf("expected the original oversized row to be kept")
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()

	mem, err := NewStore(ctx, Options{Type: "memory"})
	if err != nil {
		t.Fatalf("NewStore memory: %v", err)
	}
	if _, ok := mem.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", mem)
	}

	disk, err := NewStore(ctx, Options{BBoltPath: filepath.Join(t.TempDir(), "a.db")})
	if err != nil {
		t.Fatalf("NewStore default: %v", err)
	}
	defer disk.Close()
	if _, ok := disk.(*boltStore); !ok {
		t.Fatalf("expected *boltStore, got %T", disk)
	}

	if _, err := NewStore(ctx, Options{Type: "bbolt"}); err == nil {
		t.Fatalf("expected error for missing bbolt path")
	}
	if _, err := NewStore(ctx, Options{Type: "mongodb"}); err == nil {
		t.Fatalf("expected error for missing mongodb uri")
	}
	if _, err := NewStore(ctx, Options{Type: "sqlite"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
