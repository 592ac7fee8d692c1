package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

const (
	articleBucket = "articles"
	noDOIBucket   = "articles_without_doi"
)

// boltStore implements a Store backed by BoltDB. Rows with a DOI live in
// articleBucket keyed by DOI; the rest are appended to noDOIBucket under the
// bucket sequence.
type boltStore struct {
	db      *bolt.DB
	writeMu sync.Mutex
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{articleBucket, noDOIBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Exists reports whether an article with the given DOI is stored.
func (b *boltStore) Exists(doi string) (bool, error) {
	if doi == "" {
		return false, nil
	}
	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		exists = bucket.Get(doiKey(doi)) != nil
		return nil
	})
	return exists, err
}

// UpsertBatch writes the batch in a single read-write transaction.
func (b *boltStore) UpsertBatch(articles []domain.Article) (UpsertResult, error) {
	if len(articles) == 0 {
		return UpsertResult{}, nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var res UpsertResult
	err := b.db.Update(func(tx *bolt.Tx) error {
		keyed := tx.Bucket([]byte(articleBucket))
		unkeyed := tx.Bucket([]byte(noDOIBucket))
		if keyed == nil || unkeyed == nil {
			return fmt.Errorf("article buckets missing")
		}

		for _, art := range articles {
			value, err := json.Marshal(art)
			if err != nil {
				return fmt.Errorf("encode article %q: %w", art.DOI, err)
			}

			if !art.HasDOI() {
				seq, err := unkeyed.NextSequence()
				if err != nil {
					return err
				}
				if err := unkeyed.Put(sequenceKey(seq), value); err != nil {
					return err
				}
				res.Inserted++
				res.Added = append(res.Added, art)
				continue
			}

			key := doiKey(art.DOI)
			if keyed.Get(key) != nil {
				res.Skipped++
				continue
			}
			if err := keyed.Put(key, value); err != nil {
				return err
			}
			res.Inserted++
			res.Added = append(res.Added, art)
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, writeFailure(err)
	}
	return res, nil
}

// LoadAll returns every stored article from a single read transaction:
// keyed rows in DOI order, then unkeyed rows in insertion order.
func (b *boltStore) LoadAll() ([]domain.Article, error) {
	var out []domain.Article
	err := b.db.View(func(tx *bolt.Tx) error {
		for _, name := range []string{articleBucket, noDOIBucket} {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				return fmt.Errorf("bucket %s missing", name)
			}
			if err := bucket.ForEach(func(k, v []byte) error {
				var art domain.Article
				if err := json.Unmarshal(v, &art); err != nil {
					return fmt.Errorf("decode article %q: %w", k, err)
				}
				out = append(out, art)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored rows.
func (b *boltStore) Count() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		for _, name := range []string{articleBucket, noDOIBucket} {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				return fmt.Errorf("bucket %s missing", name)
			}
			n += bucket.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// doiKey is the DOI itself, or a digest of it when the DOI exceeds the key size limit.
func doiKey(doi string) []byte {
	if len(doi) <= bolt.MaxKeySize {
		return []byte(doi)
	}
	sum := sha256.Sum256([]byte(doi))
	return []byte("sha256:" + hex.EncodeToString(sum[:]))
}

func sequenceKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
