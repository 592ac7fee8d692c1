package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

func TestMongoStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Transactions need a replica set.
	container, err := mongodb.Run(ctx, "mongo:6", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}()

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint).SetDirect(true))
	require.NoError(t, err)

	store := newMongoStore(client, "test_scholar_harvester", "articles")
	defer func() {
		if err := store.Close(); err != nil {
			t.Logf("failed to disconnect client: %s", err)
		}
	}()

	t.Run("UpsertBatch dedups by DOI", func(t *testing.T) {
		batch := []domain.Article{
			{DOI: "10.1/a", Title: "A", Year: 2021, Authors: []string{"Ada Lovelace"}},
			{DOI: "10.1/b", Title: "B", Authors: []string{}},
			{DOI: "10.1/a", Title: "A again", Authors: []string{}},
		}

		res, err := store.UpsertBatch(batch)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Inserted)
		assert.Equal(t, 1, res.Skipped)
		require.Len(t, res.Added, 2)

		res, err = store.UpsertBatch(batch[:2])
		require.NoError(t, err)
		assert.Equal(t, 0, res.Inserted)
		assert.Equal(t, 2, res.Skipped)

		ok, err := store.Exists("10.1/a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Rows without DOI are always inserted", func(t *testing.T) {
		res, err := store.UpsertBatch([]domain.Article{{Title: "orphan"}, {Title: "orphan"}})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Inserted)
	})

	t.Run("LoadAll returns stored rows", func(t *testing.T) {
		n, err := store.Count()
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		rows, err := store.LoadAll()
		require.NoError(t, err)
		require.Len(t, rows, 4)

		var found bool
		for _, row := range rows {
			if row.DOI == "10.1/a" {
				found = true
				assert.Equal(t, "A", row.Title)
				assert.Equal(t, 2021, row.Year)
				assert.Equal(t, []string{"Ada Lovelace"}, row.Authors)
			}
		}
		assert.True(t, found)
	})
}
