package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

const (
	defaultMongoDatabase   = "scholar_harvester"
	defaultMongoCollection = "articles"
	mongoOpTimeout         = 30 * time.Second
)

// mongoRow is the stored document: _id is the DOI, or an ObjectID for rows without one.
type mongoRow struct {
	ID             interface{} `bson:"_id"`
	domain.Article `bson:",inline"`
}

// mongoStore implements Store on a MongoDB collection. Batches run in
// multi-document transactions, so the server must be a replica set.
type mongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	writeMu sync.Mutex
}

func openMongo(ctx context.Context, opts Options) (*mongoStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return newMongoStore(client, opts.MongoDatabase, opts.MongoCollection), nil
}

func newMongoStore(client *mongo.Client, dbName, collName string) *mongoStore {
	if dbName == "" {
		dbName = defaultMongoDatabase
	}
	if collName == "" {
		collName = defaultMongoCollection
	}
	return &mongoStore{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
	}
}

func (m *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoStore) Exists(doi string) (bool, error) {
	if doi == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	n, err := m.coll.CountDocuments(ctx, bson.M{"_id": doi}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("lookup doi %q: %w", doi, err)
	}
	return n > 0, nil
}

func (m *mongoStore) UpsertBatch(articles []domain.Article) (UpsertResult, error) {
	if len(articles) == 0 {
		return UpsertResult{}, nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	out, err := m.inTransaction(func(sc mongo.SessionContext) (interface{}, error) {
		var res UpsertResult
		for _, art := range articles {
			if !art.HasDOI() {
				if _, err := m.coll.InsertOne(sc, mongoRow{ID: primitive.NewObjectID(), Article: art}); err != nil {
					return nil, fmt.Errorf("insert article without doi: %w", err)
				}
				res.Inserted++
				res.Added = append(res.Added, art)
				continue
			}

			r, err := m.coll.UpdateOne(sc,
				bson.M{"_id": art.DOI},
				bson.M{"$setOnInsert": art},
				options.Update().SetUpsert(true),
			)
			if err != nil {
				return nil, fmt.Errorf("upsert article %q: %w", art.DOI, err)
			}
			if r.UpsertedCount == 1 {
				res.Inserted++
				res.Added = append(res.Added, art)
			} else {
				res.Skipped++
			}
		}
		return res, nil
	})
	if err != nil {
		return UpsertResult{}, writeFailure(err)
	}
	return out.(UpsertResult), nil
}

func (m *mongoStore) LoadAll() ([]domain.Article, error) {
	out, err := m.inTransaction(func(sc mongo.SessionContext) (interface{}, error) {
		cursor, err := m.coll.Find(sc, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return nil, err
		}
		defer cursor.Close(sc)

		var rows []domain.Article
		for cursor.Next(sc) {
			var row mongoRow
			if err := cursor.Decode(&row); err != nil {
				return nil, fmt.Errorf("decode article: %w", err)
			}
			rows = append(rows, row.Article)
		}
		return rows, cursor.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	return out.([]domain.Article), nil
}

func (m *mongoStore) Count() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	n, err := m.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return int(n), nil
}

func (m *mongoStore) inTransaction(fn func(mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	sess, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	return sess.WithTransaction(ctx, fn, txnOpts)
}
