// Package mongo implements store.Store on MongoDB via Grove ORM. Each
// entry is one document in subledger_entries whose _id joins class and key.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/subledger/store"
)

const colEntries = "subledger_entries"

// compile-time interface check
var _ store.Store = (*Store)(nil)

type entryModel struct {
	grove.BaseModel `grove:"table:subledger_entries"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Class     int32     `grove:"class"      bson:"class"`
	Key       string    `grove:"key"        bson:"key"`
	Value     []byte    `grove:"value"      bson:"value"`
	LiveUntil int64     `grove:"live_until" bson:"live_until"`
	Archived  bool      `grove:"archived"   bson:"archived"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func docID(class store.Class, key string) string {
	return class.String() + ":" + key
}

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the lifetime index used by Purge.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.mdb.Collection(colEntries).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "live_until", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("subledger/mongo: migrate %s indexes: %w", colEntries, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, class store.Class, key string) (store.Entry, error) {
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docID(class, key)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return store.Entry{}, store.ErrNotFound
		}
		return store.Entry{}, fmt.Errorf("subledger/mongo: get %s: %w", key, err)
	}
	if m.Archived {
		return store.Entry{}, store.ErrArchived
	}
	return store.Entry{Value: m.Value, LiveUntil: uint32(m.LiveUntil)}, nil
}

// Apply upserts each mutation in order.
func (s *Store) Apply(ctx context.Context, _ uint32, muts []store.Mutation) error {
	t := time.Now().UTC()
	for _, mut := range muts {
		id := docID(mut.Class, mut.Key)
		_, err := s.mdb.NewUpdate((*entryModel)(nil)).
			Filter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$set": bson.M{
				"_id":        id,
				"class":      int32(mut.Class),
				"key":        mut.Key,
				"value":      mut.Value,
				"live_until": int64(mut.LiveUntil),
				"archived":   false,
				"updated_at": t,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("subledger/mongo: apply %s: %w", mut.Key, err)
		}
	}
	return nil
}

// Purge drops the value of every document whose lifetime ended before now
// and marks it archived. The document stays as a tombstone.
func (s *Store) Purge(ctx context.Context, now uint32) (int64, error) {
	res, err := s.mdb.Collection(colEntries).UpdateMany(ctx,
		bson.M{
			"live_until": bson.M{"$lt": int64(now)},
			"archived":   bson.M{"$ne": true},
		},
		bson.M{
			"$set":   bson.M{"archived": true, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"value": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("subledger/mongo: purge: %w", err)
	}
	return res.ModifiedCount, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
