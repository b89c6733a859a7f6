package storage

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"domus-ia/models"
)

// MemoryCollection is an in-process stand-in for the listings collection.
// It understands the replace-by-url upserts MongoWriter sends and reports
// counts the way the server does. Used for dry runs.
type MemoryCollection struct {
	mu   sync.Mutex
	docs map[string]models.Record
}

func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{docs: make(map[string]models.Record)}
}

// BulkWrite applies every write in order. A write it cannot interpret is
// reported as a write error and the rest still run.
func (m *MemoryCollection) BulkWrite(_ context.Context, writes []mongo.WriteModel, _ ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &mongo.BulkWriteResult{UpsertedIDs: make(map[int64]interface{})}
	var bwe mongo.BulkWriteException

	for i, w := range writes {
		url, doc, err := replaceTarget(w)
		if err != nil {
			bwe.WriteErrors = append(bwe.WriteErrors, mongo.BulkWriteError{
				WriteError: mongo.WriteError{Index: i, Code: 2, Message: err.Error()},
				Request:    w,
			})
			continue
		}

		old, exists := m.docs[url]
		switch {
		case !exists:
			res.UpsertedCount++
			res.UpsertedIDs[int64(i)] = url
		case reflect.DeepEqual(old, doc):
			res.MatchedCount++
		default:
			res.MatchedCount++
			res.ModifiedCount++
		}
		m.docs[url] = doc
	}

	if len(bwe.WriteErrors) > 0 {
		return res, bwe
	}
	return res, nil
}

// Len returns the number of stored listings.
func (m *MemoryCollection) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// Get returns the listing stored under url.
func (m *MemoryCollection) Get(url string) (models.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[url]
	return doc, ok
}

func replaceTarget(w mongo.WriteModel) (string, models.Record, error) {
	rm, ok := w.(*mongo.ReplaceOneModel)
	if !ok {
		return "", nil, fmt.Errorf("unsupported write model %T", w)
	}

	filter, ok := rm.Filter.(bson.D)
	if !ok || len(filter) != 1 || filter[0].Key != models.FieldURL {
		return "", nil, fmt.Errorf("filter must select by %s", models.FieldURL)
	}
	url, ok := filter[0].Value.(string)
	if !ok {
		return "", nil, fmt.Errorf("filter %s must be a string", models.FieldURL)
	}

	rec, ok := rm.Replacement.(models.Record)
	if !ok {
		return "", nil, fmt.Errorf("unsupported replacement %T", rm.Replacement)
	}

	doc := make(models.Record, len(rec))
	for k, v := range rec {
		doc[k] = v
	}
	return url, doc, nil
}

var _ BulkCollection = (*MemoryCollection)(nil)
