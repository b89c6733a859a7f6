package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"domus-ia/models"
	"domus-ia/utils"
)

// URLIndexName is the name of the unique index on the natural key.
const URLIndexName = "url_unique"

// Server codes meaning an equivalent index is already there.
const (
	codeIndexAlreadyExists    = 68
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// IndexCreator is the part of mongo.IndexView EnsureIndexes needs.
type IndexCreator interface {
	CreateOne(ctx context.Context, model mongo.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

// EnsureIndexes makes sure listings are unique by url. It is safe to call on
// every start. An index that already exists is not an error. Any other
// failure is logged as a warning and returned; callers may carry on, in which
// case duplicate urls surface later as write errors.
func EnsureIndexes(ctx context.Context, idx IndexCreator, logger *utils.Logger) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: models.FieldURL, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(URLIndexName),
	}

	name, err := idx.CreateOne(ctx, model)
	switch {
	case err == nil:
		logger.Info("[index] Unique index %q on url verified", name)
		return nil
	case indexAlreadyExists(err):
		logger.Info("[index] An index on url already exists: %v", err)
		return nil
	case mongo.IsDuplicateKeyError(err):
		logger.Warn("[index] Collection already holds duplicate urls, unique index not created: %v", err)
	default:
		logger.Warn("[index] Could not create unique index on url: %v", err)
	}
	return fmt.Errorf("mongo: ensure url index: %w", err)
}

func indexAlreadyExists(err error) bool {
	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	switch cmdErr.Code {
	case codeIndexAlreadyExists, codeIndexOptionsConflict, codeIndexKeySpecsConflict:
		return true
	}
	return false
}
