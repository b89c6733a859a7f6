package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"domus-ia/models"
	"domus-ia/utils"
)

// BulkCollection is the part of *mongo.Collection the writer needs.
type BulkCollection interface {
	BulkWrite(ctx context.Context, writes []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// MongoWriter upserts batches of listings keyed by url.
type MongoWriter struct {
	coll    BulkCollection
	logger  *utils.Logger
	rejects RejectSink
	now     func() time.Time
}

type WriterOption func(*MongoWriter)

// WithRejects sends records dropped for a missing url to sink.
func WithRejects(sink RejectSink) WriterOption {
	return func(w *MongoWriter) { w.rejects = sink }
}

// WithClock overrides the source of scraped_at timestamps.
func WithClock(now func() time.Time) WriterOption {
	return func(w *MongoWriter) { w.now = now }
}

func NewMongoWriter(coll BulkCollection, logger *utils.Logger, opts ...WriterOption) *MongoWriter {
	w := &MongoWriter{coll: coll, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteBatch replaces or inserts every record of batch by url in one
// unordered bulk call. Individual operation failures do not stop the rest of
// the batch; a failure of the whole call is logged and reported with zero
// successes.
func (w *MongoWriter) WriteBatch(ctx context.Context, batch models.Batch) models.BatchResult {
	start := time.Now()
	res := models.BatchResult{Seq: batch.Seq}

	ops := w.buildOps(batch, &res)
	if len(ops) == 0 {
		res.Duration = time.Since(start)
		return res
	}
	res.Attempted = len(ops)

	out, err := w.coll.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false))

	var bwe mongo.BulkWriteException
	switch {
	case err == nil:
	case errors.As(err, &bwe):
		res.Failed = len(bwe.WriteErrors)
		if res.Failed > 0 {
			w.logger.Warn("[mongo] Batch %d: %d of %d operations failed (first: %s)",
				batch.Seq, res.Failed, res.Attempted, bwe.WriteErrors[0].Message)
		}
		if bwe.WriteConcernError != nil {
			w.logger.Warn("[mongo] Batch %d: write concern error: %s", batch.Seq, bwe.WriteConcernError.Message)
		}
	default:
		w.logger.Error("[mongo] Batch %d: bulk write of %d operations failed: %v", batch.Seq, res.Attempted, err)
		res.Failed = res.Attempted
		res.Err = err
		out = nil
	}

	if out != nil {
		res.Upserted = int(out.UpsertedCount)
		res.Modified = int(out.ModifiedCount)
		res.Matched = int(out.MatchedCount)
	}
	res.Duration = time.Since(start)
	return res
}

// buildOps turns a batch into replace-by-url upserts. Records without a url
// are dropped; when a url repeats within the batch only its last record is
// written. Every written record gets the same scraped_at.
func (w *MongoWriter) buildOps(batch models.Batch, res *models.BatchResult) []mongo.WriteModel {
	scrapedAt := w.now().UTC()

	order := make([]string, 0, len(batch.Records))
	latest := make(map[string]models.Record, len(batch.Records))

	for _, rec := range batch.Records {
		url, ok := rec.URL()
		if !ok {
			res.Dropped++
			w.reject(batch.Seq, rec)
			continue
		}
		if _, seen := latest[url]; seen {
			res.Superseded++
		} else {
			order = append(order, url)
		}
		rec[models.FieldScrapedAt] = scrapedAt
		latest[url] = rec
	}

	ops := make([]mongo.WriteModel, 0, len(order))
	for _, url := range order {
		ops = append(ops, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: models.FieldURL, Value: url}}).
			SetReplacement(latest[url]).
			SetUpsert(true))
	}
	return ops
}

func (w *MongoWriter) reject(seq int, rec models.Record) {
	w.logger.Debug("[mongo] Batch %d: dropping record without url: %q", seq, rec.Text(models.FieldTitle))
	if w.rejects == nil {
		return
	}
	if err := w.rejects.Reject(seq, "missing url", rec); err != nil {
		w.logger.Warn("[mongo] Could not record rejected listing: %v", err)
	}
}
