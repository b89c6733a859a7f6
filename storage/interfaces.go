package storage

import (
	"context"

	"domus-ia/models"
)

// BatchWriter is the interface any listing store must satisfy for ingestion.
// WriteBatch never fails as a whole: problems are reported in the result.
type BatchWriter interface {
	WriteBatch(ctx context.Context, batch models.Batch) models.BatchResult
}

// RecordWriter persists records one at a time, e.g. into an export file.
type RecordWriter interface {
	Write(rec any) error
	Close() error
}

// RejectSink receives records dropped before reaching the store.
type RejectSink interface {
	Reject(batchSeq int, reason string, rec models.Record) error
}

// RunRecorder keeps a history of ingestion runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary models.RunSummary) error
	Close() error
}
