package models

import "time"

// Batch is a bounded, ordered slice of records handed from the batcher to a
// writer. Seq is 1-based and follows input order.
type Batch struct {
	Seq     int
	Records []Record
}

// BatchResult is what one writer reports for one batch.
type BatchResult struct {
	Seq        int
	Attempted  int // write operations sent to the store
	Upserted   int // documents created
	Modified   int // existing documents replaced with different content
	Matched    int // existing documents matched, changed or not
	Failed     int // operations the store rejected
	Dropped    int // records without a url, never sent
	Superseded int // earlier duplicates of a url within the same batch
	Err        error
	Duration   time.Duration
}

// Succeeded is the number of operations that had a net effect on the store.
func (r BatchResult) Succeeded() int {
	return r.Upserted + r.Modified
}

// Run statuses recorded in RunSummary.Status.
const (
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// RunSummary aggregates an ingestion run over one source file.
type RunSummary struct {
	SourceFile    string
	StartedAt     time.Time
	FinishedAt    time.Time
	Records       int
	Batches       int
	FailedBatches int
	Attempted     int
	Upserted      int
	Modified      int
	Matched       int
	Failed        int
	Dropped       int
	Superseded    int
	Status        string
	Error         string
}

// Add folds one batch result into the summary.
func (s *RunSummary) Add(r BatchResult) {
	s.Batches++
	s.Attempted += r.Attempted
	s.Upserted += r.Upserted
	s.Modified += r.Modified
	s.Matched += r.Matched
	s.Failed += r.Failed
	s.Dropped += r.Dropped
	s.Superseded += r.Superseded
	if r.Err != nil {
		s.FailedBatches++
	}
}

// Succeeded is the total of created plus modified documents across the run.
func (s RunSummary) Succeeded() int {
	return s.Upserted + s.Modified
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
