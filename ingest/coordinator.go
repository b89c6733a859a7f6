package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"domus-ia/metrics"
	"domus-ia/models"
	"domus-ia/storage"
	"domus-ia/utils"
)

// DefaultWorkers is the number of concurrent bulk writers per run.
const DefaultWorkers = 4

// State is the lifecycle of a Coordinator run.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Options tune a run. Zero values select the defaults.
type Options struct {
	BatchSize int
	Workers   int
}

// Coordinator drives an ingestion run: it reads batches on one goroutine and
// hands them to a fixed pool of writers, so at most Workers batches are held
// in memory besides the one being assembled.
type Coordinator struct {
	writer storage.BatchWriter
	opts   Options
	logger *utils.Logger
	state  atomic.Int32
}

func NewCoordinator(writer storage.BatchWriter, opts Options, logger *utils.Logger) *Coordinator {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	return &Coordinator{writer: writer, opts: opts, logger: logger}
}

// State reports where the current or last run is.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("[ingest] state → %s", s)
}

// tally is the single place batch results are combined.
type tally struct {
	mu      sync.Mutex
	summary *models.RunSummary
}

func (t *tally) fold(r models.BatchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Add(r)
}

// Run ingests the JSON array at path. A missing file is returned before
// anything is written. A parse error or cancellation stops reading; batches
// already submitted still complete and are counted, and the error is
// returned together with the summary.
func (c *Coordinator) Run(ctx context.Context, path string) (models.RunSummary, error) {
	summary := models.RunSummary{SourceFile: path, StartedAt: time.Now().UTC()}
	c.setState(StateIdle)

	dec, err := OpenDecoder(path)
	if err != nil {
		summary.FinishedAt = time.Now().UTC()
		summary.Status = models.RunFailed
		summary.Error = err.Error()
		return summary, err
	}
	defer dec.Close()

	c.logger.Info("[ingest] Starting import from %s (batch size %d, %d writers)",
		path, c.opts.BatchSize, c.opts.Workers)

	runErr := c.stream(ctx, NewBatcher(dec, c.opts.BatchSize), &summary)

	summary.Records = dec.Records()
	summary.FinishedAt = time.Now().UTC()
	summary.Status = runStatus(summary, runErr)
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	if skipped := dec.Skipped(); skipped > 0 {
		c.logger.Warn("[ingest] Ignored %d array elements that were not listing objects", skipped)
	}
	if summary.Dropped > 0 {
		c.logger.Warn("[ingest] Dropped %d records without a url", summary.Dropped)
	}
	if summary.Failed > 0 {
		c.logger.Warn("[ingest] %d write operations failed across %d batches (%d batches lost entirely)",
			summary.Failed, summary.Batches, summary.FailedBatches)
	}
	c.logger.Info("[ingest] Import finished in %s: total successful operations: %d (created %d, modified %d)",
		summary.Duration().Round(time.Millisecond), summary.Succeeded(), summary.Upserted, summary.Modified)

	return summary, runErr
}

func (c *Coordinator) stream(ctx context.Context, batcher *Batcher, summary *models.RunSummary) error {
	t := &tally{summary: summary}
	pool := utils.NewWorkerPool(c.opts.Workers)

	// In-flight writes finish even if ctx is cancelled; only reading stops.
	writeCtx := context.WithoutCancel(ctx)

	c.setState(StateStreaming)
	var streamErr error
	for {
		if err := ctx.Err(); err != nil {
			streamErr = err
			break
		}

		batch, err := batcher.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			c.logger.Error("[ingest] Stopped reading %s: %v", summary.SourceFile, err)
			break
		}

		metrics.InflightBatches.Inc()
		err = pool.SubmitContext(ctx, func() {
			defer metrics.InflightBatches.Dec()
			res := c.writer.WriteBatch(writeCtx, batch)
			res.Seq = batch.Seq
			metrics.ObserveBatch(res)
			t.fold(res)
			c.logger.Debug("[ingest] Batch %d done: %d records, %d created, %d modified, %d failed in %s",
				batch.Seq, len(batch.Records), res.Upserted, res.Modified, res.Failed, res.Duration)
		})
		if err != nil {
			metrics.InflightBatches.Dec()
			streamErr = err
			break
		}
		c.logger.Debug("[ingest] Batch %d queued (%d/%d writers busy)", batch.Seq, pool.Running(), pool.Size())
	}

	c.setState(StateDraining)
	pool.Wait()
	c.setState(StateDone)
	return streamErr
}

func runStatus(s models.RunSummary, err error) string {
	switch {
	case err != nil && s.Succeeded() == 0:
		return models.RunFailed
	case err != nil || s.Failed > 0:
		return models.RunPartial
	default:
		return models.RunCompleted
	}
}
