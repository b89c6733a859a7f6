package ingest

import "domus-ia/models"

// DefaultBatchSize amortises the per-call cost of a bulk write while keeping
// a single request small enough to resend cheaply.
const DefaultBatchSize = 2000

// Batcher groups a record stream into fixed-size batches.
type Batcher struct {
	src     RecordSource
	size    int
	seq     int
	pending error
}

// NewBatcher wraps src. A size below 1 falls back to DefaultBatchSize.
func NewBatcher(src RecordSource, size int) *Batcher {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Batcher{src: src, size: size}
}

// Next returns the next batch, io.EOF once the source is exhausted, or the
// source's error. When the source fails mid-stream the records read so far
// come out as a final batch and the error is returned on the following call.
// An empty batch is never returned.
func (b *Batcher) Next() (models.Batch, error) {
	if b.pending != nil {
		return models.Batch{}, b.pending
	}

	records := make([]models.Record, 0, b.size)
	for len(records) < b.size {
		rec, err := b.src.Next()
		if err != nil {
			b.pending = err
			break
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return models.Batch{}, b.pending
	}
	b.seq++
	return models.Batch{Seq: b.seq, Records: records}, nil
}

// Size is the target batch size.
func (b *Batcher) Size() int { return b.size }

var _ RecordSource = (*Decoder)(nil)
