package ingest

import (
	"errors"
	"io"
	"testing"

	"domus-ia/models"
)

func records(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{"n": i}
	}
	return out
}

func drain(t *testing.T, b *Batcher) ([]models.Batch, error) {
	t.Helper()
	var out []models.Batch
	for {
		batch, err := b.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, batch)
	}
}

func TestBatcherSizes(t *testing.T) {
	tests := []struct {
		records, size int
		want          []int
	}{
		{0, 3, nil},
		{1, 3, []int{1}},
		{3, 3, []int{3}},
		{7, 3, []int{3, 3, 1}},
		{9, 3, []int{3, 3, 3}},
		{5, 1, []int{1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		b := NewBatcher(&sliceSource{records: records(tt.records)}, tt.size)
		batches, err := drain(t, b)
		if err != nil {
			t.Fatalf("%d/%d: %v", tt.records, tt.size, err)
		}

		if len(batches) != len(tt.want) {
			t.Errorf("%d records by %d: got %d batches, want %d", tt.records, tt.size, len(batches), len(tt.want))
			continue
		}
		next := 0
		for i, batch := range batches {
			if len(batch.Records) != tt.want[i] {
				t.Errorf("%d records by %d: batch %d has %d records, want %d",
					tt.records, tt.size, i, len(batch.Records), tt.want[i])
			}
			if batch.Seq != i+1 {
				t.Errorf("batch %d: seq %d", i, batch.Seq)
			}
			for _, r := range batch.Records {
				if r["n"] != next {
					t.Errorf("order: got %v, want %d", r["n"], next)
				}
				next++
			}
		}
	}
}

func TestBatcherDefaultSize(t *testing.T) {
	if got := NewBatcher(&sliceSource{}, 0).Size(); got != DefaultBatchSize {
		t.Errorf("size: got %d, want %d", got, DefaultBatchSize)
	}
}

func TestBatcherFlushesBeforeSourceError(t *testing.T) {
	boom := errors.New("truncated")
	b := NewBatcher(&sliceSource{records: records(5), err: boom}, 2)

	batches, err := drain(t, b)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if len(batches) != 3 || len(batches[2].Records) != 1 {
		t.Fatalf("got %d batches, want 2+2+1", len(batches))
	}

	if _, err := b.Next(); !errors.Is(err, boom) {
		t.Errorf("error should repeat, got %v", err)
	}
}

func TestBatcherSourceErrorOnBoundary(t *testing.T) {
	boom := errors.New("bad")
	b := NewBatcher(&sliceSource{records: records(4), err: boom}, 2)

	batches, err := drain(t, b)
	if !errors.Is(err, boom) || len(batches) != 2 {
		t.Errorf("got %d batches and %v; want 2 and %v", len(batches), err, boom)
	}
}
