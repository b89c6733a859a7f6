package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"domus-ia/models"
)

func TestBatchStatus(t *testing.T) {
	tests := []struct {
		name string
		in   models.BatchResult
		want string
	}{
		{"clean", models.BatchResult{Upserted: 10}, BatchOK},
		{"write errors", models.BatchResult{Upserted: 8, Failed: 2}, BatchPartial},
		{"connection lost", models.BatchResult{Failed: 10, Err: errors.New("eof")}, BatchFailed},
		{"empty after drops", models.BatchResult{Dropped: 3}, BatchOK},
	}

	for _, tt := range tests {
		if got := BatchStatus(tt.in); got != tt.want {
			t.Errorf("%s: BatchStatus = %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestObserveBatch(t *testing.T) {
	okBefore := testutil.ToFloat64(BatchesTotal.WithLabelValues(BatchOK))
	upBefore := testutil.ToFloat64(RecordsTotal.WithLabelValues("upserted"))
	dropBefore := testutil.ToFloat64(RecordsTotal.WithLabelValues("dropped"))

	ObserveBatch(models.BatchResult{Upserted: 7, Modified: 2, Dropped: 1, Duration: 30 * time.Millisecond})

	if got := testutil.ToFloat64(BatchesTotal.WithLabelValues(BatchOK)) - okBefore; got != 1 {
		t.Errorf("ok batches delta: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(RecordsTotal.WithLabelValues("upserted")) - upBefore; got != 7 {
		t.Errorf("upserted delta: got %v, want 7", got)
	}
	if got := testutil.ToFloat64(RecordsTotal.WithLabelValues("dropped")) - dropBefore; got != 1 {
		t.Errorf("dropped delta: got %v, want 1", got)
	}
}
