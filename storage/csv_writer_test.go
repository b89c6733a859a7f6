package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"domus-ia/models"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return rows
}

func TestRejectWriterWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rejects.csv")

	for run := 0; run < 2; run++ {
		w, err := NewRejectWriter(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		rec := models.Record{"title": "Villa, Anfa", "price": "2 500 000 DH", "source_site": "mubawab"}
		if err := w.Reject(run+1, "missing url", rec); err != nil {
			t.Fatalf("reject: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want header + 2", len(rows))
	}
	if rows[0][0] != "batch" || rows[0][5] != "rejected_at" {
		t.Errorf("header: got %v", rows[0])
	}
	if rows[2][0] != "2" || rows[2][1] != "missing url" || rows[2][2] != "Villa, Anfa" || rows[2][4] != "mubawab" {
		t.Errorf("row: got %v", rows[2])
	}
}
