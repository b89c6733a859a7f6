package ingest

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"domus-ia/models"
)

// sliceSource replays records and then returns err (io.EOF when nil).
type sliceSource struct {
	records []models.Record
	err     error
	pos     int
}

func (s *sliceSource) Next() (models.Record, error) {
	if s.pos < len(s.records) {
		s.pos++
		return s.records[s.pos-1], nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func readAll(t *testing.T, path string) ([]models.Record, error) {
	t.Helper()
	dec, err := OpenDecoder(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []models.Record
	for {
		rec, err := dec.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
