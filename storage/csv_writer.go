package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"domus-ia/models"
)

var rejectHeader = []string{"batch", "reason", "title", "price", "source_site", "rejected_at"}

// RejectWriter appends records dropped by the pipeline to a CSV file.
// It is safe for concurrent use.
type RejectWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewRejectWriter opens (or creates) the CSV file at path for appending and
// writes the header row when the file is new. Intermediate directories are
// created automatically.
func NewRejectWriter(path string) (*RejectWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(rejectHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &RejectWriter{file: f, writer: w}, nil
}

// Reject writes one dropped record.
func (c *RejectWriter) Reject(batchSeq int, reason string, rec models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{
		strconv.Itoa(batchSeq),
		reason,
		rec.Text(models.FieldTitle),
		rec.Text(models.FieldPrice),
		rec.Text(models.FieldSourceSite),
		time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *RejectWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
