package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"domus-ia/models"
	"domus-ia/storage"
	"domus-ia/utils"
)

// CombineSummary describes one combine pass.
type CombineSummary struct {
	Files      int
	BadFiles   int
	Records    int
	Duplicates int
	Output     string
}

// Combine concatenates every *.json export in dir into a single JSON array
// at out, one record at a time. Files are read in name order and out itself
// is never read. A file that fails to parse contributes the records read
// before the failure. With dedup, only the last record for each url is kept,
// the same record ingestion would leave stored; this costs a first pass that
// counts urls.
func Combine(ctx context.Context, dir, out string, dedup bool, logger *utils.Logger) (CombineSummary, error) {
	summary := CombineSummary{Output: out}

	files, err := exportFiles(dir, out)
	if err != nil {
		return summary, err
	}
	if len(files) == 0 {
		logger.Warn("[combine] No JSON files found in %s", dir)
	}

	var remaining map[string]int
	if dedup {
		if remaining, err = countURLs(ctx, files); err != nil {
			return summary, err
		}
		logger.Info("[combine] %d distinct urls across %d files", len(remaining), len(files))
	}

	w, err := storage.NewJSONArrayWriter(out)
	if err != nil {
		return summary, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return summary, err
		}

		n, dups, err := appendFile(path, w, remaining)
		summary.Files++
		summary.Records += n
		summary.Duplicates += dups

		var perr *ParseError
		switch {
		case err == nil:
			logger.Info("[combine] %s: %d records", filepath.Base(path), n)
		case errors.As(err, &perr):
			summary.BadFiles++
			logger.Warn("[combine] %s: kept %d records, rest skipped: %v", filepath.Base(path), n, perr.Err)
		default:
			_ = w.Close()
			return summary, err
		}
	}

	if err := w.Close(); err != nil {
		return summary, err
	}

	logger.Info("[combine] Wrote %d records from %d files to %s (%d duplicates dropped, %d files with errors)",
		summary.Records, summary.Files, out, summary.Duplicates, summary.BadFiles)
	return summary, nil
}

// countURLs returns how many times each url occurs across files. Parse
// errors end a file early, exactly as the writing pass will.
func countURLs(ctx context.Context, files []string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := eachRecord(path, func(rec models.Record) error {
			if url, ok := rec.URL(); ok {
				counts[url]++
			}
			return nil
		})
		var perr *ParseError
		if err != nil && !errors.As(err, &perr) {
			return nil, err
		}
	}
	return counts, nil
}

func exportFiles(dir, out string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("combine: read dir %s: %w", dir, err)
	}

	outAbs, _ := filepath.Abs(out)

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if abs, _ := filepath.Abs(path); abs == outAbs {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// appendFile copies the records of path into w. When remaining is set, a
// record is written only at the last occurrence of its url.
func appendFile(path string, w *storage.JSONArrayWriter, remaining map[string]int) (written, dups int, err error) {
	err = eachRecord(path, func(rec models.Record) error {
		if remaining != nil {
			if url, ok := rec.URL(); ok {
				remaining[url]--
				if remaining[url] > 0 {
					dups++
					return nil
				}
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
		written++
		return nil
	})
	return written, dups, err
}

func eachRecord(path string, fn func(models.Record) error) error {
	dec, err := OpenDecoder(path)
	if err != nil {
		return err
	}
	defer dec.Close()

	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
