package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"domus-ia/models"
	"domus-ia/utils"
)

func TestCombineMergesFilesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_avito.json", `[{"url":"c"},{"url":"a","source_site":"avito"}]`)
	writeFile(t, dir, "a_mubawab.json", `[[{"url":"a"}],[{"url":"b"}]]`)
	writeFile(t, dir, "notes.txt", `ignored`)
	out := filepath.Join(dir, "combined_data.json")
	writeFile(t, dir, "combined_data.json", `[{"url":"stale"}]`)

	summary, err := Combine(context.Background(), dir, out, false, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("combine: %v", err)
	}

	if summary.Files != 2 || summary.Records != 4 || summary.Duplicates != 0 {
		t.Errorf("summary: %+v", summary)
	}
	if got := urls(t, out); !equalStrings(got, []string{"a", "b", "c", "a"}) {
		t.Errorf("got %v", got)
	}
}

func TestCombineDedupKeepsLastOccurrence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.json", `[{"url":"a","n":1},{"url":"b"}]`)
	writeFile(t, dir, "2.json", `[{"url":"a","n":2},{"title":"no url"},{"title":"no url"}]`)
	out := filepath.Join(t.TempDir(), "out", "combined.json")

	summary, err := Combine(context.Background(), dir, out, true, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if summary.Records != 4 || summary.Duplicates != 1 {
		t.Errorf("summary: %+v", summary)
	}

	recs, err := readAll(t, out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var kept []models.Record
	for _, r := range recs {
		if r.Text("url") == "a" {
			kept = append(kept, r)
		}
	}
	if len(kept) != 1 || kept[0]["n"] != json.Number("2") {
		t.Errorf("the last record for a should win, got %v", kept)
	}
	if got := urls(t, out); !equalStrings(got, []string{"b", "a", "", ""}) {
		t.Errorf("order: got %v", got)
	}
}

func TestCombineDedupMatchesIngestion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.json", `[{"url":"a","price":"1 000 DH"},{"url":"b","price":"5 DH"}]`)
	writeFile(t, dir, "2.json", `[{"url":"a","price":"1 500 DH"}]`)
	out := filepath.Join(t.TempDir(), "combined.json")

	if _, err := Combine(context.Background(), dir, out, true, utils.NewNopLogger()); err != nil {
		t.Fatalf("combine: %v", err)
	}

	fromCombined, wc := newMemoryWriter()
	if _, err := NewCoordinator(wc, Options{BatchSize: 1, Workers: 1}, utils.NewNopLogger()).Run(context.Background(), out); err != nil {
		t.Fatalf("ingest combined: %v", err)
	}
	fromRaw, wr := newMemoryWriter()
	for _, name := range []string{"1.json", "2.json"} {
		if _, err := NewCoordinator(wr, Options{BatchSize: 1, Workers: 1}, utils.NewNopLogger()).Run(context.Background(), filepath.Join(dir, name)); err != nil {
			t.Fatalf("ingest %s: %v", name, err)
		}
	}

	for _, url := range []string{"a", "b"} {
		c, _ := fromCombined.Get(url)
		r, _ := fromRaw.Get(url)
		if c["price"] != r["price"] {
			t.Errorf("%s: combined kept %v, raw ingestion kept %v", url, c["price"], r["price"])
		}
	}
}

func TestCombineKeepsRecordsBeforeParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.json", `[{"url":"a"},{"url":"b"},{"url":`)
	writeFile(t, dir, "2.json", `[{"url":"c"}]`)
	out := filepath.Join(t.TempDir(), "combined.json")

	summary, err := Combine(context.Background(), dir, out, false, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if summary.BadFiles != 1 || summary.Records != 3 {
		t.Errorf("summary: %+v", summary)
	}
	if got := urls(t, out); !equalStrings(got, []string{"a", "b", "c"}) {
		t.Errorf("got %v", got)
	}
}

func TestCombineMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")
	out := filepath.Join(t.TempDir(), "combined.json")

	if _, err := Combine(context.Background(), dir, out, false, utils.NewNopLogger()); err == nil {
		t.Error("expected an error for a missing directory")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no output should be created when the input dir is missing")
	}
}
