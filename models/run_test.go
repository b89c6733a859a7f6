package models

import (
	"errors"
	"testing"
)

func TestRunSummaryAdd(t *testing.T) {
	var s RunSummary
	s.Add(BatchResult{Seq: 1, Attempted: 10, Upserted: 6, Modified: 3, Matched: 4, Dropped: 2})
	s.Add(BatchResult{Seq: 2, Attempted: 5, Upserted: 1, Failed: 4, Superseded: 1})
	s.Add(BatchResult{Seq: 3, Attempted: 7, Failed: 7, Err: errors.New("connection reset")})

	if s.Batches != 3 {
		t.Errorf("Batches: got %d, want 3", s.Batches)
	}
	if s.FailedBatches != 1 {
		t.Errorf("FailedBatches: got %d, want 1", s.FailedBatches)
	}
	if s.Succeeded() != 10 {
		t.Errorf("Succeeded: got %d, want 10", s.Succeeded())
	}
	if s.Failed != 11 {
		t.Errorf("Failed: got %d, want 11", s.Failed)
	}
	if s.Dropped != 2 || s.Superseded != 1 {
		t.Errorf("Dropped/Superseded: got %d/%d, want 2/1", s.Dropped, s.Superseded)
	}
}

func TestRecordURL(t *testing.T) {
	tests := []struct {
		rec  Record
		want string
		ok   bool
	}{
		{Record{"url": "https://www.mubawab.ma/fr/a/1"}, "https://www.mubawab.ma/fr/a/1", true},
		{Record{"url": "   "}, "", false},
		{Record{"url": 42}, "", false},
		{Record{"url": nil}, "", false},
		{Record{"title": "no url"}, "", false},
	}

	for _, tt := range tests {
		got, ok := tt.rec.URL()
		if got != tt.want || ok != tt.ok {
			t.Errorf("URL(%v) = %q, %v; want %q, %v", tt.rec, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRecordText(t *testing.T) {
	r := Record{"title": "Villa", "rooms": float64(3), "images": nil}
	if got := r.Text("title"); got != "Villa" {
		t.Errorf("Text(title) = %q; want %q", got, "Villa")
	}
	if got := r.Text("rooms"); got != "3" {
		t.Errorf("Text(rooms) = %q; want %q", got, "3")
	}
	if got := r.Text("images"); got != "" {
		t.Errorf("Text(images) = %q; want empty", got)
	}
}
