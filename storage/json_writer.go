package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// exportJSON writes UTF-8 as is and keeps map keys in a stable order.
var exportJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// JSONArrayWriter streams values into a file as one JSON array, so exports
// of any size are written without holding them in memory. It is safe for
// concurrent use. The array is only well formed after Close.
type JSONArrayWriter struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	stream *jsoniter.Stream
	count  int
	closed bool
}

// NewJSONArrayWriter creates (or truncates) the file at path and opens the
// array. Intermediate directories are created automatically.
func NewJSONArrayWriter(path string) (*JSONArrayWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("json: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("json: create file %q: %w", path, err)
	}

	buf := bufio.NewWriterSize(f, 64*1024)
	stream := exportJSON.BorrowStream(buf)
	stream.WriteArrayStart()

	return &JSONArrayWriter{file: f, buf: buf, stream: stream}, nil
}

// Write appends one element.
func (j *JSONArrayWriter) Write(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("json: write after close")
	}
	if j.count > 0 {
		j.stream.WriteMore()
	}
	j.stream.WriteRaw("\n  ")
	j.stream.WriteVal(v)
	if j.stream.Error != nil {
		return fmt.Errorf("json: encode element %d: %w", j.count, j.stream.Error)
	}
	j.count++

	if j.stream.Buffered() > 32*1024 {
		if err := j.stream.Flush(); err != nil {
			return fmt.Errorf("json: flush: %w", err)
		}
	}
	return nil
}

// Count returns how many elements have been written.
func (j *JSONArrayWriter) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close terminates the array and closes the file.
func (j *JSONArrayWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if j.count > 0 {
		j.stream.WriteRaw("\n")
	}
	j.stream.WriteArrayEnd()
	j.stream.WriteRaw("\n")

	flushErr := j.stream.Flush()
	if flushErr == nil {
		flushErr = j.buf.Flush()
	}
	exportJSON.ReturnStream(j.stream)

	closeErr := j.file.Close()
	if flushErr != nil {
		return fmt.Errorf("json: flush: %w", flushErr)
	}
	return closeErr
}

var _ RecordWriter = (*JSONArrayWriter)(nil)
