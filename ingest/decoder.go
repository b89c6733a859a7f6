// Package ingest streams listing exports into the document store: a
// streaming decoder, a batcher and the coordinator that fans batches out to
// a bounded pool of writers.
package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"domus-ia/models"
)

const readBufferSize = 64 * 1024

// Numbers decode as json.Number so integers keep their exact value and are
// stored as integers.
var streamConfig = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// ParseError reports a malformed or truncated export. Records yielded
// before the error remain valid.
type ParseError struct {
	Path    string
	Records int
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ingest: parse %s after %d records: %v", e.Path, e.Records, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RecordSource yields records one at a time and returns io.EOF when done.
type RecordSource interface {
	Next() (models.Record, error)
}

// Decoder reads a JSON array of listings one element at a time. Elements
// that are themselves arrays are flattened one level. A Decoder makes a
// single forward pass; open a new one to read the file again.
type Decoder struct {
	path    string
	file    *os.File
	iter    *jsoniter.Iterator
	started bool
	nested  bool
	done    bool
	err     error
	records int
	skipped int
}

// OpenDecoder opens path for streaming. A missing file is reported here,
// before any record is read, and satisfies errors.Is(err, fs.ErrNotExist).
func OpenDecoder(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	return newDecoder(path, f), nil
}

func newDecoder(path string, f *os.File) *Decoder {
	return &Decoder{
		path: path,
		file: f,
		iter: jsoniter.Parse(streamConfig, bufio.NewReaderSize(f, readBufferSize), readBufferSize),
	}
}

// Next returns the next listing object. It returns io.EOF once the top-level
// array is closed and a *ParseError if the input is not a well-formed array.
func (d *Decoder) Next() (models.Record, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.done {
		return nil, io.EOF
	}

	if !d.started {
		d.started = true
		if next := d.iter.WhatIsNext(); next != jsoniter.ArrayValue {
			return nil, d.fail(errors.New("top-level value is not an array"))
		}
	}

	for {
		if d.nested {
			if d.iter.ReadArray() {
				if rec, ok := d.readElement(); ok {
					return rec, nil
				}
				if d.err != nil {
					return nil, d.err
				}
				continue
			}
			if err := d.checkIter(); err != nil {
				return nil, err
			}
			d.nested = false
		}

		if !d.iter.ReadArray() {
			if err := d.checkIter(); err != nil {
				return nil, err
			}
			if err := d.checkTrailing(); err != nil {
				return nil, err
			}
			d.done = true
			return nil, io.EOF
		}

		if d.iter.WhatIsNext() == jsoniter.ArrayValue {
			d.nested = true
			continue
		}
		if rec, ok := d.readElement(); ok {
			return rec, nil
		}
		if d.err != nil {
			return nil, d.err
		}
	}
}

// readElement decodes the element under the cursor. Non-object values are
// skipped; so are arrays nested deeper than one level.
func (d *Decoder) readElement() (models.Record, bool) {
	if d.iter.WhatIsNext() != jsoniter.ObjectValue {
		d.iter.Skip()
		if err := d.checkIter(); err != nil {
			return nil, false
		}
		d.skipped++
		return nil, false
	}

	var rec models.Record
	d.iter.ReadVal(&rec)
	if err := d.checkIter(); err != nil {
		return nil, false
	}
	d.records++
	return rec, true
}

func (d *Decoder) checkIter() error {
	if d.iter.Error == nil {
		return nil
	}
	err := d.iter.Error
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return d.fail(err)
}

// checkTrailing requires that only whitespace follows the top-level array.
func (d *Decoder) checkTrailing() error {
	next := d.iter.WhatIsNext()
	switch {
	case errors.Is(d.iter.Error, io.EOF):
		return nil
	case d.iter.Error != nil:
		return d.fail(d.iter.Error)
	case next == jsoniter.ArrayValue:
		return d.fail(errors.New("more than one top-level value"))
	default:
		return d.fail(errors.New("unexpected data after top-level array"))
	}
}

func (d *Decoder) fail(err error) error {
	d.err = &ParseError{Path: d.path, Records: d.records, Err: err}
	return d.err
}

// Records returns how many listing objects have been yielded so far.
func (d *Decoder) Records() int { return d.records }

// Skipped returns how many non-object elements were ignored.
func (d *Decoder) Skipped() int { return d.skipped }

// Close releases the underlying file.
func (d *Decoder) Close() error {
	return d.file.Close()
}
