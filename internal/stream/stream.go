// Package stream reads point streams from CSV and JSONL files.
package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformed is wrapped by every record that cannot be parsed. Readers
// stay usable after returning it.
var ErrMalformed = errors.New("malformed record")

// Record is one point of a stream. Timestamp is nil when the source does not
// carry one; Label holds an optional class column that is never clustered.
type Record struct {
	Values    []float64
	Timestamp *uint64
	Label     string
	Line      int
}

// Reader yields records until io.EOF.
type Reader interface {
	Next() (Record, error)
}

type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a format name. An empty name selects by extension
// of path.
func ParseFormat(name, path string) (Format, error) {
	switch strings.ToLower(name) {
	case "csv":
		return FormatCSV, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "":
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".ndjson", ".json":
			return FormatJSONL, nil
		}
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown format %q", name)
}

// NewReader returns a reader for format over r.
func NewReader(r io.Reader, format Format) (Reader, error) {
	switch format {
	case FormatCSV:
		return NewCSVReader(r), nil
	case FormatJSONL:
		return NewJSONLReader(r), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// File is a Reader over an open file.
type File struct {
	Reader
	f *os.File
}

// Open opens path and returns a reader for format.
func Open(path string, format Format) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	r, err := NewReader(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Reader: r, f: f}, nil
}

func (f *File) Close() error { return f.f.Close() }

// ReadAll drains r. Malformed records are skipped and counted.
func ReadAll(r Reader) ([]Record, int, error) {
	var (
		out     []Record
		skipped int
	)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, skipped, nil
		}
		if errors.Is(err, ErrMalformed) {
			skipped++
			continue
		}
		if err != nil {
			return out, skipped, err
		}
		out = append(out, rec)
	}
}
