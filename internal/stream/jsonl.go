package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes bounds one JSONL line. Longer lines are skipped as malformed.
const maxLineBytes = 1024 * 1024

// JSONLReader reads one point per line, either a bare array [1.0, 2.0] or
// an object {"point": [...], "timestamp": 3, "label": "a"}.
type JSONLReader struct {
	r       *bufio.Reader
	line    int
	maxLine int
}

type jsonRecord struct {
	Point     []*float64 `json:"point"`
	Timestamp *uint64    `json:"timestamp"`
	Label     string     `json:"label"`
}

func NewJSONLReader(r io.Reader) *JSONLReader {
	return &JSONLReader{r: bufio.NewReader(r), maxLine: maxLineBytes}
}

func (j *JSONLReader) Next() (Record, error) {
	for {
		raw, tooLong, err := j.readLine()
		if err == io.EOF {
			return Record{}, io.EOF
		}
		if err != nil {
			return Record{}, fmt.Errorf("read jsonl: %w", err)
		}
		j.line++
		if tooLong {
			return Record{Line: j.line}, fmt.Errorf("line %d: longer than %d bytes: %w", j.line, j.maxLine, ErrMalformed)
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		return parseLine(line, j.line)
	}
}

// readLine returns the next line without its newline. A line over maxLine
// bytes is drained and reported as tooLong.
func (j *JSONLReader) readLine() ([]byte, bool, error) {
	var buf []byte
	tooLong := false
	read := false
	for {
		chunk, isPrefix, err := j.r.ReadLine()
		if err != nil {
			if err == io.EOF && read {
				return buf, tooLong, nil
			}
			return nil, false, err
		}
		read = true
		if !tooLong {
			if len(buf)+len(chunk) > j.maxLine {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return buf, tooLong, nil
		}
	}
}

func parseLine(line []byte, n int) (Record, error) {
	rec := Record{Line: n}
	var point []*float64
	if line[0] == '[' {
		if err := json.Unmarshal(line, &point); err != nil {
			return rec, fmt.Errorf("line %d: %v: %w", n, err, ErrMalformed)
		}
	} else {
		var jr jsonRecord
		if err := json.Unmarshal(line, &jr); err != nil {
			return rec, fmt.Errorf("line %d: %v: %w", n, err, ErrMalformed)
		}
		if len(jr.Point) == 0 {
			return rec, fmt.Errorf("line %d: no point: %w", n, ErrMalformed)
		}
		point = jr.Point
		rec.Timestamp = jr.Timestamp
		rec.Label = jr.Label
	}

	rec.Values = make([]float64, len(point))
	for d, v := range point {
		if v == nil {
			return rec, fmt.Errorf("line %d: coordinate %d is null: %w", n, d, ErrMalformed)
		}
		rec.Values[d] = *v
	}
	return rec, nil
}
