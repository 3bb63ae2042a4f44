package stream

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVReader reads one point per row. A first row that is not numeric is a
// header; header columns named timestamp (or t) and label (or class) are
// split off the point. Lines starting with # are comments.
type CSVReader struct {
	r *csv.Reader

	started  bool
	tsCol    int
	labelCol int
}

func NewCSVReader(r io.Reader) *CSVReader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &CSVReader{r: cr, tsCol: -1, labelCol: -1}
}

func (c *CSVReader) Next() (Record, error) {
	for {
		row, err := c.r.Read()
		if err == io.EOF {
			return Record{}, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return Record{Line: perr.Line}, fmt.Errorf("line %d: %v: %w", perr.Line, perr.Err, ErrMalformed)
			}
			return Record{}, fmt.Errorf("read csv: %w", err)
		}
		if !c.started {
			c.started = true
			if c.header(row) {
				continue
			}
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		line, _ := c.r.FieldPos(0)
		return c.record(row, line)
	}
}

// header inspects the first row and reports whether it is a header.
func (c *CSVReader) header(row []string) bool {
	numeric := true
	for _, f := range row {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		return false
	}
	for i, f := range row {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "timestamp", "t":
			c.tsCol = i
		case "label", "class":
			c.labelCol = i
		}
	}
	return true
}

func (c *CSVReader) record(row []string, line int) (Record, error) {
	rec := Record{Line: line, Values: make([]float64, 0, len(row))}
	for i, f := range row {
		f = strings.TrimSpace(f)
		switch i {
		case c.labelCol:
			rec.Label = f
			continue
		case c.tsCol:
			ts, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return rec, fmt.Errorf("line %d: timestamp %q: %w", line, f, ErrMalformed)
			}
			rec.Timestamp = &ts
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return rec, fmt.Errorf("line %d: column %d %q: %w", line, i+1, f, ErrMalformed)
		}
		rec.Values = append(rec.Values, v)
	}
	return rec, nil
}
