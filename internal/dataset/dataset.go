// Package dataset reads and writes the single-column CSV files the pipeline
// consumes and produces.
package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DataError reports input the pipeline cannot interpret as numeric rows.
type DataError struct {
	Path string
	Line int
	Msg  string
}

func (e *DataError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", filepath.Base(e.Path), e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", filepath.Base(e.Path), e.Msg)
}

func open(path string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(bufio.NewReaderSize(f, 1<<16))
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	return f, r, nil
}

// parseValue reads one finite number; msg is empty on success.
func parseValue(s string) (v float64, msg string) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Sprintf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Sprintf("not a finite number: %q", s)
	}
	return v, ""
}

// ReadColumn returns the named column as rows of width one. An empty column
// name selects the first column. limit > 0 stops after that many data rows.
func ReadColumn(path, column string, limit int) ([][]float64, error) {
	f, r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &DataError{Path: path, Msg: "empty file"}
	}
	if err != nil {
		return nil, &DataError{Path: path, Line: 1, Msg: err.Error()}
	}
	idx := 0
	if column != "" {
		idx = -1
		for i, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == column {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &DataError{Path: path, Line: 1, Msg: fmt.Sprintf("column %q not found", column)}
		}
	}

	var rows [][]float64
	for line := 2; limit <= 0 || len(rows) < limit; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DataError{Path: path, Line: line, Msg: err.Error()}
		}
		if idx >= len(rec) {
			return nil, &DataError{Path: path, Line: line, Msg: fmt.Sprintf("missing column %d", idx)}
		}
		v, msg := parseValue(rec[idx])
		if msg != "" {
			return nil, &DataError{Path: path, Line: line, Msg: msg}
		}
		rows = append(rows, []float64{v})
	}
	return rows, nil
}

// ReadMatrix skips the header, flattens every remaining value and reshapes
// the result into rows of the given width.
func ReadMatrix(path string, width int) ([][]float64, error) {
	if width < 1 {
		return nil, fmt.Errorf("dataset: width must be >= 1, got %d", width)
	}
	f, r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DataError{Path: path, Msg: "empty file"}
		}
		return nil, &DataError{Path: path, Line: 1, Msg: err.Error()}
	}
	var flat []float64
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DataError{Path: path, Line: line, Msg: err.Error()}
		}
		for _, s := range rec {
			v, msg := parseValue(s)
			if msg != "" {
				return nil, &DataError{Path: path, Line: line, Msg: msg}
			}
			flat = append(flat, v)
		}
	}
	if len(flat)%width != 0 {
		return nil, &DataError{Path: path, Msg: fmt.Sprintf("%d values cannot be reshaped to width %d", len(flat), width)}
	}
	rows := make([][]float64, len(flat)/width)
	for i := range rows {
		rows[i] = flat[i*width : (i+1)*width : (i+1)*width]
	}
	return rows, nil
}

// Header names width columns after prefix; a single column keeps the bare
// prefix.
func Header(prefix string, width int) []string {
	if width == 1 {
		return []string{prefix}
	}
	h := make([]string, width)
	for i := range h {
		h[i] = prefix + "_" + strconv.Itoa(i)
	}
	return h
}

// WriteFile writes header and rows to path atomically.
func WriteFile(path string, header []string, rows [][]float64) error {
	a, err := NewAppender(path, header)
	if err != nil {
		return err
	}
	if err := a.Append(rows); err != nil {
		a.Abort()
		return err
	}
	return a.Commit()
}

// Appender writes rows to a temp file next to path and moves it into place
// on Commit. It is not safe for concurrent use.
type Appender struct {
	path string
	tmp  *os.File
	w    *bufio.Writer
	buf  []byte
	rows int
}

func NewAppender(path string, header []string) (*Appender, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	a := &Appender{path: path, tmp: tmp, w: bufio.NewWriterSize(tmp, 1<<16)}
	cw := csv.NewWriter(a.w)
	if err := cw.Write(header); err != nil {
		a.Abort()
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		a.Abort()
		return nil, err
	}
	return a, nil
}

func (a *Appender) Append(rows [][]float64) error {
	for _, row := range rows {
		a.buf = a.buf[:0]
		for i, v := range row {
			if i > 0 {
				a.buf = append(a.buf, ',')
			}
			a.buf = strconv.AppendFloat(a.buf, v, 'g', -1, 64)
		}
		a.buf = append(a.buf, '\n')
		if _, err := a.w.Write(a.buf); err != nil {
			return err
		}
	}
	a.rows += len(rows)
	return nil
}

// Rows is the number of data rows appended so far.
func (a *Appender) Rows() int { return a.rows }

func (a *Appender) Commit() error {
	if err := a.w.Flush(); err != nil {
		a.Abort()
		return err
	}
	if err := a.tmp.Close(); err != nil {
		_ = os.Remove(a.tmp.Name())
		return err
	}
	if err := os.Rename(a.tmp.Name(), a.path); err != nil {
		_ = os.Remove(a.tmp.Name())
		return err
	}
	return nil
}

// Abort discards everything written so far.
func (a *Appender) Abort() {
	_ = a.tmp.Close()
	_ = os.Remove(a.tmp.Name())
}
