// Package chunk applies a function to a row set in bounded-size chunks on a
// bounded worker pool.
//
// Two assembly policies exist. Gather (the default) keeps every chunk
// result by ordinal and concatenates in ordinal order once all chunks have
// settled, so output order always equals input order. Stream hands each
// chunk to an Appender as soon as it completes; appends are serialized but
// follow completion order, so output rows may be permuted relative to the
// input. Stream trades ordering for memory and must only be used where row
// order does not matter.
package chunk

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Policy string

const (
	Gather Policy = "gather"
	Stream Policy = "stream"
)

// OnError decides what a failed chunk does to the job.
type OnError string

const (
	// Abort fails the whole job and cancels chunks that have not started.
	Abort OnError = "abort"
	// Skip drops the failed chunk and records it in Outcome.Skipped.
	Skip OnError = "skip"
)

// Chunk is a contiguous slice of rows. Offset is the index of Rows[0] in
// the source.
type Chunk[T any] struct {
	Ordinal int
	Offset  int
	Rows    []T
}

// Split cuts rows into chunks of at most size rows; only the last chunk
// may be shorter.
func Split[T any](rows []T, size int) []Chunk[T] {
	if size < 1 {
		size = 1
	}
	out := make([]Chunk[T], 0, (len(rows)+size-1)/size)
	for off := 0; off < len(rows); off += size {
		end := min(off+size, len(rows))
		out = append(out, Chunk[T]{Ordinal: len(out), Offset: off, Rows: rows[off:end:end]})
	}
	return out
}

// Failure is one chunk that did not produce output.
type Failure struct {
	Ordinal int
	Offset  int
	Rows    int
	Err     error
}

// Outcome summarizes a Map call.
type Outcome struct {
	Policy    Policy
	Chunks    int
	RowsIn    int
	RowsOut   int
	Failures  []Failure
	Cancelled []int // ordinals never started because the job was aborted
	Skipped   []int // ordinals left out of the output under Skip
	Elapsed   time.Duration
}

// ProcessingError fails a job whose chunks could not all be processed.
type ProcessingError struct {
	Failures  []Failure
	Cancelled int
}

func (e *ProcessingError) Error() string {
	ords := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ords[i] = fmt.Sprint(f.Ordinal)
	}
	msg := fmt.Sprintf("%d chunk(s) failed [%s]", len(e.Failures), strings.Join(ords, ","))
	if e.Cancelled > 0 {
		msg += fmt.Sprintf(", %d cancelled", e.Cancelled)
	}
	if len(e.Failures) > 0 {
		msg += ": " + e.Failures[0].Err.Error()
	}
	return msg
}

func (e *ProcessingError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

var errPanic = errors.New("chunk: panic")

func sortFailures(fs []Failure) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].Ordinal < fs[j].Ordinal })
}
