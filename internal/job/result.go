// Package job defines the envelope every pipeline call produces and how
// its errors are classified at the service boundary.
package job

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"numflow/internal/chunk"
	"numflow/internal/dataset"
	"numflow/internal/registry"
	"numflow/source"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	OpTransform = "transform"
	OpInverse   = "inverse_transform"
)

// Result is built once per pipeline call and not modified afterwards.
type Result struct {
	JobID             string    `json:"jobId"`
	Operation         string    `json:"operation"`
	Status            Status    `json:"status"`
	Message           string    `json:"message"`
	OutputPath        string    `json:"outputPath,omitempty"`
	InverseOutputPath string    `json:"inverseOutputPath,omitempty"`
	ElapsedSeconds    float64   `json:"elapsedSeconds"`
	RowCount          int       `json:"rowCount"`
	ChunkCount        int       `json:"chunkCount"`
	SkippedChunks     []int     `json:"skippedChunks,omitempty"`
	HandleID          string    `json:"handleId,omitempty"`
	FinishedAt        time.Time `json:"finishedAt"`
}

// BadRequestError wraps input the caller got wrong that has no more
// specific type.
type BadRequestError struct{ Err error }

func (e *BadRequestError) Error() string { return e.Err.Error() }
func (e *BadRequestError) Unwrap() error { return e.Err }

// InternalError wraps anything unexpected.
type InternalError struct{ Err error }

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %v", e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }

type Fault int

const (
	FaultNone Fault = iota
	FaultClient
	FaultNotFound
	FaultServer
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultClient:
		return "client"
	case FaultNotFound:
		return "not_found"
	default:
		return "server"
	}
}

// Classify maps an error onto the fault class the transports report.
// Business errors are the caller's fault; a missing fit is singled out as
// an ordering mistake; everything else, chunk failures included, is ours.
func Classify(err error) Fault {
	if err == nil {
		return FaultNone
	}
	var (
		notFound *registry.NotFoundError
		badLink  *source.InvalidLinkError
		fetch    *source.FetchError
		data     *dataset.DataError
		bad      *BadRequestError
		internal *InternalError
		chunks   *chunk.ProcessingError
	)
	switch {
	case errors.As(err, &internal), errors.As(err, &chunks):
		return FaultServer
	case errors.As(err, &notFound):
		return FaultNotFound
	case errors.As(err, &badLink), errors.As(err, &fetch), errors.As(err, &data), errors.As(err, &bad):
		return FaultClient
	case errors.Is(err, fs.ErrNotExist):
		return FaultClient
	default:
		return FaultServer
	}
}
