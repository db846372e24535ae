// Package encoder holds the reversible numeric encoders fitted by the
// registry. An encoder learns its parameters once from training rows and is
// read-only afterwards, so a fitted encoder is safe for concurrent use.
package encoder

import (
	"context"
	"encoding"
	"errors"
	"fmt"
)

const (
	KindStandard = "standard"
	KindMode     = "mode"
)

var (
	ErrNotFitted     = errors.New("encoder: not fitted")
	ErrEmptyTraining = errors.New("encoder: no training rows")
)

// WidthError reports a row whose column count does not match the encoder.
type WidthError struct {
	Row, Got, Want int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("encoder: row %d has %d columns, want %d", e.Row, e.Got, e.Want)
}

// Fitted is the read-only view callers get from the registry.
type Fitted interface {
	Kind() string
	OutputWidth() int
	Transform(ctx context.Context, rows [][]float64) ([][]float64, error)
	InverseTransform(ctx context.Context, rows [][]float64) ([][]float64, error)
}

// Encoder is a Fitted that can also be trained and serialized.
type Encoder interface {
	Fitted
	Fit(rows [][]float64) error
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// New returns an unfitted encoder of the given kind. modes only applies to
// the mode encoder.
func New(kind string, modes int) (Encoder, error) {
	switch kind {
	case KindStandard:
		return &Standard{}, nil
	case KindMode, "":
		if modes < 1 {
			return nil, fmt.Errorf("encoder: modes must be >= 1, got %d", modes)
		}
		return &Mode{K: modes}, nil
	default:
		return nil, fmt.Errorf("encoder: unknown kind %q", kind)
	}
}

// Restore rebuilds a fitted encoder from MarshalBinary output.
func Restore(kind string, state []byte) (Encoder, error) {
	var enc Encoder
	switch kind {
	case KindStandard:
		enc = &Standard{}
	case KindMode:
		enc = &Mode{}
	default:
		return nil, fmt.Errorf("encoder: unknown kind %q", kind)
	}
	if err := enc.UnmarshalBinary(state); err != nil {
		return nil, fmt.Errorf("restore %s encoder: %w", kind, err)
	}
	return enc, nil
}

// checkEvery is how many rows are processed between context checks.
const checkEvery = 4096

func column(rows [][]float64) ([]float64, error) {
	col := make([]float64, len(rows))
	for i, r := range rows {
		if len(r) != 1 {
			return nil, &WidthError{Row: i, Got: len(r), Want: 1}
		}
		col[i] = r[0]
	}
	return col, nil
}

// apply runs fn row by row, checking ctx every checkEvery rows.
func apply(ctx context.Context, rows [][]float64, want int, fn func(in []float64) []float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(r) != want {
			return nil, &WidthError{Row: i, Got: len(r), Want: want}
		}
		out[i] = fn(r)
	}
	return out, nil
}
