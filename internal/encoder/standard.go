package encoder

import (
	"context"
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Standard scales the column to zero mean and unit variance.
type Standard struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`

	fitted bool
}

func (s *Standard) Kind() string { return KindStandard }

func (s *Standard) OutputWidth() int { return 1 }

func (s *Standard) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return ErrEmptyTraining
	}
	col, err := column(rows)
	if err != nil {
		return err
	}
	s.Mean, s.Std = stat.MeanStdDev(col, nil)
	s.Std = safeScale(s.Std)
	s.fitted = true
	return nil
}

func (s *Standard) Transform(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}
	return apply(ctx, rows, 1, func(in []float64) []float64 {
		return []float64{(in[0] - s.Mean) / s.Std}
	})
}

func (s *Standard) InverseTransform(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}
	return apply(ctx, rows, 1, func(in []float64) []float64 {
		return []float64{in[0]*s.Std + s.Mean}
	})
}

func (s *Standard) MarshalBinary() ([]byte, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}
	return json.Marshal(s)
}

func (s *Standard) UnmarshalBinary(b []byte) error {
	if err := json.Unmarshal(b, s); err != nil {
		return err
	}
	s.Std = safeScale(s.Std)
	s.fitted = true
	return nil
}

// safeScale keeps degenerate spreads (constant or single-row columns)
// from turning into a division by zero.
func safeScale(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1e-12 {
		return 1
	}
	return v
}
