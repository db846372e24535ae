package encoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mode is a mode-specific normalizer. The training column is cut into K
// quantile buckets; a value is encoded as its offset from its bucket mean
// in units of four bucket standard deviations, followed by a one-hot
// indicator of the bucket. Output width is 1+K. Values outside the training
// range fall into the first or last bucket and are not clipped.
type Mode struct {
	K      int       `json:"k"`
	Bounds []float64 `json:"bounds"` // K-1 inner upper bounds, ascending
	Means  []float64 `json:"means"`
	Stds   []float64 `json:"stds"`
}

func (m *Mode) Kind() string { return KindMode }

func (m *Mode) OutputWidth() int { return 1 + len(m.Means) }

func (m *Mode) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return ErrEmptyTraining
	}
	if m.K < 1 {
		return fmt.Errorf("encoder: modes must be >= 1, got %d", m.K)
	}
	col, err := column(rows)
	if err != nil {
		return err
	}
	sorted := slices.Clone(col)
	slices.Sort(sorted)

	k := min(m.K, len(sorted))
	bounds := make([]float64, k-1)
	for i := range bounds {
		bounds[i] = stat.Quantile(float64(i+1)/float64(k), stat.Empirical, sorted, nil)
	}

	buckets := make([][]float64, k)
	for _, v := range sorted {
		b := bucketOf(bounds, v)
		buckets[b] = append(buckets[b], v)
	}
	means := make([]float64, k)
	stds := make([]float64, k)
	for i, vals := range buckets {
		switch len(vals) {
		case 0:
			// Empty when neighbouring quantiles coincide.
			means[i], stds[i] = bounds[min(i, len(bounds)-1)], 1
		default:
			mean, std := stat.MeanStdDev(vals, nil)
			means[i], stds[i] = mean, safeScale(std)
		}
	}
	m.K, m.Bounds, m.Means, m.Stds = k, bounds, means, stds
	return nil
}

func bucketOf(bounds []float64, v float64) int {
	return sort.Search(len(bounds), func(i int) bool { return v <= bounds[i] })
}

func (m *Mode) Transform(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if len(m.Means) == 0 {
		return nil, ErrNotFitted
	}
	w := m.OutputWidth()
	return apply(ctx, rows, 1, func(in []float64) []float64 {
		b := bucketOf(m.Bounds, in[0])
		out := make([]float64, w)
		out[0] = (in[0] - m.Means[b]) / (4 * m.Stds[b])
		out[1+b] = 1
		return out
	})
}

func (m *Mode) InverseTransform(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if len(m.Means) == 0 {
		return nil, ErrNotFitted
	}
	return apply(ctx, rows, m.OutputWidth(), func(in []float64) []float64 {
		b := floats.MaxIdx(in[1:])
		return []float64{in[0]*4*m.Stds[b] + m.Means[b]}
	})
}

func (m *Mode) MarshalBinary() ([]byte, error) {
	if len(m.Means) == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(m)
}

func (m *Mode) UnmarshalBinary(b []byte) error {
	var st Mode
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	if len(st.Means) == 0 || len(st.Means) != len(st.Stds) || len(st.Bounds) != len(st.Means)-1 {
		return errors.New("encoder: inconsistent mode state")
	}
	*m = st
	return nil
}
