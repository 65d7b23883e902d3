package match

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes feature columns: subtract the column mean, divide by
// the column standard deviation, both computed over the full database matrix.
// It is fitted exactly once per database and the same transform is applied to
// every query vector — refitting per query would make scores incomparable
// across queries.
type Scaler struct {
	means  []float64
	scales []float64
}

// FitScaler fits per-column standardization over the matrix. A zero-variance
// column keeps its mean but gets a unit divisor, so database rows collapse to
// exactly zero there and the column contributes nothing to any dot product.
func FitScaler(m *mat.Dense) *Scaler {
	rows, cols := m.Dims()
	s := &Scaler{
		means:  make([]float64, cols),
		scales: make([]float64, cols),
	}

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		mean := stat.Mean(col, nil)

		variance := 0.0
		for _, v := range col {
			d := v - mean
			variance += d * d
		}
		variance /= float64(rows)

		s.means[j] = mean
		if variance > 0 {
			s.scales[j] = 1 / math.Sqrt(variance)
		} else {
			s.scales[j] = 1
		}
	}
	return s
}

// Dim returns the fitted column count.
func (s *Scaler) Dim() int { return len(s.means) }

// Transform standardizes v in place.
func (s *Scaler) Transform(v []float64) error {
	if len(v) != len(s.means) {
		return fmt.Errorf("vector has %d values, scaler fitted on %d", len(v), len(s.means))
	}
	for i := range v {
		v[i] = (v[i] - s.means[i]) * s.scales[i]
	}
	return nil
}

// TransformMatrix standardizes every row of m into a new matrix.
func (s *Scaler) TransformMatrix(m *mat.Dense) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if cols != len(s.means) {
		return nil, fmt.Errorf("matrix has %d columns, scaler fitted on %d", cols, len(s.means))
	}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		copy(row, m.RawRowView(i))
		if err := s.Transform(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}
