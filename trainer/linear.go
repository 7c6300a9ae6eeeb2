package trainer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearModel is a ridge-regularized least squares fit. The intercept is
// not penalized.
type LinearModel struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
	Lambda    float64   `json:"lambda"`
}

// FitLinear solves (XᵀX + λD)β = Xᵀy with D the identity minus the
// intercept entry.
func FitLinear(x [][]float64, y []float64, lambda float64) (*LinearModel, error) {
	n := len(x)
	if n == 0 {
		return nil, errors.New("no training rows")
	}
	p := len(x[0])

	data := make([]float64, 0, n*(p+1))
	for _, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("ragged feature matrix: row has %d columns, want %d", len(row), p)
		}
		data = append(data, 1)
		data = append(data, row...)
	}
	X := mat.NewDense(n, p+1, data)
	Y := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	sym := mat.NewSymDense(p+1, nil)
	for i := 0; i <= p; i++ {
		for j := i; j <= p; j++ {
			sym.SetSym(i, j, xtx.At(i, j))
		}
		if i > 0 {
			sym.SetSym(i, i, sym.At(i, i)+lambda)
		}
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), Y)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.New("normal equations are not positive definite; increase lambda")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("solving normal equations: %w", err)
	}

	m := &LinearModel{Intercept: beta.AtVec(0), Coef: make([]float64, p), Lambda: lambda}
	for j := 0; j < p; j++ {
		m.Coef[j] = beta.AtVec(j + 1)
	}
	return m, nil
}

// Predict implements Model.
func (m *LinearModel) Predict(x []float64) float64 {
	v := m.Intercept
	for j, c := range m.Coef {
		v += c * x[j]
	}
	return v
}

// Width implements Model.
func (m *LinearModel) Width() int { return len(m.Coef) }

// Importances implements Model as the absolute coefficients.
func (m *LinearModel) Importances() []float64 {
	out := make([]float64, len(m.Coef))
	for j, c := range m.Coef {
		out[j] = math.Abs(c)
	}
	return out
}
