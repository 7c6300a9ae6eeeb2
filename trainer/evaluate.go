package trainer

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Model predicts delay days from an encoded feature row.
type Model interface {
	Predict(x []float64) float64
	Width() int
	Importances() []float64
}

// Metrics are hold-out evaluation results.
type Metrics struct {
	MAE float64 `json:"mae"`
	R2  float64 `json:"r2"`
}

// Evaluate computes mean absolute error and the coefficient of
// determination of m over (x, y). R² is reported as 0 when the targets
// have no variance.
func Evaluate(m Model, x [][]float64, y []float64) Metrics {
	if len(x) == 0 {
		return Metrics{}
	}
	preds := make([]float64, len(x))
	var abs float64
	for i := range x {
		preds[i] = m.Predict(x[i])
		abs += math.Abs(preds[i] - y[i])
	}
	r2 := stat.RSquaredFrom(preds, y, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	return Metrics{MAE: abs / float64(len(x)), R2: r2}
}

// Split shuffles row indices with a seeded generator and returns the train
// and test partitions. The test partition has ceil(n*testFraction) rows, the
// same size rule scikit-learn uses, so a given seed always yields the same
// split for the same n.
func Split(n int, testFraction float64, seed uint64) (train, test []int) {
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	return perm[nTest:], perm[:nTest]
}

func take(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	ox := make([][]float64, len(idx))
	oy := make([]float64, len(idx))
	for i, j := range idx {
		ox[i], oy[i] = x[j], y[j]
	}
	return ox, oy
}

// Importance is one feature's contribution to a fitted model.
type Importance struct {
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}

// TopImportances returns the k highest scoring columns, best first.
func TopImportances(m Model, schema *Schema, k int) []Importance {
	scores := m.Importances()
	out := make([]Importance, 0, len(scores))
	for j, s := range scores {
		out = append(out, Importance{Column: schema.Columns[j], Score: s})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
