package trainer

import (
	"errors"
	"sort"
)

// GBTParams controls gradient boosting.
type GBTParams struct {
	Trees        int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int
	Bins         int
}

// DefaultGBTParams matches the reference boosting setup: 100 trees of depth
// at most 6 with a 0.1 learning rate.
func DefaultGBTParams() GBTParams {
	return GBTParams{Trees: 100, LearningRate: 0.1, MaxDepth: 6, MinLeaf: 20, Bins: 64}
}

// TreeNode is one node of a regression tree. Leaves carry Value; inner
// nodes send x[Feature] <= Threshold to Left and the rest to Right.
type TreeNode struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a flattened regression tree rooted at node 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t *Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBTModel is an additive ensemble of regression trees fit to squared loss.
type GBTModel struct {
	Base         float64   `json:"base"`
	LearningRate float64   `json:"learning_rate"`
	Features     int       `json:"features"`
	Trees        []Tree    `json:"trees"`
	Gain         []float64 `json:"gain"`
}

// Predict implements Model.
func (m *GBTModel) Predict(x []float64) float64 {
	v := m.Base
	for i := range m.Trees {
		v += m.LearningRate * m.Trees[i].eval(x)
	}
	return v
}

// Width implements Model.
func (m *GBTModel) Width() int { return m.Features }

// Importances implements Model as the total split gain per feature.
func (m *GBTModel) Importances() []float64 {
	return append([]float64(nil), m.Gain...)
}

// binned holds each feature's split candidates and every row's bin index.
// A value falls in bin i when it is <= thresholds[i] and above
// thresholds[i-1]; values above every threshold fall in the last bin.
type binned struct {
	thresholds [][]float64
	bins       []uint16 // row-major n x p
	p          int
}

func binFeatures(x [][]float64, maxBins int) *binned {
	n, p := len(x), len(x[0])
	b := &binned{thresholds: make([][]float64, p), bins: make([]uint16, n*p), p: p}

	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		sort.Float64s(col)
		uniq := col[:0:0]
		for i, v := range col {
			if i == 0 || v != col[i-1] {
				uniq = append(uniq, v)
			}
		}

		var thr []float64
		if len(uniq) <= maxBins {
			for i := 1; i < len(uniq); i++ {
				thr = append(thr, (uniq[i-1]+uniq[i])/2)
			}
		} else {
			for q := 1; q < maxBins; q++ {
				v := col[q*n/maxBins]
				if len(thr) == 0 || v > thr[len(thr)-1] {
					thr = append(thr, v)
				}
			}
		}
		b.thresholds[j] = thr

		for i := range x {
			b.bins[i*p+j] = uint16(sort.SearchFloat64s(thr, x[i][j]))
		}
	}
	return b
}

type gbtBuilder struct {
	params   GBTParams
	data     *binned
	residual []float64
	gain     []float64
	sum      []float64
	count    []int
}

// FitGBT fits a boosted tree ensemble to (x, y).
func FitGBT(x [][]float64, y []float64, params GBTParams) (*GBTModel, error) {
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if params.Bins < 2 || params.Bins > 1<<16-1 {
		return nil, errors.New("bins must be in [2, 65535]")
	}
	if params.MinLeaf < 1 {
		params.MinLeaf = 1
	}
	n := len(x)

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	b := &gbtBuilder{
		params:   params,
		data:     binFeatures(x, params.Bins),
		residual: make([]float64, n),
		gain:     make([]float64, len(x[0])),
	}
	m := &GBTModel{Base: base, LearningRate: params.LearningRate, Features: len(x[0])}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	rows := make([]int, n)
	for t := 0; t < params.Trees; t++ {
		for i := range rows {
			rows[i] = i
			b.residual[i] = y[i] - pred[i]
		}
		tree := &Tree{}
		b.grow(tree, rows, 0)
		for i := range x {
			pred[i] += params.LearningRate * tree.eval(x[i])
		}
		m.Trees = append(m.Trees, *tree)
	}
	m.Gain = b.gain
	return m, nil
}

// grow appends the subtree for rows to tree and returns its node index.
// rows is reordered in place.
func (b *gbtBuilder) grow(tree *Tree, rows []int, depth int) int {
	var total float64
	for _, r := range rows {
		total += b.residual[r]
	}
	idx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, TreeNode{Leaf: true, Value: total / float64(len(rows))})

	if depth >= b.params.MaxDepth || len(rows) < 2*b.params.MinLeaf {
		return idx
	}

	feature, bin, gain := b.bestSplit(rows, total)
	if feature < 0 {
		return idx
	}

	p := b.data.p
	mid := 0
	for i, r := range rows {
		if int(b.data.bins[r*p+feature]) <= bin {
			rows[mid], rows[i] = rows[i], rows[mid]
			mid++
		}
	}

	b.gain[feature] += gain
	left := b.grow(tree, rows[:mid], depth+1)
	right := b.grow(tree, rows[mid:], depth+1)
	tree.Nodes[idx] = TreeNode{
		Feature:   feature,
		Threshold: b.data.thresholds[feature][bin],
		Left:      left,
		Right:     right,
	}
	return idx
}

// bestSplit scans every feature's histogram for the split that most reduces
// squared error while leaving at least MinLeaf rows on each side.
func (b *gbtBuilder) bestSplit(rows []int, total float64) (feature, bin int, gain float64) {
	feature, bin = -1, -1
	n := float64(len(rows))
	parent := total * total / n
	p := b.data.p

	for j := 0; j < p; j++ {
		thr := b.data.thresholds[j]
		if len(thr) == 0 {
			continue
		}
		k := len(thr) + 1
		if cap(b.sum) < k {
			b.sum = make([]float64, k)
			b.count = make([]int, k)
		}
		sum, count := b.sum[:k], b.count[:k]
		clear(sum)
		clear(count)
		for _, r := range rows {
			bi := b.data.bins[r*p+j]
			sum[bi] += b.residual[r]
			count[bi]++
		}

		var sl float64
		var nl int
		for i := 0; i < len(thr); i++ {
			sl += sum[i]
			nl += count[i]
			nr := len(rows) - nl
			if nl < b.params.MinLeaf || nr < b.params.MinLeaf {
				continue
			}
			sr := total - sl
			g := sl*sl/float64(nl) + sr*sr/float64(nr) - parent
			if g > gain+1e-12 {
				feature, bin, gain = j, i, g
			}
		}
	}
	return feature, bin, gain
}
