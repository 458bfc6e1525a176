package detector

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

const eulerGamma = 0.5772156649

// detectIsolation scores every point with an isolation forest built over
// (cost, day offset) and flags the top contamination share of scores.
// contamination = clamp(1/threshold, 0.01, 0.5).
func detectIsolation(s *Series, threshold float64, cfg Config) ([]Candidate, error) {
	n := s.Len()
	if n < 2 {
		return nil, ErrTooFewPoints
	}
	costs := s.Costs()
	if !allFinite(costs) {
		return nil, ErrNonFinite
	}

	offsets := s.Offsets()
	data := make([][]float64, n)
	for i := range data {
		data[i] = []float64{costs[i], offsets[i]}
	}

	forest := newIsolationForest(cfg.IsolationTrees, cfg.IsolationSampleSize, cfg.IsolationSeed)
	forest.fit(data)
	scores := forest.score(data)

	contamination := clamp(1/threshold, 0.01, 0.5)
	k := int(math.Ceil(contamination * float64(n)))
	if k >= n {
		k = n - 1
	}
	if k < 1 {
		k = 1
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	flagged := append([]int(nil), order[:k]...)
	sort.Ints(flagged)

	baseline := medianExcluding(costs, flaggedSet(flagged))
	return candidatesFor(s, anomaly.MethodIsolation, flagged,
		func(i int) float64 { return scores[i] },
		func(int) float64 { return baseline },
	), nil
}

// isolationForest is a seeded isolation forest, so repeated runs over the
// same data give the same scores
type isolationForest struct {
	numTrees   int
	sampleSize int
	rng        *rand.Rand
	trees      []*isolationNode
	norm       float64
}

type isolationNode struct {
	feature int
	split   float64
	left    *isolationNode
	right   *isolationNode
	size    int
	leaf    bool
}

func newIsolationForest(numTrees, sampleSize int, seed int64) *isolationForest {
	return &isolationForest{
		numTrees:   numTrees,
		sampleSize: sampleSize,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (f *isolationForest) fit(data [][]float64) {
	size := f.sampleSize
	if size > len(data) {
		size = len(data)
	}
	f.norm = averagePathLength(size)
	maxDepth := int(math.Ceil(math.Log2(float64(size))))

	f.trees = make([]*isolationNode, f.numTrees)
	for t := range f.trees {
		f.trees[t] = f.grow(f.subsample(data, size), 0, maxDepth)
	}
}

// subsample draws size rows without replacement using a partial Fisher-Yates shuffle
func (f *isolationForest) subsample(data [][]float64, size int) [][]float64 {
	idx := make([]int, len(data))
	for i := range idx {
		idx[i] = i
	}
	out := make([][]float64, size)
	for i := 0; i < size; i++ {
		j := i + f.rng.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = data[idx[i]]
	}
	return out
}

func (f *isolationForest) grow(rows [][]float64, depth, maxDepth int) *isolationNode {
	node := &isolationNode{size: len(rows)}
	if len(rows) <= 1 || depth >= maxDepth {
		node.leaf = true
		return node
	}

	node.feature = f.rng.Intn(len(rows[0]))
	lo, hi := rows[0][node.feature], rows[0][node.feature]
	for _, r := range rows[1:] {
		lo = math.Min(lo, r[node.feature])
		hi = math.Max(hi, r[node.feature])
	}
	if lo == hi {
		node.leaf = true
		return node
	}
	node.split = lo + f.rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, r := range rows {
		if r[node.feature] < node.split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		node.leaf = true
		return node
	}
	node.left = f.grow(left, depth+1, maxDepth)
	node.right = f.grow(right, depth+1, maxDepth)
	return node
}

// score returns s(x) = 2^(-E(h(x))/c(n)) for every row, in (0, 1]
func (f *isolationForest) score(data [][]float64) []float64 {
	out := make([]float64, len(data))
	for i, row := range data {
		if f.norm == 0 {
			out[i] = 0.5
			continue
		}
		total := 0.0
		for _, t := range f.trees {
			total += t.pathLength(row, 0)
		}
		out[i] = math.Pow(2, -(total/float64(len(f.trees)))/f.norm)
	}
	return out
}

func (n *isolationNode) pathLength(row []float64, depth int) float64 {
	if n.leaf {
		return float64(depth) + averagePathLength(n.size)
	}
	if row[n.feature] < n.split {
		return n.left.pathLength(row, depth+1)
	}
	return n.right.pathLength(row, depth+1)
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search
func averagePathLength(n int) float64 {
	switch {
	case n > 2:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	case n == 2:
		return 1
	default:
		return 0
	}
}
