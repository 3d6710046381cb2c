package models

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// DefaultMaxSplitTries is how many random (feature, row pair) draws a node
// makes before giving up and becoming a leaf.
const DefaultMaxSplitTries = 10

// TreeNode is either a branch (IsLeaf false, both children set) or a leaf
// holding the mean target of the rows routed to it. IsLeaf is the only
// discriminant: a leaf whose Value is 0 is still a leaf.
type TreeNode struct {
	IsLeaf    bool
	Value     float64
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Samples   int
}

type TreeParams struct {
	MaxSplitTries int
	// IncludeLastFeature lets the split search pick the final column.
	// By default the candidate features are [0, cols-1).
	IncludeLastFeature bool
}

// RandomSplitTree is a regression tree whose splits are drawn at random:
// a random feature, two random rows, and the midpoint of their values.
type RandomSplitTree struct {
	BaseModel
	Root               *TreeNode
	NumFeatures        int
	MaxSplitTries      int
	IncludeLastFeature bool

	rng *rand.Rand
}

func NewRandomSplitTree(params TreeParams, src rand.Source) *RandomSplitTree {
	if params.MaxSplitTries <= 0 {
		params.MaxSplitTries = DefaultMaxSplitTries
	}

	if src == nil {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}

	return &RandomSplitTree{
		MaxSplitTries:      params.MaxSplitTries,
		IncludeLastFeature: params.IncludeLastFeature,
		rng:                rand.New(src),
		BaseModel: BaseModel{
			Name: "RandomSplitTree",
			Params: map[string]any{
				"max_split_tries":      params.MaxSplitTries,
				"include_last_feature": params.IncludeLastFeature,
			},
		},
	}
}

func (t *RandomSplitTree) Fit(X [][]float64, y []float64) error {
	nFeatures, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}

	if t.rng == nil {
		t.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}

	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}

	t.NumFeatures = nFeatures
	t.Root = t.buildTree(X, y, indices)
	return nil
}

func (t *RandomSplitTree) buildTree(X [][]float64, y []float64, indices []int) *TreeNode {
	feature, threshold, ok := t.findSplit(X, indices)
	if !ok {
		return newLeaf(y, indices)
	}

	leftIndices, rightIndices := splitIndices(X, indices, feature, threshold)

	// The midpoint of two adjacent floats can round onto the larger one,
	// which sends every row left.
	if len(leftIndices) == 0 || len(rightIndices) == 0 {
		return newLeaf(y, indices)
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      t.buildTree(X, y, leftIndices),
		Right:     t.buildTree(X, y, rightIndices),
		Samples:   len(indices),
	}
}

func (t *RandomSplitTree) findSplit(X [][]float64, indices []int) (int, float64, bool) {
	nCandidates := t.candidateFeatures()
	n := len(indices)

	for try := 0; try < t.MaxSplitTries; try++ {
		feature := t.rng.Intn(nCandidates)
		a := X[indices[t.rng.Intn(n)]][feature]
		b := X[indices[t.rng.Intn(n)]][feature]
		if a != b {
			return feature, 0.5*a + 0.5*b, true
		}
	}

	return 0, 0, false
}

// candidateFeatures is the exclusive upper bound of the feature draw. The
// last column is left out unless IncludeLastFeature is set; a single-column
// matrix still offers column 0.
func (t *RandomSplitTree) candidateFeatures() int {
	if t.IncludeLastFeature || t.NumFeatures == 1 {
		return t.NumFeatures
	}
	return t.NumFeatures - 1
}

func splitIndices(X [][]float64, indices []int, feature int, threshold float64) ([]int, []int) {
	var leftIndices, rightIndices []int

	for _, idx := range indices {
		if X[idx][feature] <= threshold {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}

	return leftIndices, rightIndices
}

func newLeaf(y []float64, indices []int) *TreeNode {
	values := make([]float64, len(indices))
	for i, idx := range indices {
		values[i] = y[idx]
	}

	return &TreeNode{
		IsLeaf:  true,
		Value:   stat.Mean(values, nil),
		Samples: len(indices),
	}
}

func (t *RandomSplitTree) Predict(X [][]float64) ([]float64, error) {
	if !t.IsFitted() {
		return nil, ErrNotFitted
	}

	if err := checkPredictRows(X, t.NumFeatures); err != nil {
		return nil, err
	}

	predictions := make([]float64, len(X))
	for i, sample := range X {
		predictions[i] = t.predictSample(sample, t.Root)
	}

	return predictions, nil
}

func (t *RandomSplitTree) PredictOne(sample []float64) (float64, error) {
	if !t.IsFitted() {
		return 0, ErrNotFitted
	}

	if len(sample) != t.NumFeatures {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrFeatureCount, t.NumFeatures, len(sample))
	}

	return t.predictSample(sample, t.Root), nil
}

func (t *RandomSplitTree) predictSample(sample []float64, node *TreeNode) float64 {
	if node.IsLeaf {
		return node.Value
	}

	if sample[node.Feature] <= node.Threshold {
		return t.predictSample(sample, node.Left)
	}
	return t.predictSample(sample, node.Right)
}

func (t *RandomSplitTree) IsFitted() bool {
	return t.Root != nil
}

func (t *RandomSplitTree) Reset() {
	t.Root = nil
	t.NumFeatures = 0
}

// Leaves returns the leaf values from left to right.
func (t *RandomSplitTree) Leaves() []float64 {
	var values []float64
	var walk func(node *TreeNode)
	walk = func(node *TreeNode) {
		if node == nil {
			return
		}
		if node.IsLeaf {
			values = append(values, node.Value)
			return
		}
		walk(node.Left)
		walk(node.Right)
	}
	walk(t.Root)
	return values
}

// Depth is the number of branches on the longest root-to-leaf path.
func (t *RandomSplitTree) Depth() int {
	var depth func(node *TreeNode) int
	depth = func(node *TreeNode) int {
		if node == nil || node.IsLeaf {
			return 0
		}
		return 1 + max(depth(node.Left), depth(node.Right))
	}
	return depth(t.Root)
}

func (t *RandomSplitTree) String() string {
	if t.Root == nil {
		return "RandomSplitTree (not fitted)"
	}

	var sb strings.Builder
	writeNode(&sb, t.Root, 0)
	return sb.String()
}

func writeNode(sb *strings.Builder, node *TreeNode, indent int) {
	sb.WriteString(strings.Repeat("\t", indent))
	if node.IsLeaf {
		fmt.Fprintf(sb, "Leaf value=%g samples=%d\n", node.Value, node.Samples)
		return
	}

	fmt.Fprintf(sb, "Branch feature=%d threshold=%g samples=%d\n", node.Feature, node.Threshold, node.Samples)
	writeNode(sb, node.Left, indent+1)
	writeNode(sb, node.Right, indent+1)
}
