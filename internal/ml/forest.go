package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ForestFormat is the format tag of a JSON random forest export.
const ForestFormat = "sklearn-forest"

// leaf marks a missing child in the exported tree arrays.
const leaf = -1

// forestFile is the on-disk layout. Each estimator carries the parallel node
// arrays of a fitted decision tree.
type forestFile struct {
	Format     string     `json:"format"`
	NFeatures  int        `json:"n_features"`
	Classes    []int      `json:"classes"`
	Estimators []treeFile `json:"estimators"`
}

type treeFile struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type tree struct {
	left, right []int
	feature     []int
	threshold   []float64
	proba       [][]float64 // normalised class distribution per node
}

// TreeEnsemble evaluates a fitted random forest. It is immutable after
// LoadTreeEnsemble returns.
type TreeEnsemble struct {
	nFeatures int
	classes   []int
	trees     []tree
}

// LoadTreeEnsemble reads and validates a JSON forest export.
func LoadTreeEnsemble(path string) (*TreeEnsemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read forest: %w", err)
	}
	return ParseTreeEnsemble(data)
}

// ParseTreeEnsemble decodes a JSON forest export.
func ParseTreeEnsemble(data []byte) (*TreeEnsemble, error) {
	var f forestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse forest: %w", err)
	}

	if f.Format != ForestFormat {
		return nil, fmt.Errorf("unexpected forest format %q", f.Format)
	}
	if f.NFeatures <= 0 {
		return nil, fmt.Errorf("forest must declare n_features, got %d", f.NFeatures)
	}
	if len(f.Classes) == 0 {
		return nil, fmt.Errorf("forest has no classes")
	}
	if len(f.Estimators) == 0 {
		return nil, fmt.Errorf("forest has no estimators")
	}

	te := &TreeEnsemble{
		nFeatures: f.NFeatures,
		classes:   f.Classes,
		trees:     make([]tree, len(f.Estimators)),
	}
	for i, tf := range f.Estimators {
		t, err := buildTree(tf, f.NFeatures, len(f.Classes))
		if err != nil {
			return nil, fmt.Errorf("estimator %d: %w", i, err)
		}
		te.trees[i] = t
	}
	return te, nil
}

func buildTree(tf treeFile, nFeatures, nClasses int) (tree, error) {
	n := len(tf.ChildrenLeft)
	if n == 0 {
		return tree{}, fmt.Errorf("empty tree")
	}
	if len(tf.ChildrenRight) != n || len(tf.Feature) != n || len(tf.Threshold) != n || len(tf.Value) != n {
		return tree{}, fmt.Errorf("node arrays have different lengths")
	}

	t := tree{
		left:      tf.ChildrenLeft,
		right:     tf.ChildrenRight,
		feature:   tf.Feature,
		threshold: tf.Threshold,
		proba:     make([][]float64, n),
	}

	for i := 0; i < n; i++ {
		l, r := tf.ChildrenLeft[i], tf.ChildrenRight[i]
		if (l == leaf) != (r == leaf) {
			return tree{}, fmt.Errorf("node %d has exactly one child", i)
		}
		if l != leaf {
			// Children always come after their parent, which also rules out cycles.
			if l <= i || l >= n || r <= i || r >= n {
				return tree{}, fmt.Errorf("node %d has child out of range", i)
			}
			if f := tf.Feature[i]; f < 0 || f >= nFeatures {
				return tree{}, fmt.Errorf("node %d splits on feature %d outside [0, %d)", i, f, nFeatures)
			}
		}

		if len(tf.Value[i]) != nClasses {
			return tree{}, fmt.Errorf("node %d has %d class values, want %d", i, len(tf.Value[i]), nClasses)
		}
		t.proba[i] = normalise(tf.Value[i])
	}
	return t, nil
}

func normalise(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	out := make([]float64, len(v))
	if sum <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}

// leafProba walks one tree down to a leaf.
func (t *tree) leafProba(row []float64) []float64 {
	node := 0
	for t.left[node] != leaf {
		// Inputs are compared at float32 precision, matching how the thresholds were fitted.
		if float64(float32(row[t.feature[node]])) <= t.threshold[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.proba[node]
}

// PredictProba returns the mean class distribution over all trees for each row.
func (te *TreeEnsemble) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for r, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(row) != te.nFeatures {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", r, len(row), te.nFeatures)
		}

		acc := make([]float64, len(te.classes))
		for i := range te.trees {
			for c, p := range te.trees[i].leafProba(row) {
				acc[c] += p
			}
		}
		for c := range acc {
			acc[c] /= float64(len(te.trees))
		}
		out[r] = acc
	}
	return out, nil
}

// Predict returns the most probable class for each row. Ties go to the
// class listed first.
func (te *TreeEnsemble) Predict(ctx context.Context, rows [][]float64) ([]int, error) {
	probas, err := te.PredictProba(ctx, rows)
	if err != nil {
		return nil, err
	}

	labels := make([]int, len(probas))
	for r, p := range probas {
		best := 0
		for c := 1; c < len(p); c++ {
			if p[c] > p[best] {
				best = c
			}
		}
		labels[r] = te.classes[best]
	}
	return labels, nil
}

func (te *TreeEnsemble) NumFeatures() int { return te.nFeatures }

// Classes returns the class labels in model order.
func (te *TreeEnsemble) Classes() []int {
	return append([]int(nil), te.classes...)
}

func (te *TreeEnsemble) Close() error { return nil }
