// Package mltest provides model artifacts for tests.
package mltest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// ThresholdForest returns a two-tree forest export over nFeatures inputs.
//
// The first tree votes fraud when feature 0 is above 0.5. The second tree
// leans towards fraud when the last feature (the amount) is above 100.
// An all-zero row is therefore not fraud, and a row with feature 0 set to 1
// is fraud.
func ThresholdForest(nFeatures int) []byte {
	forest := map[string]any{
		"format":     "sklearn-forest",
		"n_features": nFeatures,
		"classes":    []int{0, 1},
		"estimators": []map[string]any{
			{
				"children_left":  []int{1, -1, -1},
				"children_right": []int{2, -1, -1},
				"feature":        []int{0, -2, -2},
				"threshold":      []float64{0.5, -2, -2},
				"value":          [][]float64{{10, 10}, {10, 0}, {0, 10}},
			},
			{
				"children_left":  []int{1, -1, -1},
				"children_right": []int{2, -1, -1},
				"feature":        []int{nFeatures - 1, -2, -2},
				"threshold":      []float64{100, -2, -2},
				"value":          [][]float64{{9, 11}, {8, 2}, {1, 9}},
			},
		},
	}

	data, err := json.Marshal(forest)
	if err != nil {
		panic(err)
	}
	return data
}

// WriteForest writes ThresholdForest(nFeatures) to dir and returns its path.
func WriteForest(t testing.TB, dir string, nFeatures int) string {
	t.Helper()
	path := filepath.Join(dir, "fraud_model.json")
	if err := os.WriteFile(path, ThresholdForest(nFeatures), 0o600); err != nil {
		t.Fatalf("write forest: %v", err)
	}
	return path
}

// Row returns an nFeatures wide row of zeros with the given overrides.
func Row(nFeatures int, set map[int]float64) []float64 {
	row := make([]float64, nFeatures)
	for i, v := range set {
		row[i] = v
	}
	return row
}
