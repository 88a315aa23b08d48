package ml

import (
	"context"
	"testing"

	"fraud-detector/internal/ml/mltest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeEnsemble_Predict(t *testing.T) {
	te, err := ParseTreeEnsemble(mltest.ThresholdForest(29))
	require.NoError(t, err)
	assert.Equal(t, 29, te.NumFeatures())
	assert.Equal(t, []int{0, 1}, te.Classes())

	testCases := []struct {
		name string
		row  []float64
		want int
	}{
		{"all zeros", mltest.Row(29, nil), 0},
		{"first feature high", mltest.Row(29, map[int]float64{0: 1}), 1},
		{"first feature high and large amount", mltest.Row(29, map[int]float64{0: 1, 28: 200}), 1},
		{"large amount only", mltest.Row(29, map[int]float64{28: 200}), 0},
		{"on the threshold goes left", mltest.Row(29, map[int]float64{0: 0.5}), 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			labels, err := te.Predict(context.Background(), [][]float64{tc.row})
			require.NoError(t, err)
			assert.Equal(t, []int{tc.want}, labels)
		})
	}
}

func TestTreeEnsemble_PredictProba(t *testing.T) {
	te, err := ParseTreeEnsemble(mltest.ThresholdForest(29))
	require.NoError(t, err)

	probas, err := te.PredictProba(context.Background(), [][]float64{
		mltest.Row(29, nil),
		mltest.Row(29, map[int]float64{0: 1}),
	})
	require.NoError(t, err)
	require.Len(t, probas, 2)

	assert.InDeltaSlice(t, []float64{0.9, 0.1}, probas[0], 1e-9)
	assert.InDeltaSlice(t, []float64{0.4, 0.6}, probas[1], 1e-9)
}

func TestTreeEnsemble_BatchAndDeterminism(t *testing.T) {
	te, err := ParseTreeEnsemble(mltest.ThresholdForest(5))
	require.NoError(t, err)

	rows := [][]float64{
		{0, 0, 0, 0, 0},
		{1, 0, 0, 0, 0},
		{0, 0, 0, 0, 500},
	}
	first, err := te.Predict(context.Background(), rows)
	require.NoError(t, err)
	second, err := te.Predict(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 0}, first)
	assert.Equal(t, first, second)
}

func TestTreeEnsemble_WrongWidth(t *testing.T) {
	te, err := ParseTreeEnsemble(mltest.ThresholdForest(29))
	require.NoError(t, err)

	_, err = te.Predict(context.Background(), [][]float64{make([]float64, 28)})
	assert.ErrorContains(t, err, "model expects 29")
}

func TestTreeEnsemble_CancelledContext(t *testing.T) {
	te, err := ParseTreeEnsemble(mltest.ThresholdForest(3))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = te.Predict(ctx, [][]float64{{0, 0, 0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTreeEnsemble_TieGoesToFirstClass(t *testing.T) {
	data := []byte(`{
		"format": "sklearn-forest", "n_features": 1, "classes": [0, 1],
		"estimators": [{"children_left": [-1], "children_right": [-1], "feature": [-2],
			"threshold": [-2], "value": [[5, 5]]}]
	}`)
	te, err := ParseTreeEnsemble(data)
	require.NoError(t, err)

	labels, err := te.Predict(context.Background(), [][]float64{{42}})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, labels)
}

func TestTreeEnsemble_Float32Comparison(t *testing.T) {
	// float32(0.3) rounds up above this threshold while float64 0.3 is below it.
	data := []byte(`{
		"format": "sklearn-forest", "n_features": 1, "classes": [0, 1],
		"estimators": [{"children_left": [1, -1, -1], "children_right": [2, -1, -1],
			"feature": [0, -2, -2], "threshold": [0.3000000001, -2, -2],
			"value": [[1, 1], [1, 0], [0, 1]]}]
	}`)
	te, err := ParseTreeEnsemble(data)
	require.NoError(t, err)

	labels, err := te.Predict(context.Background(), [][]float64{{0.3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, labels)
}

func TestTreeEnsemble_NonBinaryClasses(t *testing.T) {
	data := []byte(`{
		"format": "sklearn-forest", "n_features": 1, "classes": [3, 7],
		"estimators": [{"children_left": [-1], "children_right": [-1], "feature": [-2],
			"threshold": [-2], "value": [[1, 4]]}]
	}`)
	te, err := ParseTreeEnsemble(data)
	require.NoError(t, err)

	labels, err := te.Predict(context.Background(), [][]float64{{0}})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, labels)
}

func TestParseTreeEnsemble_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not json", `{`, "parse forest"},
		{"wrong format", `{"format": "onnx"}`, "unexpected forest format"},
		{"no width", `{"format": "sklearn-forest", "classes": [0, 1], "estimators": [{}]}`, "n_features"},
		{"no classes", `{"format": "sklearn-forest", "n_features": 2, "estimators": [{}]}`, "no classes"},
		{"no estimators", `{"format": "sklearn-forest", "n_features": 2, "classes": [0, 1]}`, "no estimators"},
		{"empty tree", `{"format": "sklearn-forest", "n_features": 2, "classes": [0, 1], "estimators": [{}]}`, "empty tree"},
		{
			"length mismatch",
			`{"format": "sklearn-forest", "n_features": 2, "classes": [0, 1], "estimators": [{
				"children_left": [-1], "children_right": [-1, -1], "feature": [-2],
				"threshold": [-2], "value": [[1, 0]]}]}`,
			"different lengths",
		},
		{
			"one child",
			`{"format": "sklearn-forest", "n_features": 2, "classes": [0, 1], "estimators": [{
				"children_left": [1, -1], "children_right": [-1, -1], "feature": [0, -2],
				"threshold": [0, -2], "value": [[1, 0], [1, 0]]}]}`,
			"exactly one child",
		},
		{
			"cycle",
			`{"format": "sklearn-forest", "n_features": 2, "classes": [0, 1], "estimators": [{
				"children_left": [1, 0, -1], "children_right": [2, 2, -1], "feature": [0, 0, -2],
				"threshold": [0, 0, -2], "value": [[1, 0], [1, 0], [1, 0]]}]}`,
			"out of range",
		},
		{
			"feature out of range",
			`{"format": "sklearn-forest", "n_features": 2, "classes": [0, 1], "estimators": [{
				"children_left": [1, -1, -1], "children_right": [2, -1, -1], "feature": [5, -2, -2],
				"threshold": [0, -2, -2], "value": [[1, 0], [1, 0], [0, 1]]}]}`,
			"feature 5",
		},
		{
			"class count mismatch",
			`{"format": "sklearn-forest", "n_features": 2, "classes": [0, 1], "estimators": [{
				"children_left": [-1], "children_right": [-1], "feature": [-2],
				"threshold": [-2], "value": [[1, 0, 0]]}]}`,
			"class values",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTreeEnsemble([]byte(tc.data))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
