package server

import (
	"bytes"
	"encoding/json"
)

// FeatureVector is a validated input row of exactly the model's width.
type FeatureVector []float64

var jsonNull = []byte("null")

// isEmptyValue reports whether raw counts as no features at all: null, false,
// zero, "", {} or []. Any other value that is not an array is malformed.
func isEmptyValue(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

// DecodeFeatures validates a request body of the form {"features": [...]}
// against width n. The length is checked before the element types, so a
// wrong-length array is an InvalidInputError whatever it contains, and so is
// a missing or empty features value.
func DecodeFeatures(body []byte, n int) (FeatureVector, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, internalErr("decode request body: %w", err)
	}
	if obj == nil {
		return nil, internalErr("request body is not a JSON object")
	}

	raw, ok := obj["features"]
	if !ok || isEmptyValue(raw) {
		return nil, &InvalidInputError{Expected: n}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, internalErr("features is not an array: %w", err)
	}
	if len(elems) == 0 || len(elems) != n {
		return nil, &InvalidInputError{Expected: n, Got: len(elems)}
	}

	fv := make(FeatureVector, n)
	for i, elem := range elems {
		// null decodes into a float64 without error.
		if bytes.Equal(bytes.TrimSpace(elem), jsonNull) {
			return nil, internalErr("feature %d is null", i)
		}
		if err := json.Unmarshal(elem, &fv[i]); err != nil {
			return nil, internalErr("feature %d is not a number: %w", i, err)
		}
	}
	return fv, nil
}
