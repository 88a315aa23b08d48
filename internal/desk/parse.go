package desk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseFeatureList parses a comma separated list such as "1, 2.5, -3".
func ParseFeatureList(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("no features given")
	}

	parts := strings.Split(s, ",")
	features := make([]float64, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("feature %d: %q is not a number", i, strings.TrimSpace(p))
		}
		features = append(features, v)
	}
	return features, nil
}

// FeatureNames are the training dataset's column names, used as the header of
// CSV exports.
var FeatureNames = func() []string {
	names := make([]string, 0, 29)
	for i := 1; i <= 28; i++ {
		names = append(names, fmt.Sprintf("V%d", i))
	}
	return append(names, "Amount")
}()
