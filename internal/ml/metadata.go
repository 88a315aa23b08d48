package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"fraud-detector/internal/common"
)

// Metadata describes a model artifact. It is read from an optional
// "<artifact>.meta.json" sidecar written by whoever produced the artifact.
type Metadata struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Features     []string  `json:"features"`
	NFeatures    int       `json:"n_features"`
	Accuracy     float64   `json:"accuracy"`
	TrainingRows int       `json:"training_rows"`

	ArtifactPath    string    `json:"artifact_path"`
	ArtifactModTime time.Time `json:"artifact_mod_time"`
}

// LoadMetadata reads the sidecar for the artifact at modelPath. A missing
// sidecar is not an error; the returned metadata then only carries the
// artifact's path and modification time.
func LoadMetadata(modelPath string) (*Metadata, error) {
	md := &Metadata{Version: "unknown"}

	data, err := os.ReadFile(modelPath + common.MetadataSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, md); err != nil {
			return nil, fmt.Errorf("parse model metadata: %w", err)
		}
		if md.Version == "" {
			md.Version = "unknown"
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read model metadata: %w", err)
	}

	md.ArtifactPath = modelPath
	if info, err := os.Stat(modelPath); err == nil {
		md.ArtifactModTime = info.ModTime()
	}
	return md, nil
}

// DeclaredWidth is the input width recorded in the metadata, or 0.
func (m *Metadata) DeclaredWidth() int {
	if m.NFeatures > 0 {
		return m.NFeatures
	}
	return len(m.Features)
}

// Age is the time since the artifact file was last written.
func (m *Metadata) Age() time.Duration {
	if m.ArtifactModTime.IsZero() {
		return 0
	}
	return time.Since(m.ArtifactModTime)
}
