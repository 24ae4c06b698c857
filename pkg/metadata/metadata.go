package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ArtifactMetadata describes one materialized artifact. It is written as a
// sidecar JSON file next to the artifact.
type ArtifactMetadata struct {
	Collection string   `json:"collection"`
	File       string   `json:"file"`
	Rows       int64    `json:"rows"`
	Columns    []string `json:"columns"`
	// SHA256 is the hex digest of the artifact bytes
	SHA256      string    `json:"sha256"`
	SizeBytes   int64     `json:"size_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}

func sidecarPath(artifactPath string) string {
	return artifactPath + ".json"
}

// Save writes the metadata next to artifactPath
func (m *ArtifactMetadata) Save(artifactPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(sidecarPath(artifactPath), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads the metadata of the artifact at artifactPath
func Load(artifactPath string) (*ArtifactMetadata, error) {
	data, err := os.ReadFile(sidecarPath(artifactPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta ArtifactMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// Exists checks if an artifact has metadata
func Exists(artifactPath string) bool {
	_, err := os.Stat(sidecarPath(artifactPath))
	return err == nil
}
