package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ArtifactExt is the extension of materialized collection files
const ArtifactExt = ".csv"

// Manager writes artifact files into the output directory
type Manager struct {
	outputDir string
	// one writer per artifact name at a time
	locks sync.Map
}

// NewManager creates a storage manager, creating outputDir if needed
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// PathFor returns the artifact path of a collection
func (m *Manager) PathFor(collection string) string {
	return filepath.Join(m.outputDir, collection+ArtifactExt)
}

// Exists reports whether the collection has an artifact on disk
func (m *Manager) Exists(collection string) bool {
	_, err := os.Stat(m.PathFor(collection))
	return err == nil
}

// Save streams write into a temporary file and renames it over the artifact.
// Readers never observe a partially written file.
func (m *Manager) Save(collection string, write func(w io.Writer) error) (string, error) {
	mu, _ := m.locks.LoadOrStore(collection, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	filename := m.PathFor(collection)
	out, err := os.CreateTemp(m.outputDir, "."+collection+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	err = write(out)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", err
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Chmod(tempFile, 0644); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return filename, nil
}

// Artifact describes one materialized file on disk
type Artifact struct {
	Collection string    `json:"collection"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Modified   time.Time `json:"modified"`
}

// List returns the artifacts in the output directory, sorted by collection
func (m *Manager) List() ([]Artifact, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	out := []Artifact{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ArtifactExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed since ReadDir
			continue
		}
		out = append(out, Artifact{
			Collection: strings.TrimSuffix(name, ArtifactExt),
			Path:       filepath.Join(m.outputDir, name),
			Size:       info.Size(),
			Modified:   info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}
