package installer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/rfdeck/appos/internal/shared/errs"
)

// ManifestFile is the manifest's filename inside an app package.
const ManifestFile = "manifest.json"

// Manifest describes one installable app package.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	EntryPoint  string `json:"entry_point"`
	Permissions string `json:"permissions,omitempty"`
	MemoryLimit uint32 `json:"memory_limit,omitempty"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest %s: %w", path, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate confirms the presence of the required manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest missing name: %w", errs.ErrInvalidArgument)
	}
	if m.Version == "" {
		return fmt.Errorf("manifest missing version: %w", errs.ErrInvalidArgument)
	}
	if m.EntryPoint == "" {
		return fmt.Errorf("manifest missing entry_point: %w", errs.ErrInvalidArgument)
	}
	return nil
}

// writeDefaultManifest writes the fallback manifest for bare-script packages.
func writeDefaultManifest(dir string) error {
	m := Manifest{
		Name:        "Sample App",
		Version:     "1.0.0",
		Author:      "Unknown",
		EntryPoint:  "index.js",
		Permissions: "rf.receive,ui.create",
	}
	data, err := sonic.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}
