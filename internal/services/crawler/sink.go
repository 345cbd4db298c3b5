package crawler

import (
	"fmt"
	"os"
	"path/filepath"
)

// writePage writes markdown content to its output path, creating parent
// directories as needed.
func writePage(path, markdown string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
