package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// NoScenariosError is returned when a path holds no scenario files.
type NoScenariosError struct {
	Path string
}

// Error implements the error interface.
func (e *NoScenariosError) Error() string {
	return fmt.Sprintf("no scenario files (*.yaml, *.yml) found in %s", e.Path)
}

// FindScenarios resolves path to scenario files. A file is returned as is;
// a directory yields its *.yaml and *.yml files in name order.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, fmt.Errorf("scenario path: %w", err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, &NoScenariosError{Path: path}
	}
	slices.Sort(files)
	return files, nil
}
