package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrJobFileNotFound is returned when no ".yaml", ".yml", or ".json"
// file for the named job exists in dir.
var ErrJobFileNotFound = errors.New("job: config file not found")

var candidateExtensions = []string{".yaml", ".yml", ".json"}

// FindConfigFile locates the on-disk config file for jobName within
// dir, trying the same extensions in the same order the original
// project's CLI did.
func FindConfigFile(dir, jobName string) (string, error) {
	for _, ext := range candidateExtensions {
		path := filepath.Join(dir, jobName+ext)

		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrJobFileNotFound, jobName)
}

// LoadOne reads and validates a single job file, returning its Spec.
// It does not consult a Loader's directory listing, so it can be used
// to inspect one job without paying for a full reload.
func (l *Loader) LoadOne(path string) (Spec, error) {
	return l.loadFile(path)
}

// SetEnabled flips a job file's "enabled" key in place, preserving
// every other key, and rewrites the file as YAML regardless of its
// original extension's serialization — matching the original CLI's
// load-mutate-save round trip through a normalized document.
func SetEnabled(path string, enabled bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read job file %q: %w", path, err)
	}

	var doc map[string]any

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("decode job file %q: %w", path, err)
	}

	if doc == nil {
		doc = make(map[string]any)
	}

	doc["enabled"] = enabled

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode job file %q: %w", path, err)
	}

	err = os.WriteFile(path, out, 0o644)
	if err != nil {
		return fmt.Errorf("write job file %q: %w", path, err)
	}

	return nil
}
