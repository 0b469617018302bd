package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"atbb-scraper/models"
)

// WriteManifest writes the run result, including every shot, as indented
// JSON. Returns the number of shots written successfully.
func WriteManifest(filename string, run models.RunResult) (int, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return 0, fmt.Errorf("create manifest dir: %w", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(run); err != nil {
		return 0, err
	}

	return run.Gallery.Captured(), nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(filename string) (models.RunResult, error) {
	var run models.RunResult
	raw, err := os.ReadFile(filename)
	if err != nil {
		return run, err
	}
	if err := json.Unmarshal(raw, &run); err != nil {
		return run, fmt.Errorf("parse manifest %s: %w", filename, err)
	}
	return run, nil
}
