package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFiles keeps each namespace in its own JSON object file.
type JSONFiles struct {
	paths map[string]string
}

// NewJSONFiles maps namespaces to file paths.
func NewJSONFiles(paths map[string]string) *JSONFiles {
	return &JSONFiles{paths: paths}
}

func (j *JSONFiles) Name() string { return "json" }

// Path returns the file backing ns.
func (j *JSONFiles) Path(ns string) (string, error) {
	p, ok := j.paths[ns]
	if !ok || p == "" {
		return "", fmt.Errorf("no file configured for cache %q", ns)
	}
	return p, nil
}

func (j *JSONFiles) Load(_ context.Context, ns string) (map[string]string, error) {
	path, err := j.Path(ns)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

// Save writes to a temp file in the same directory and renames it into place.
func (j *JSONFiles) Save(_ context.Context, ns string, entries map[string]string) error {
	path, err := j.Path(ns)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (j *JSONFiles) Clear(_ context.Context, ns string) error {
	path, err := j.Path(ns)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (j *JSONFiles) Close() error { return nil }
