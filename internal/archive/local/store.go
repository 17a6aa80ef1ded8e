// Package local archives snapshots on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/pulseflow/internal/archive"
)

// Config captures the parameters for the local filesystem archive.
type Config struct {
	// BaseDir is the root directory where snapshots are written.
	BaseDir string
	// Prefix is prepended to every snapshot key.
	Prefix string
}

// Store writes snapshots under BaseDir.
type Store struct {
	baseDir string
	prefix  string
}

var _ archive.Store = (*Store)(nil)

// New creates a filesystem-backed archive, creating BaseDir when missing.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	canary := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(canary, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(canary); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}
	return &Store{baseDir: cfg.BaseDir, prefix: cfg.Prefix}, nil
}

// Put writes snap to BaseDir/<key> and returns a file:// URI.
func (s *Store) Put(_ context.Context, snap archive.Snapshot) (string, error) {
	key, err := archive.KeyFor(s.prefix, snap)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if !strings.HasPrefix(fullPath, filepath.Clean(s.baseDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, snap.Data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "file://" + fullPath, nil
}
