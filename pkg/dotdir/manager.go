// Package dotdir resolves the .genrelay/ directory that holds config.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the genrelay directory.
	DirName = ".genrelay"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .genrelay/ directory.
// Order of precedence is as follows:
//  1. Provided override, created if missing
//  2. Local ./.genrelay/ dir
//  3. Home ~/.genrelay/ dir
//
// When none applies Target returns an empty string and no error.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating genrelay directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if local := filepath.Join(cwd, DirName); isDir(local) {
		return local, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory is not an error: there is simply no target.
		return "", nil
	}
	if global := filepath.Join(home, DirName); isDir(global) {
		return global, nil
	}

	return "", nil
}

// Init creates ./.genrelay/ under dir (or the working directory when dir is
// empty) and returns its absolute path.
func (m *Manager) Init(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = cwd
	}

	target := filepath.Join(dir, DirName)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("creating genrelay directory %s: %w", target, err)
	}
	return filepath.Abs(target)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
