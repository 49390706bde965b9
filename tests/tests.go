// Package tests contains shared helpers for the integration suites.
package tests

import (
	"errors"
	"os"
	"path/filepath"
)

// FindProjectRoot walks up from the working directory until it finds the
// directory containing go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("project root not found")
		}
		dir = parent
	}
}
