// Package resource resolves files shipped alongside the binary
package resource

import (
	"os"
	"path/filepath"
)

// executable is replaced in tests
var executable = os.Executable

// Path resolves rel against the directory of the running executable when
// the file exists there, else against the working directory. Absolute
// paths are returned unchanged
func Path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}

	if dir, err := ExecutableDir(); err == nil {
		candidate := filepath.Join(dir, rel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, rel)
	}
	return rel
}

// ExecutableDir returns the directory holding the running binary with
// symlinks resolved
func ExecutableDir() (string, error) {
	exe, err := executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
