package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRootName is the directory under the user's home that holds every
// per-login database and the local keyring.
const DefaultRootName = ".sealnote"

// DefaultRoot returns ~/.sealnote.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultRootName), nil
}

// KeyringPath returns the default location of the local keyring under root.
func KeyringPath(root string) string {
	return filepath.Join(root, "keyring.db")
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
// It relies on the fact that these commands build binaries in temporary directories.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}

	if strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir())) {
		return true
	}

	return strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe")
}

// ResolveRoot determines the actual data root based on safety rules.
// If forceTemp is set, the root is re-rooted into a temporary directory
// unless it already lives there (e.g. t.TempDir()).
func ResolveRoot(userPath string, forceTemp bool) string {
	if !forceTemp {
		if userPath == "" {
			return "."
		}
		return userPath
	}

	clean := filepath.Clean(userPath)
	rel, err := filepath.Rel(os.TempDir(), clean)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && filepath.IsAbs(clean) {
		return clean
	}

	sub := filepath.Base(clean)
	if userPath == "" || sub == "." || sub == string(os.PathSeparator) {
		sub = "default"
	}
	return filepath.Join(os.TempDir(), "sealnote-dev", sub)
}
