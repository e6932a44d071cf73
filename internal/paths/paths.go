// Package paths provides centralized path resolution for wamcp.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// All functions return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigBaseName is the config file name without extension.
const ConfigBaseName = "wamcp"

// ConfigExtensions are searched in order when looking for a config file.
var ConfigExtensions = []string{".json", ".toml", ".yaml", ".yml"}

// BaseDir returns the wamcp base directory (~/.wamcp).
// WAMCP_HOME overrides it.
func BaseDir() (string, error) {
	if dir := os.Getenv("WAMCP_HOME"); dir != "" {
		return ExpandTilde(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".wamcp"), nil
}

// DataPath returns a path within the wamcp data directory (~/.wamcp/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active config file path.
// Priority: ./wamcp.<ext> (current dir) > ~/.wamcp/wamcp.<ext>, extensions in
// ConfigExtensions order.
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	// Check local first
	if p := findConfigIn("."); p != "" {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	// Check global
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	if p := findConfigIn(base); p != "" {
		return p, nil
	}

	// No config found - valid state
	return "", nil
}

func findConfigIn(dir string) string {
	for _, ext := range ConfigExtensions {
		p := filepath.Join(dir, ConfigBaseName+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultConfigPath returns the default location for new configs (~/.wamcp/wamcp.json).
func DefaultConfigPath() (string, error) {
	return DataPath(ConfigBaseName + ".json")
}

// WhatsAppDBPath returns the default device store path (~/.wamcp/whatsapp.db).
func WhatsAppDBPath() (string, error) {
	return DataPath("whatsapp.db")
}

// PidFilePath returns the daemon pid file path (~/.wamcp/wamcp.pid).
func PidFilePath() (string, error) {
	return DataPath(ConfigBaseName + ".pid")
}

// LogFilePath returns the daemon log file path (~/.wamcp/wamcp.log).
func LogFilePath() (string, error) {
	return DataPath(ConfigBaseName + ".log")
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
