package main

import (
	"os"
	"path/filepath"
)

// resolveStateDir resolves the directory state.json and the seal key
// live in: an explicit XDG_STATE_HOME, else $HOME/.local/state (or
// /var/lib for root) on Linux; os.UserCacheDir's per-user local app-data
// on Windows.
func resolveStateDir() (string, error) {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, "tek-s3"), nil
	}
	if isWindows {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "tek-s3"), nil
	}
	if os.Geteuid() == 0 {
		return filepath.Join("/var/lib", "tek-s3"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "tek-s3"), nil
}

// resolveConfigDir resolves the directory settings.json lives in: an
// explicit XDG_CONFIG_HOME, else the platform default config directory.
func resolveConfigDir() (string, error) {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "tek-s3"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tek-s3"), nil
}
