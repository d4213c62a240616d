// Package config loads settings.json into a typed struct, with defaults
// applied before unmarshal and any invalid value treated as a fatal
// startup error.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Settings is the parsed form of settings.json.
type Settings struct {
	ListenEndpoint string `json:"listen_endpoint"`
}

const defaultListenEndpoint = "127.0.0.1:8080"

// Load reads settings.json from path, applying defaults for any field
// absent from the file. A missing file is not an error — the default
// settings are returned, matching a fresh install with no settings.json
// yet written. A non-empty TEK_S3_LISTEN_ENDPOINT overrides whatever
// listen_endpoint the file or the default gives.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load() // optional dev .env overrides; absence is not an error

	s := &Settings{ListenEndpoint: defaultListenEndpoint}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode settings file: %w", err)
		}
	}
	if v := os.Getenv("TEK_S3_LISTEN_ENDPOINT"); v != "" {
		s.ListenEndpoint = v
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// validate rejects a listen_endpoint that is neither host:port nor,
// on Linux, unix:<octal-mode>.
func validate(s *Settings) error {
	if s.ListenEndpoint == "" {
		return fmt.Errorf("listen_endpoint must not be empty")
	}
	if strings.HasPrefix(s.ListenEndpoint, "unix:") {
		if runtime.GOOS != "linux" {
			return fmt.Errorf("listen_endpoint %q: unix sockets are Linux-only", s.ListenEndpoint)
		}
		mode := strings.TrimPrefix(s.ListenEndpoint, "unix:")
		if _, err := strconv.ParseUint(mode, 8, 32); err != nil {
			return fmt.Errorf("listen_endpoint %q: invalid octal mode: %w", s.ListenEndpoint, err)
		}
		return nil
	}
	host, port, err := splitHostPort(s.ListenEndpoint)
	if err != nil {
		return fmt.Errorf("listen_endpoint %q: %w", s.ListenEndpoint, err)
	}
	_ = host
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("listen_endpoint %q: invalid port: %w", s.ListenEndpoint, err)
	}
	return nil
}

func splitHostPort(endpoint string) (host, port string, err error) {
	idx := strings.LastIndex(endpoint, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing ':port'")
	}
	return endpoint[:idx], endpoint[idx+1:], nil
}

// IsUnixSocket reports whether a listen_endpoint names a Linux unix
// socket path rather than a host:port pair, and returns its octal mode.
func IsUnixSocket(endpoint string) (mode uint32, ok bool) {
	if !strings.HasPrefix(endpoint, "unix:") {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(endpoint, "unix:"), 8, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
