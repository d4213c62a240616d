package catalog

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/logger"
)

// persistedState is the exact on-disk schema of state.json: account
// tokens as an array of opaque strings (re-parsed on load via whatever
// token-info accessor steamcm exposes), apps as app_id -> owned depot IDs,
// and depot keys as depot_id -> base64 32-byte key.
type persistedState struct {
	Timestamp int64               `json:"timestamp"`
	Accounts  []string            `json:"accounts"`
	Apps      map[string][]uint32 `json:"apps"`
	DepotKeys map[string]string   `json:"depot_keys"`
}

// Sealer wraps/unwraps the state file body at rest. Satisfied by
// pkg/seal.Sealer; nil means the file is read/written as plain JSON,
// which is all the unit tests in this package need.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Unseal(ciphertext []byte) ([]byte, error)
}

// Load reads state.json from path, returning an empty Store (not an error)
// if the file does not exist yet, since that's the expected first-run
// state on a fresh install. If sealer is non-nil, the file's contents are
// unsealed before being parsed as JSON.
//
// Each token is resolved through parseToken up front rather than waiting
// for a CM sign-in: a malformed token (parseToken reports !ok, SteamID 0)
// is dropped with an "invalid" log, and one that parses fine but has
// already expired is dropped with an "expired" log, matching the
// invariant that an account is never loaded with a token already known
// to be dead.
func Load(path string, sealer Sealer, parseToken func(token string) (steamcm.TokenInfo, bool)) (*Store, error) {
	s := NewStore()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if sealer != nil {
		data, err = sealer.Unseal(data)
		if err != nil {
			return nil, fmt.Errorf("unseal state file: %w", err)
		}
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	now := time.Now().Unix()
	for _, tok := range ps.Accounts {
		info, ok := parseToken(tok)
		if !ok || info.SteamID == 0 {
			logger.Warn("account_token_invalid", "token", tok)
			continue
		}
		if info.Expires < now {
			logger.Warn("account_token_expired", "steam_id", info.SteamID)
			continue
		}
		s.Accounts[info.SteamID] = NewAccount(info.SteamID, tok, TokenInfo{
			SteamID:   info.SteamID,
			Renewable: info.Renewable,
			Expires:   info.Expires,
		})
	}
	for appIDStr, depotIDs := range ps.Apps {
		appID, err := parseUint32(appIDStr)
		if err != nil {
			continue
		}
		app := &App{AppID: appID, Depots: map[uint32]*Depot{}}
		for _, depotID := range depotIDs {
			app.Depots[depotID] = &Depot{DepotID: depotID}
		}
		s.Apps[appID] = app
	}
	for depotIDStr, keyB64 := range ps.DepotKeys {
		depotID, err := parseUint32(depotIDStr)
		if err != nil {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil || len(raw) != 32 {
			continue
		}
		var key DepotKey
		copy(key[:], raw)
		s.DepotKeys[depotID] = key
	}
	s.dirty = true
	return s, nil
}

// Save writes state.json atomically: serialize to a temp file in the same
// directory, fsync, then rename over the target so a crash mid-write never
// leaves a truncated state file. If sealer is non-nil, the serialized JSON
// is sealed before being written.
func (s *Store) Save(path string, sealer Sealer) error {
	s.mu.RLock()
	ps := persistedState{
		Timestamp: time.Now().Unix(),
		Accounts:  make([]string, 0, len(s.Accounts)),
		Apps:      map[string][]uint32{},
		DepotKeys: map[string]string{},
	}
	for _, a := range s.Accounts {
		ps.Accounts = append(ps.Accounts, a.Token)
	}
	for appID, app := range s.Apps {
		depotIDs := make([]uint32, 0, len(app.Depots))
		for depotID := range app.Depots {
			depotIDs = append(depotIDs, depotID)
		}
		ps.Apps[fmt.Sprintf("%d", appID)] = depotIDs
	}
	for depotID, key := range s.DepotKeys {
		ps.DepotKeys[fmt.Sprintf("%d", depotID)] = base64.StdEncoding.EncodeToString(key[:])
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	if sealer != nil {
		data, err = sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("seal state file: %w", err)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename state file into place: %w", err)
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
