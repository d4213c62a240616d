package catalog

import (
	"sync"
	"sync/atomic"
)

// Store is the single in-memory source of truth for the catalog. Mutation
// happens under mu, from whichever goroutine owns the account or depot
// being touched; internal/loop periodically rebuilds the manifest views.
//
// The manifest buffers are not guarded by mu at all: they're copy-on-write,
// published via an atomic pointer swap in RebuildIfDirty. An HTTP handler
// streaming a response just calls ManifestJSON/ManifestBinary once at the
// start of the send and keeps using that pointer — no lock held for the
// duration of the send, and a concurrent rebuild can never block on it or
// corrupt it, since the old buffer is never touched again once replaced.
type Store struct {
	mu sync.RWMutex

	Accounts  map[uint64]*Account
	Apps      map[uint32]*App
	DepotKeys map[uint32]DepotKey

	dirty      bool // manifest buffers stale, rebuild before next serve
	stateDirty bool // state.json stale, persist on next flush tick

	json   atomic.Pointer[ManifestBuffer]
	binary atomic.Pointer[ManifestBuffer]

	running atomic.Bool // SETUP (false) -> RUNNING (true), one-way
}

// SetRunning flips the global status from SETUP to RUNNING. Called once,
// when every loaded account has completed its initial harvest pass (or
// immediately at startup if there were none to wait for).
func (s *Store) SetRunning() { s.running.Store(true) }

// Running reports whether the global status has left SETUP. HTTP handlers
// return 503 for every route while this is false.
func (s *Store) Running() bool { return s.running.Load() }

func NewStore() *Store {
	s := &Store{
		Accounts:  map[uint64]*Account{},
		Apps:      map[uint32]*App{},
		DepotKeys: map[uint32]DepotKey{},
	}
	s.json.Store(&ManifestBuffer{})
	s.binary.Store(&ManifestBuffer{})
	return s
}

// ManifestJSON returns the current JSON manifest snapshot. The caller may
// hold onto it for as long as it needs; a later rebuild publishes a new
// buffer rather than mutating this one.
func (s *Store) ManifestJSON() *ManifestBuffer { return s.json.Load() }

// ManifestBinary returns the current binary manifest snapshot, with the
// same no-lock, hold-as-long-as-you-like contract as ManifestJSON.
func (s *Store) ManifestBinary() *ManifestBuffer { return s.binary.Load() }

// AddAccount registers a newly signed-in account. Callers hold no lock;
// Store takes its own.
func (s *Store) AddAccount(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Accounts[a.SteamID] = a
}

// Account looks up an account by SteamID.
func (s *Store) Account(steamID uint64) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.Accounts[steamID]
	return a, ok
}

// RemoveAccount deletes an account and cascades the removal through every
// depot ownership list and app it touched, repointing NextAcc so it never
// indexes past the shrunk Accounts slice. This is the only path that
// mutates Depot.Accounts outside of AssignDepotToAccount, which keeps the
// "NextAcc always valid" invariant centralized in one place.
func (s *Store) RemoveAccount(steamID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Accounts, steamID)

	for appID, app := range s.Apps {
		for depotID, dep := range app.Depots {
			dep.Accounts = removeUint64(dep.Accounts, steamID)
			if len(dep.Accounts) == 0 {
				delete(app.Depots, depotID)
				delete(s.DepotKeys, depotID)
				continue
			}
			if dep.NextAcc >= len(dep.Accounts) {
				dep.NextAcc = 0
			}
		}
		if len(app.Depots) == 0 {
			delete(s.Apps, appID)
		}
	}
	s.dirty = true
	s.stateDirty = true
}

func removeUint64(s []uint64, v uint64) []uint64 {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// UpsertApp creates or updates an app's name and access token. It never
// touches Depots; depot membership is managed by AssignDepotToAccount.
func (s *Store) UpsertApp(appID uint32, name string, accessToken uint64) *App {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.Apps[appID]
	if !ok {
		app = &App{AppID: appID, Depots: map[uint32]*Depot{}}
		s.Apps[appID] = app
	}
	app.Name = name
	app.PICSAccessToken = accessToken
	return app
}

// AssignDepotToAccount records that steamID owns depotID under appID,
// appending to the depot's round-robin ownership list if not already
// present. Invariant: every depot reachable from Apps has at least one
// account once this returns.
func (s *Store) AssignDepotToAccount(appID, depotID uint32, steamID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.Apps[appID]
	if !ok {
		app = &App{AppID: appID, Depots: map[uint32]*Depot{}}
		s.Apps[appID] = app
	}
	dep, ok := app.Depots[depotID]
	if !ok {
		dep = &Depot{DepotID: depotID}
		app.Depots[depotID] = dep
	}
	for _, acc := range dep.Accounts {
		if acc == steamID {
			return
		}
	}
	dep.Accounts = append(dep.Accounts, steamID)
	s.dirty = true
	s.stateDirty = true
}

// SetDepotKey records a harvested depot key.
func (s *Store) SetDepotKey(depotID uint32, key DepotKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DepotKeys[depotID] = key
	s.dirty = true
	s.stateDirty = true
}

// NextAccountForDepot returns the account that should service the next MRC
// request for depotID, round-robining NextAcc forward. Returns ok=false if
// the depot has no owning accounts (should not happen given the
// no-empty-depot invariant, but callers must not assume it).
func (s *Store) NextAccountForDepot(appID, depotID uint32) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.Apps[appID]
	if !ok {
		return 0, false
	}
	dep, ok := app.Depots[depotID]
	if !ok || len(dep.Accounts) == 0 {
		return 0, false
	}
	acc := dep.Accounts[dep.NextAcc]
	dep.NextAcc = (dep.NextAcc + 1) % len(dep.Accounts)
	return acc, true
}

// MarkManifestDirty flags the manifest buffers for regeneration without
// touching state.json dirtiness (used for Ready-flag flips, which affect
// the served catalog but not persisted state).
func (s *Store) MarkManifestDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// DirtyFlags reports and clears the two independent dirty bits. Callers
// that need to act differently on failure (e.g. retry a failed save next
// tick) should use PeekDirty/ClearStateDirty instead.
func (s *Store) DirtyFlags() (manifest, state bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	manifest, state = s.dirty, s.stateDirty
	s.dirty, s.stateDirty = false, false
	return
}

// PeekDirty reports the two dirty bits without clearing them.
// RebuildIfDirty clears the manifest bit itself once it has actually
// rebuilt; ClearStateDirty clears the state bit once a save succeeds.
func (s *Store) PeekDirty() (manifest, state bool) {
	return s.peekDirty()
}

// ClearStateDirty clears the state.json dirty bit after a successful save.
func (s *Store) ClearStateDirty() {
	s.mu.Lock()
	s.stateDirty = false
	s.mu.Unlock()
}

// AllReady reports whether every loaded account has completed its initial
// harvest pass, the gate for SETUP -> RUNNING.
func (s *Store) AllReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.Accounts {
		if !a.Ready {
			return false
		}
	}
	return true
}

func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }
