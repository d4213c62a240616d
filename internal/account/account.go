// Package account drives the account lifecycle: one goroutine per account
// steps it through connect -> sign-in -> license fetch -> PICS -> key
// harvest, schedules token renewal, and reaps the account on invalidation.
// Each account gets its own goroutine plus the catalog Store's own
// locking, rather than a single cooperative event loop — the CM client
// calls block a worker goroutine instead of returning a future to a
// shared loop, which keeps per-client callback order (each account's
// goroutine only ever issues one request at a time).
package account

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teknology-hub/tek-s3/internal/builder"
	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/logger"
	"github.com/teknology-hub/tek-s3/pkg/metrics"
)

const (
	renewBeforeExpiry = 7 * 24 * time.Hour
	keyBurstSize      = 5
	keyRequestTimeout = 3 * time.Second
	picsTimeout       = 10 * time.Second
	signInTimeout     = 3 * time.Second
)

// RemovalReason classifies why an account left the fleet; it is passed to
// the OnRemoved callback.
type RemovalReason int

const (
	RemovalNone RemovalReason = iota
	RemovalInvalidCredentials
	RemovalFatal
	// RemovalReplaced marks an account dropped because a fresh sign-in for
	// the same SteamID produced a more renewable token.
	RemovalReplaced
)

// Engine owns the fleet of per-account workers and the catalog they feed.
type Engine struct {
	store   *catalog.Store
	dialer  steamcm.Dialer
	builder *builder.Builder

	limiter *rate.Limiter // rate-limits depot-key requests fleet-wide: bursts of up to keyBurstSize, refilled at keyBurstSize per keyRequestTimeout

	onReady   func()             // called once every loaded account has reported readiness
	onRemoved func(steamID uint64, reason RemovalReason)
	readyCh   chan uint64

	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc // steamID -> cancel for its worker goroutine
}

func NewEngine(store *catalog.Store, dialer steamcm.Dialer, b *builder.Builder) *Engine {
	return &Engine{
		store:   store,
		dialer:  dialer,
		builder: b,
		limiter: rate.NewLimiter(rate.Every(keyRequestTimeout/keyBurstSize), keyBurstSize),
		readyCh: make(chan uint64, 64),
		cancels: map[uint64]context.CancelFunc{},
	}
}

// OnReady registers a callback invoked whenever an account's first
// readiness leaves every account in the store ready, and by Run at startup
// when the store holds no accounts. It can therefore fire more than once,
// e.g. again after a newly signed-in account becomes ready.
func (e *Engine) OnReady(f func()) { e.onReady = f }

// OnRemoved registers a callback invoked whenever an account is reaped.
func (e *Engine) OnRemoved(f func(steamID uint64, reason RemovalReason)) { e.onRemoved = f }

// Run starts a worker for every account currently in the store (loaded
// from state.json at startup) and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.store.RLock()
	accounts := make([]*catalog.Account, 0, len(e.store.Accounts))
	for _, a := range e.store.Accounts {
		accounts = append(accounts, a)
	}
	e.store.RUnlock()

	metrics.AccountsTotal.Set(float64(len(accounts)))
	for _, a := range accounts {
		e.startWorker(ctx, a)
	}

	// An empty fleet is trivially "every account ready": num_ready_accs
	// (0) == len(accounts) (0) from the start, so there's no readiness
	// event to wait on — the cold-start-with-no-accounts case enters
	// RUNNING immediately rather than hanging in SETUP forever.
	if len(accounts) == 0 && e.onReady != nil {
		e.onReady()
	}

	<-ctx.Done()
}

// AddNew starts a worker for an account that just completed sign-in over
// the WebSocket protocol, for a SteamID with no existing worker. Use
// ReplaceOrAdd instead when the SteamID might already be in the fleet.
func (e *Engine) AddNew(ctx context.Context, a *catalog.Account) {
	e.store.AddAccount(a)
	metrics.AccountsTotal.Inc()
	e.startWorker(ctx, a)
}

// ReplaceOrAdd merges a freshly signed-in account into the fleet: a brand
// new SteamID starts a worker outright; for one already present, the new
// token replaces the existing one (cancelling its worker first) only if
// the new token is renewable and the existing one isn't — otherwise the
// new token is discarded. Reports whether the new account ended up live.
func (e *Engine) ReplaceOrAdd(ctx context.Context, a *catalog.Account) bool {
	existing, ok := e.store.Account(a.SteamID)
	if !ok {
		e.AddNew(ctx, a)
		return true
	}
	if !a.TokenInfo.Renewable || existing.TokenInfo.Renewable {
		return false
	}
	e.cancelWorker(existing.SteamID)
	e.remove(existing, RemovalReplaced)
	e.AddNew(ctx, a)
	return true
}

func (e *Engine) startWorker(ctx context.Context, a *catalog.Account) {
	actx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[a.SteamID] = cancel
	e.mu.Unlock()
	go e.runAccount(actx, a)
}

func (e *Engine) cancelWorker(steamID uint64) {
	e.mu.Lock()
	cancel, ok := e.cancels[steamID]
	delete(e.cancels, steamID)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) runAccount(ctx context.Context, a *catalog.Account) {
	client := e.dialer.Dial(a.SteamID)
	defer client.Disconnect()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := client.Connect(ctx); err != nil {
			logger.Warn("account_connect_failed", "steam_id", a.SteamID, "error", err)
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		if e.maybeRenew(ctx, a, client) {
			// Renewal happened; the connection is torn down and a fresh
			// one is dialed on the next loop iteration: store new token,
			// schedule next renew, disconnect.
			client.Disconnect()
			client = e.dialer.Dial(a.SteamID)
			continue
		}

		info, err := e.signIn(ctx, a, client)
		if err != nil {
			switch classifyErr(err) {
			case removalInvalid:
				e.remove(a, RemovalInvalidCredentials)
				return
			case removalFatal:
				logger.Error("account_fatal", "steam_id", a.SteamID, "error", err)
				e.remove(a, RemovalFatal)
				return
			default:
				if !sleepOrDone(ctx, time.Second) {
					return
				}
				continue
			}
		}
		a.TokenInfo = catalog.TokenInfo(info)

		if err := e.harvest(ctx, a, client); err != nil {
			logger.Warn("account_harvest_failed", "steam_id", a.SteamID, "error", err)
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		// Steady state: wait until it's time to renew, or the context is
		// cancelled.
		waitRenew(ctx, a)
	}
}

func (e *Engine) maybeRenew(ctx context.Context, a *catalog.Account, client steamcm.Client) bool {
	if !a.TokenInfo.Renewable {
		return false
	}
	renewAt := time.Unix(a.TokenInfo.Expires, 0).Add(-renewBeforeExpiry)
	if time.Now().Before(renewAt) {
		return false
	}
	rctx, cancel := context.WithTimeout(ctx, signInTimeout)
	defer cancel()
	newToken, info, err := client.RenewToken(rctx, a.Token)
	if err != nil {
		logger.Warn("account_renew_failed", "steam_id", a.SteamID, "error", err)
		return false
	}
	a.Token = newToken
	a.TokenInfo = catalog.TokenInfo(info)
	e.store.MarkManifestDirty()
	return true
}

func (e *Engine) signIn(ctx context.Context, a *catalog.Account, client steamcm.Client) (steamcm.TokenInfo, error) {
	sctx, cancel := context.WithTimeout(ctx, signInTimeout)
	defer cancel()
	return client.SignIn(sctx, a.Token)
}

// harvest runs the full license -> package -> access-token -> app-info ->
// key-harvest pipeline for one pass. Readiness flips as soon as the
// app-info step completes, independent of how the subsequent key-harvest
// bursts turn out: a stalled or failing harvestKeys must not hold back
// SETUP -> RUNNING or hide the depots this account already reported.
func (e *Engine) harvest(ctx context.Context, a *catalog.Account, client steamcm.Client) error {
	pctx, cancel := context.WithTimeout(ctx, picsTimeout)
	defer cancel()

	licenses, err := client.GetLicenses(pctx)
	if err != nil {
		return err
	}
	if len(licenses) == 0 {
		e.markReady(a)
		return nil
	}

	missing, err := e.builder.IngestLicenses(pctx, client, a, licenses)
	if err != nil {
		return err
	}
	e.markReady(a)

	return e.harvestKeys(ctx, a, client, missing)
}

// markReady flags a as having completed its first app-info pass, publishes
// the resulting depot admissions, and fires onReady once every account in
// the store has reached this point. Idempotent, since harvest re-runs the
// app-info step on every pass, not just the first.
func (e *Engine) markReady(a *catalog.Account) {
	if a.Ready {
		return
	}
	a.Ready = true
	e.store.MarkManifestDirty()
	metrics.AccountsReady.Inc()
	select {
	case e.readyCh <- a.SteamID:
	default:
	}
	if e.onReady != nil && e.store.AllReady() {
		e.onReady()
	}
}

// harvestKeys requests depot keys in bursts of keyBurstSize, resending
// on timeout and tolerating steamcm.ErrBlocked silently.
func (e *Engine) harvestKeys(ctx context.Context, a *catalog.Account, client steamcm.Client, depotIDs []uint32) error {
	depotIDs = sortedUnique(depotIDs)
	for len(depotIDs) > 0 {
		burst := depotIDs
		if len(burst) > keyBurstSize {
			burst = burst[:keyBurstSize]
		}
		depotIDs = depotIDs[len(burst):]

		remaining := burst
		for len(remaining) > 0 {
			if err := e.limiter.WaitN(ctx, len(remaining)); err != nil {
				return err
			}
			kctx, cancel := context.WithTimeout(ctx, keyRequestTimeout)
			results, err := client.GetDepotKeys(kctx, remaining)
			cancel()
			if err == steamcm.ErrTimeout {
				continue // resend the same burst
			}
			if err != nil {
				return err
			}
			var retry []uint32
			for _, r := range results {
				switch {
				case r.Err == nil:
					e.store.SetDepotKey(r.DepotID, catalog.DepotKey(r.Key))
				case r.Err == steamcm.ErrBlocked:
					// tolerated silently
				case r.Err == steamcm.ErrTimeout:
					retry = append(retry, r.DepotID)
				default:
					metrics.DepotKeyHarvestErrors.WithLabelValues(classifyErrLabel(r.Err)).Inc()
					return r.Err
				}
			}
			remaining = retry
		}
	}
	return nil
}

func (e *Engine) remove(a *catalog.Account, reason RemovalReason) {
	if a.Ready {
		metrics.AccountsReady.Dec()
	}
	e.store.RemoveAccount(a.SteamID)
	metrics.AccountsTotal.Dec()
	e.mu.Lock()
	delete(e.cancels, a.SteamID)
	e.mu.Unlock()
	if e.onRemoved != nil {
		e.onRemoved(a.SteamID, reason)
	}
}

type errClass int

const (
	removalTransient errClass = iota
	removalInvalid
	removalFatal
)

func classifyErr(err error) errClass {
	switch err {
	case steamcm.ErrAccessDenied, steamcm.ErrInvalidSignature:
		return removalInvalid
	case steamcm.ErrTimeout, steamcm.ErrServiceUnavailable:
		return removalTransient
	default:
		return removalFatal
	}
}

// classifyErrLabel names an error for the depot-key-harvest-errors metric,
// grouping everything not individually named under "other" rather than
// exploding the label cardinality.
func classifyErrLabel(err error) string {
	switch err {
	case steamcm.ErrAccessDenied:
		return "access_denied"
	case steamcm.ErrAccessTokenDenied:
		return "access_token_denied"
	case steamcm.ErrInvalidSignature:
		return "invalid_signature"
	case steamcm.ErrServiceUnavailable:
		return "service_unavailable"
	case steamcm.ErrMissingToken:
		return "missing_token"
	default:
		return "other"
	}
}

func sortedUnique(ids []uint32) []uint32 {
	seen := map[uint32]struct{}{}
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func waitRenew(ctx context.Context, a *catalog.Account) {
	var d time.Duration
	if a.TokenInfo.Renewable && a.TokenInfo.Expires > 0 {
		renewAt := time.Unix(a.TokenInfo.Expires, 0).Add(-renewBeforeExpiry)
		d = time.Until(renewAt)
		if d <= 0 {
			return
		}
	} else {
		d = time.Hour
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
