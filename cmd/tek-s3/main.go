package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/teknology-hub/tek-s3/internal/account"
	"github.com/teknology-hub/tek-s3/internal/builder"
	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/config"
	"github.com/teknology-hub/tek-s3/internal/httpapi"
	"github.com/teknology-hub/tek-s3/internal/loop"
	"github.com/teknology-hub/tek-s3/internal/mrc"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/banner"
	"github.com/teknology-hub/tek-s3/pkg/logger"
	"github.com/teknology-hub/tek-s3/pkg/metrics"
	"github.com/teknology-hub/tek-s3/pkg/picscache"
	"github.com/teknology-hub/tek-s3/pkg/seal"
	"github.com/teknology-hub/tek-s3/pkg/shutdown"
)

const isWindows = runtime.GOOS == "windows"

var (
	version = "dev"
	commit  = "none"
)

func main() {
	stateDir, err := resolveStateDir()
	if err != nil {
		shutdown.Fatal("resolve state dir", err)
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		shutdown.Fatal("create state dir", err)
	}

	configDir, err := resolveConfigDir()
	if err != nil {
		shutdown.Fatal("resolve config dir", err)
	}
	settings, err := config.Load(filepath.Join(configDir, "settings.json"))
	if err != nil {
		shutdown.Fatal("load settings", err)
	}

	logger.InitWithLevel("", "")
	logger.Info("starting", "version", version, "commit", commit, "state_dir", stateDir)

	sealer, err := seal.Open(context.Background(), filepath.Join(stateDir, "seal.key"))
	if err != nil {
		shutdown.Fatal("open seal key", err)
	}

	store, err := catalog.Load(filepath.Join(stateDir, "state.json"), sealer, resolveTokenParser())
	if err != nil {
		shutdown.Fatal("load state", err)
	}
	metrics.AccountsTotal.Set(float64(len(store.Accounts)))

	cache, err := picscache.Open(filepath.Join(stateDir, "picscache"))
	if err != nil {
		shutdown.Fatal("open pics cache", err)
	}
	defer cache.Close()

	b := builder.New(store, cache)

	dialer, loginDialer := resolveCMBackend()
	engine := account.NewEngine(store, dialer, b)
	engine.OnReady(store.SetRunning)
	engine.OnRemoved(func(steamID uint64, reason account.RemovalReason) {
		logger.Warn("account_removed", "steam_id", steamID, "reason", reason)
	})

	mrcCache := mrc.NewCache(store, func(steamID uint64) steamcm.Client { return dialer.Dial(steamID) })
	connWaiter := shutdown.NewConnWaiter()
	server := httpapi.New(store, mrcCache, engine, loginDialer, func(steamID uint64) steamcm.Client { return dialer.Dial(steamID) }, connWaiter)

	ln, err := listen(settings.ListenEndpoint)
	if err != nil {
		shutdown.Fatal("bind listener", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	l := loop.New(store, filepath.Join(stateDir, "state.json"), sealer)

	banner.Print(settings.ListenEndpoint, stateDir, version, len(store.Accounts))

	go engine.Run(ctx)
	go l.Run(ctx)
	if err := server.Serve(ctx, ln); err != nil {
		logger.Error("http_server_stopped", "error", err)
	}

	// Drain open /signin WebSocket connections (the only ones connWaiter
	// counts) before the process exits, bounded so a stuck client can't
	// hang shutdown forever.
	drained := make(chan struct{})
	go func() {
		connWaiter.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown_drain_timed_out", "remaining", connWaiter.Count())
	}
}

// resolveCMBackend wires the real Steam CM client if one has been linked
// in (steamcm.Backend), and falls back to the in-memory fakes otherwise —
// the CM protocol client is an external collaborator, so this module
// never links a real one itself. The fake client never contacts Steam and
// answers every request with an empty result (no licenses, MRC 0); the
// fake login session ends every /signin attempt with a disconnect.
func resolveCMBackend() (steamcm.Dialer, steamcm.LoginDialer) {
	if steamcm.Backend != nil {
		return steamcm.Backend()
	}
	logger.Warn("cm_backend_not_linked", "note", "no Steam CM client is linked into this build; account workers get empty fake responses and /signin always disconnects")
	return &steamcm.FakeDialer{Client: steamcm.NewFakeClient()}, &steamcm.FakeLoginDialer{Session: steamcm.NewFakeLoginSession()}
}

// resolveTokenParser wires the real token decoder if one has been linked
// in (steamcm.ParseToken), and falls back to treating every saved token as
// invalid otherwise — consistent with resolveCMBackend's "binary still
// starts" fallback, just pointed at state-file load instead of CM dialing.
func resolveTokenParser() func(token string) (steamcm.TokenInfo, bool) {
	if steamcm.ParseToken != nil {
		return steamcm.ParseToken
	}
	logger.Warn("token_parser_not_linked", "note", "no Steam CM client is linked into this build; every saved account token will be treated as invalid")
	return func(token string) (steamcm.TokenInfo, bool) { return steamcm.TokenInfo{}, false }
}

// listen binds settings.ListenEndpoint: a plain TCP listener for
// "host:port", or on Linux a unix socket at the fixed path /run/tek-s3.sock
// with its permissions set from "unix:<octal-mode>".
func listen(endpoint string) (net.Listener, error) {
	if mode, ok := config.IsUnixSocket(endpoint); ok {
		const sockPath = "/run/tek-s3.sock"
		if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		ln, err := net.Listen("unix", sockPath)
		if err != nil {
			return nil, err
		}
		if err := os.Chmod(sockPath, os.FileMode(mode)); err != nil {
			ln.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
		return ln, nil
	}
	return net.Listen("tcp", endpoint)
}
