// Package loop periodically rebuilds the manifest and persists state.json
// based on the catalog store's dirty flags.
//
// internal/account's per-account goroutines mutate internal/catalog.Store
// directly, guarded by the store's own RWMutex, so there is no single
// event-loop thread to coordinate. What's left loop-shaped is the
// periodic housekeeping: rebuild the manifest if it's dirty, persist
// state.json if it's dirty. Loop ticks that work on a timer rather than a
// wakeup signal, since nothing here needs sub-millisecond reaction
// latency.
//
// Manifest writer/reader contention is handled by copy-on-write:
// internal/catalog.Store publishes each rebuilt manifest via an atomic
// pointer swap, so HTTP handlers just load the current buffer and hold
// onto that reference for the duration of their send. There is nothing
// for Loop itself to lock — a reader's reference stays valid for as long
// as it's held because nothing ever mutates a published buffer.
package loop

import (
	"context"
	"time"

	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/pkg/logger"
	"github.com/teknology-hub/tek-s3/pkg/metrics"
)

const defaultTick = 2 * time.Second

// Loop owns the periodic rebuild/persist cycle.
type Loop struct {
	store      *catalog.Store
	statePath  string
	sealer     catalog.Sealer // may be nil
	tick       time.Duration
	saveErrors int
}

func New(store *catalog.Store, statePath string, sealer catalog.Sealer) *Loop {
	return &Loop{
		store:     store,
		statePath: statePath,
		sealer:    sealer,
		tick:      defaultTick,
	}
}

// Run ticks until ctx is cancelled, rebuilding the manifest and flushing
// state.json whenever the store reports either is dirty. On shutdown it
// performs one final flush so no pending mutation is lost.
func (l *Loop) Run(ctx context.Context) {
	t := time.NewTicker(l.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			l.runOnce()
			return
		case <-t.C:
			l.runOnce()
		}
	}
}

func (l *Loop) runOnce() {
	manifestDirty, stateDirty := l.store.PeekDirty()
	if manifestDirty {
		l.rebuild()
	}
	if stateDirty {
		l.persist()
	}
}

func (l *Loop) rebuild() {
	l.store.RebuildIfDirty()
	metrics.CatalogRebuilds.Inc()
}

func (l *Loop) persist() {
	if err := l.store.Save(l.statePath, l.sealer); err != nil {
		l.saveErrors++
		logger.Error("state_save_failed", "path", l.statePath, "error", err)
		return
	}
	l.saveErrors = 0
	l.store.ClearStateDirty()
}
