// Package shutdown provides the process-level signal handling and the
// connection-drain primitive used by cmd/tek-s3's shutdown path.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/teknology-hub/tek-s3/pkg/logger"
)

// SetupSignalHandler returns a context cancelled on SIGINT/SIGTERM (Linux)
// so main can stop its workers and servers and unwind gracefully.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String())
		cancel()
	}()
	return ctx, cancel
}

// Fatal logs a startup failure and exits the process non-zero. Used for the
// "Startup errors" taxonomy entry in the error handling design: settings
// invalid, bind failed, CM library init failed.
func Fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

// ConnWaiter is the "atomic connection counter with futex wake on last
// disconnect" described for the cleanup path: stop() tears the listeners
// down, every live connection decrements the counter as it closes, and
// cleanup blocks until the last one does.
type ConnWaiter struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func NewConnWaiter() *ConnWaiter {
	w := &ConnWaiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *ConnWaiter) Add() {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
}

func (w *ConnWaiter) Done() {
	w.mu.Lock()
	w.count--
	if w.count <= 0 {
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

// Wait blocks until the connection count reaches zero.
func (w *ConnWaiter) Wait() {
	w.mu.Lock()
	for w.count > 0 {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (w *ConnWaiter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
