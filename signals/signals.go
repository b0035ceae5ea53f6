/*
Package signals holds the process-wide shutdown and reload flags shared
between a server's scheduler and its workers.

Handlers do no work themselves: each OS signal only flips an atomic flag,
and all real reaction happens on the next poll of the scheduler's
housekeeping loop. A Tracker is created once per process and passed by
pointer to everything that needs to observe the flags.
*/
package signals

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gosrf/gosrf/log"
)

type Tracker struct {
	fastShutdown     atomic.Bool
	gracefulShutdown atomic.Bool
	reload           atomic.Bool

	// Register-once guards, one per flag.
	mu               sync.Mutex
	trackingFast     bool
	trackingGraceful bool
	trackingReload   bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// watch flips flag whenever one of sigs arrives. The goroutine lives for
// the rest of the process; signal delivery has no other observer.
func watch(flag *atomic.Bool, sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		for range ch {
			flag.Store(true)
		}
	}()
}

// Track SIGTERM and SIGINT; either requests a graceful shutdown, i.e.
// finish in-flight requests, join every worker, then exit.
func (t *Tracker) TrackGracefulShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trackingGraceful {
		return
	}
	t.trackingGraceful = true

	log.OSRF_log(log.LOGLEVEL_DEBUG, "Tracking graceful shutdown on SIGTERM/SIGINT")
	watch(&t.gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)
}

// Track SIGUSR1 as the fast shutdown request: exit without waiting for
// in-flight requests.
func (t *Tracker) TrackFastShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trackingFast {
		return
	}
	t.trackingFast = true

	log.OSRF_log(log.LOGLEVEL_DEBUG, "Tracking fast shutdown on SIGUSR1")
	watch(&t.fastShutdown, syscall.SIGUSR1)
}

// Track SIGHUP as the request to re-read configuration without restarting
// workers.
func (t *Tracker) TrackReload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trackingReload {
		return
	}
	t.trackingReload = true

	log.OSRF_log(log.LOGLEVEL_DEBUG, "Tracking reload on SIGHUP")
	watch(&t.reload, syscall.SIGHUP)
}

func (t *Tracker) FastShutdownRequested() bool {
	return t.fastShutdown.Load()
}

func (t *Tracker) GracefulShutdownRequested() bool {
	return t.gracefulShutdown.Load()
}

func (t *Tracker) AnyShutdownRequested() bool {
	return t.fastShutdown.Load() || t.gracefulShutdown.Load()
}

func (t *Tracker) ReloadRequested() bool {
	return t.reload.Load()
}

// Called by the scheduler once a reload has been carried out.
func (t *Tracker) ClearReload() {
	t.reload.Store(false)
}

// Programmatic equivalents of the signals, for embedders and tests.

func (t *Tracker) RequestGracefulShutdown() {
	t.gracefulShutdown.Store(true)
}

func (t *Tracker) RequestFastShutdown() {
	t.fastShutdown.Store(true)
}

func (t *Tracker) RequestReload() {
	t.reload.Store(true)
}
