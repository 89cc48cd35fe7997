package registry

import (
	"sync"
	"time"

	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/pkg/metrics"
)

// rwLock is the registry's structural lock.
//
// Acquisition returns the matching unlock func so callers can write
//
//	defer l.lockShared()()
//
// and every exit path releases. Waiting time is reported to the metrics
// observer and acquisitions are traced at DEBUG level.
//
// sync.RWMutex blocks new readers as soon as a writer is waiting, so a
// steady stream of lookups cannot starve inserts and removals.
type rwLock struct {
	mu      sync.RWMutex
	name    string
	metrics metrics.RegistryMetrics
}

func (l *rwLock) lockShared() func() {
	debug := logger.IsDebug()
	if debug {
		logger.Debug("registry %s: get rd lock", l.name)
	}

	start := time.Now()
	l.mu.RLock()
	l.metrics.ObserveLockWait(l.name, metrics.LockShared, time.Since(start))

	if debug {
		logger.Debug("registry %s: got rd lock", l.name)
	}
	return l.unlockShared
}

func (l *rwLock) unlockShared() {
	l.mu.RUnlock()
	if logger.IsDebug() {
		logger.Debug("registry %s: rd unlock", l.name)
	}
}

func (l *rwLock) lockExclusive() func() {
	debug := logger.IsDebug()
	if debug {
		logger.Debug("registry %s: get wr lock", l.name)
	}

	start := time.Now()
	l.mu.Lock()
	l.metrics.ObserveLockWait(l.name, metrics.LockExclusive, time.Since(start))

	if debug {
		logger.Debug("registry %s: got wr lock", l.name)
	}
	return l.unlockExclusive
}

func (l *rwLock) unlockExclusive() {
	l.mu.Unlock()
	if logger.IsDebug() {
		logger.Debug("registry %s: wr unlock", l.name)
	}
}
