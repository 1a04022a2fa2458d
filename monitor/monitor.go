// Package monitor bounds how long a set of sub-channels may take to
// finish connecting.
package monitor

import (
	"strings"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/device"
)

// Target is one watched entity. Pending reports whether it has not
// finished connecting yet.
type Target struct {
	Name    string
	Pending func() bool
}

type Monitor struct {
	timeout time.Duration
	targets []Target
	logger  *device.Logger

	mu      sync.Mutex
	timer   *time.Timer
	started bool
	stopped bool
}

func New(timeout time.Duration, targets ...Target) *Monitor {
	return &Monitor{
		timeout: timeout,
		targets: targets,
		logger:  device.NewLogger(device.LogLevelError, "monitor: "),
	}
}

func (m *Monitor) SetLogger(logger *device.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Run arms the deadline. onTimeout is called at most once, from the
// timer's goroutine, if the monitor has not been stopped and at least
// one target is still pending. Only the first call to Run has effect.
func (m *Monitor) Run(onTimeout func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.timer = time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		m.stopped = true
		m.mu.Unlock()

		pending := m.Pending()
		if len(pending) == 0 {
			m.logger.Verbosef("deadline reached with all targets connected")
			return
		}
		m.logger.Errorf("timed out after %s waiting for %s", m.timeout, strings.Join(pending, ", "))
		if onTimeout != nil {
			onTimeout()
		}
	})
}

// Stop disarms the monitor. Stopping a stopped or never started monitor
// is a no-op. It is safe on a nil Monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Monitor) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Pending returns the names of the targets still connecting.
func (m *Monitor) Pending() (names []string) {
	for _, t := range m.targets {
		if t.Pending != nil && t.Pending() {
			names = append(names, t.Name)
		}
	}
	return
}
