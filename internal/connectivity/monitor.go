// Package connectivity tracks the online/offline signal and kicks off
// reconciliation when the terminal comes back.
package connectivity

import (
	"context"
	"log"
	"sync"
	"time"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/notify"
)

// SyncTrigger is the reconciliation engine entry point the monitor fires.
type SyncTrigger interface {
	SyncPendingSales(ctx context.Context) (domain.SyncReport, error)
}

// Pinger reports remote reachability; used by the optional background probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor is a two-state machine driven by external online/offline signals.
// Each offline-to-online transition schedules exactly one reconciliation
// pass after a settling delay, so a flaky reconnect is not raced. A fresh
// start while online schedules one pass after a short delay to catch sales
// queued in a previous session.
type Monitor struct {
	engine      SyncTrigger
	notifier    notify.Notifier
	settleDelay time.Duration
	startDelay  time.Duration

	mu      sync.Mutex
	state   domain.ConnState
	timer   *time.Timer
	baseCtx context.Context
}

func New(engine SyncTrigger, notifier notify.Notifier, settleDelay, startDelay time.Duration) *Monitor {
	if settleDelay <= 0 {
		settleDelay = 5 * time.Second
	}
	if startDelay <= 0 {
		startDelay = 2 * time.Second
	}
	return &Monitor{
		engine:      engine,
		notifier:    notifier,
		settleDelay: settleDelay,
		startDelay:  startDelay,
		state:       domain.ConnOnline,
		baseCtx:     context.Background(),
	}
}

// Start records the base context for scheduled passes and, when already
// online, schedules the initial catch-up pass.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.baseCtx = ctx
	if m.state == domain.ConnOnline {
		m.scheduleLocked(m.startDelay)
	}
}

// StartProbe polls the remote service and feeds the result back as
// online/offline signals until ctx is done.
func (m *Monitor) StartProbe(ctx context.Context, pinger Pinger, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, interval)
				err := pinger.Ping(probeCtx)
				cancel()
				if err != nil {
					m.ReportOffline()
				} else {
					m.ReportOnline()
				}
			}
		}
	}()
}

// ReportOnline handles the external "back online" signal. Repeated signals
// in the same state are ignored; only the transition schedules a pass.
func (m *Monitor) ReportOnline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.ConnOnline {
		return
	}
	m.state = domain.ConnOnline
	m.notifier.Notify(notify.Info, "connection restored, syncing pending sales shortly")
	m.scheduleLocked(m.settleDelay)
}

// ReportOffline handles the external "gone offline" signal: a user-visible
// notice and nothing else. A pass already scheduled is cancelled since it
// would hit the offline guard anyway.
func (m *Monitor) ReportOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.ConnOffline {
		return
	}
	m.state = domain.ConnOffline
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.notifier.Notify(notify.Warning, "connection lost, sales will be saved locally")
}

// State returns the current connectivity state.
func (m *Monitor) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOnline reports whether the last signal was online.
func (m *Monitor) IsOnline() bool {
	return m.State() == domain.ConnOnline
}

func (m *Monitor) scheduleLocked(delay time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	ctx := m.baseCtx
	m.timer = time.AfterFunc(delay, func() {
		if _, err := m.engine.SyncPendingSales(ctx); err != nil {
			log.Printf("[connectivity] WARN: scheduled sync failed: %v", err)
		}
	})
}
