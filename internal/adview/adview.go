package adview

import (
	"context"
	"errors"
	"sync"
	"time"

	"vps-rewards-lite/internal/apperr"
	"vps-rewards-lite/internal/countdown"
	"vps-rewards-lite/internal/ledger"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/session"
)

// ErrTicksScheduled is returned by Tick when the manager drives ticks itself.
var ErrTicksScheduled = errors.New("ad view ticks are scheduled by the server")

type Crediter interface {
	Credit(ctx context.Context, sess *session.Session, amount int64) (int64, error)
}

type Options struct {
	// Interval between ticks. Zero disables the ticker and ticks must be
	// delivered through Tick.
	Interval  time.Duration
	Ticks     int
	Publisher notify.Publisher
}

type Status struct {
	State     string `json:"state"`
	Remaining int    `json:"remaining"`
}

type view struct {
	countdown *countdown.Countdown
	stop      chan struct{}
	stopOnce  sync.Once
}

func (v *view) halt() {
	v.stopOnce.Do(func() { close(v.stop) })
}

// Manager runs one ad view per principal: open starts the countdown, claim
// credits only once it has completed.
type Manager struct {
	ledger    Crediter
	publisher notify.Publisher
	interval  time.Duration
	ticks     int

	mu    sync.Mutex
	views map[string]*view
}

func NewManager(l Crediter, opts Options) *Manager {
	ticks := opts.Ticks
	if ticks <= 0 {
		ticks = countdown.DefaultTicks
	}
	return &Manager{
		ledger:    l,
		publisher: opts.Publisher,
		interval:  opts.Interval,
		ticks:     ticks,
		views:     make(map[string]*view),
	}
}

// Open starts a fresh countdown, replacing any view already open.
func (m *Manager) Open(sess *session.Session) (Status, error) {
	p, ok := sess.Principal()
	if !ok {
		return Status{}, apperr.ErrUnauthenticated
	}

	v := &view{countdown: countdown.New(m.ticks), stop: make(chan struct{})}
	v.countdown.Start()

	m.mu.Lock()
	if prev, ok := m.views[p.ID]; ok {
		prev.countdown.Cancel()
		prev.halt()
	}
	m.views[p.ID] = v
	m.mu.Unlock()

	if m.interval > 0 {
		go m.run(p.ID, v)
	}
	return statusOf(v.countdown), nil
}

func (m *Manager) run(userID string, v *view) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-v.stop:
			return
		case <-t.C:
			if m.advance(userID, v) {
				return
			}
		}
	}
}

func (m *Manager) advance(userID string, v *view) (completed bool) {
	remaining, completed := v.countdown.Tick()
	m.publish(func(p notify.Publisher) {
		p.Event(userID, "ad-tick", Status{State: v.countdown.State().String(), Remaining: remaining})
		if completed {
			p.Notice(userID, notify.LevelSuccess, "Ad completed! Claim your reward!")
		}
	})
	return completed
}

// Tick advances the open view by one tick. Only valid when the manager has
// no ticker of its own.
func (m *Manager) Tick(userID string) (Status, error) {
	if m.interval > 0 {
		return Status{}, ErrTicksScheduled
	}
	m.mu.Lock()
	v, ok := m.views[userID]
	m.mu.Unlock()
	if !ok {
		return Status{State: countdown.Idle.String()}, nil
	}
	m.advance(userID, v)
	return statusOf(v.countdown), nil
}

// Cancel closes the view and forfeits the reward. Safe to call with no view.
func (m *Manager) Cancel(userID string) {
	m.mu.Lock()
	v, ok := m.views[userID]
	delete(m.views, userID)
	m.mu.Unlock()

	if ok {
		v.countdown.Cancel()
		v.halt()
	}
}

func (m *Manager) Status(userID string) Status {
	m.mu.Lock()
	v, ok := m.views[userID]
	m.mu.Unlock()
	if !ok {
		return Status{State: countdown.Idle.String()}
	}
	return statusOf(v.countdown)
}

// Claim credits the ad reward if the countdown has completed, then closes
// the view. Claiming a locked or missing view changes nothing and returns
// apperr.ErrClaimLocked.
func (m *Manager) Claim(ctx context.Context, sess *session.Session) (int64, error) {
	p, ok := sess.Principal()
	if !ok {
		return 0, apperr.ErrUnauthenticated
	}

	m.mu.Lock()
	v, ok := m.views[p.ID]
	if !ok || !v.countdown.Unlocked() {
		m.mu.Unlock()
		return sess.CachedPoints(), apperr.ErrClaimLocked
	}
	delete(m.views, p.ID)
	m.mu.Unlock()
	v.halt()

	return m.ledger.Credit(ctx, sess, ledger.AdReward)
}

func (m *Manager) publish(fn func(p notify.Publisher)) {
	if m.publisher != nil {
		fn(m.publisher)
	}
}

func statusOf(c *countdown.Countdown) Status {
	return Status{State: c.State().String(), Remaining: c.Remaining()}
}
