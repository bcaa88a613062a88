package adview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vps-rewards-lite/internal/apperr"
	"vps-rewards-lite/internal/countdown"
	"vps-rewards-lite/internal/ledger"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/session"
	"vps-rewards-lite/internal/store"
)

type recordingPublisher struct {
	mu      sync.Mutex
	notices []string
	events  int
}

func (r *recordingPublisher) Notice(_ string, _ notify.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

func (r *recordingPublisher) Event(string, string, any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events++
}

func (r *recordingPublisher) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func setup(t *testing.T, opts Options) (*Manager, *session.Session, *store.Store) {
	t.Helper()
	st := store.New()
	res, err := session.NewRegistry(st).Establish(context.Background(), model.Principal{ID: "u1"})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	l := ledger.New(st, ledger.Options{})
	return NewManager(l, opts), res.Session, st
}

func TestClaim_BeforeCountdownIsNoop(t *testing.T) {
	m, sess, st := setup(t, Options{})
	ctx := context.Background()

	if _, err := m.Claim(ctx, sess); !errors.Is(err, apperr.ErrClaimLocked) {
		t.Fatalf("expected ErrClaimLocked without a view, got %v", err)
	}

	if _, err := m.Open(sess); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < countdown.DefaultTicks-1; i++ {
		if _, err := m.Tick("u1"); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if _, err := m.Claim(ctx, sess); !errors.Is(err, apperr.ErrClaimLocked) {
		t.Fatalf("expected ErrClaimLocked at 1 tick left, got %v", err)
	}
	acc, _, _ := st.GetAccount(ctx, "u1")
	if acc.Points != session.WelcomeBonus || sess.CachedPoints() != session.WelcomeBonus {
		t.Fatalf("expected no credit, store=%d cache=%d", acc.Points, sess.CachedPoints())
	}
	if got := m.Status("u1"); got.State != "running" || got.Remaining != 1 {
		t.Fatalf("expected view untouched by early claim, got %+v", got)
	}
}

func TestClaim_AfterCountdownCreditsOnce(t *testing.T) {
	pub := &recordingPublisher{}
	m, sess, _ := setup(t, Options{Publisher: pub})
	ctx := context.Background()

	if _, err := m.Open(sess); err != nil {
		t.Fatalf("Open: %v", err)
	}
	var st Status
	for i := 0; i < countdown.DefaultTicks; i++ {
		st, _ = m.Tick("u1")
	}
	if st.State != "complete" {
		t.Fatalf("expected complete, got %+v", st)
	}
	if pub.noticeCount() != 1 {
		t.Fatalf("expected completion notice, got %d", pub.noticeCount())
	}

	balance, err := m.Claim(ctx, sess)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if balance != session.WelcomeBonus+ledger.AdReward {
		t.Fatalf("unexpected balance %d", balance)
	}
	if _, err := m.Claim(ctx, sess); !errors.Is(err, apperr.ErrClaimLocked) {
		t.Fatalf("expected second claim rejected, got %v", err)
	}
}

func TestCancel_ForfeitsAndReopenRestarts(t *testing.T) {
	m, sess, _ := setup(t, Options{Ticks: 3})
	if _, err := m.Open(sess); err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.Tick("u1")
	m.Tick("u1")
	m.Cancel("u1")
	m.Cancel("u1")

	if _, err := m.Claim(context.Background(), sess); !errors.Is(err, apperr.ErrClaimLocked) {
		t.Fatalf("expected ErrClaimLocked after cancel, got %v", err)
	}
	st, err := m.Open(sess)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.State != "running" || st.Remaining != 3 {
		t.Fatalf("expected restart from full length, got %+v", st)
	}
}

func TestOpen_RequiresPrincipal(t *testing.T) {
	m, _, _ := setup(t, Options{})
	if _, err := m.Open(&session.Session{}); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestScheduledTicksUnlockClaim(t *testing.T) {
	pub := &recordingPublisher{}
	m, sess, _ := setup(t, Options{Interval: time.Millisecond, Ticks: 3, Publisher: pub})

	if _, err := m.Open(sess); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Tick("u1"); !errors.Is(err, ErrTicksScheduled) {
		t.Fatalf("expected ErrTicksScheduled, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Status("u1").State != "complete" {
		if time.Now().After(deadline) {
			t.Fatalf("countdown never completed: %+v", m.Status("u1"))
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := m.Claim(context.Background(), sess); err != nil {
		t.Fatalf("Claim: %v", err)
	}
}
