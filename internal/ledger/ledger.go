package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vps-rewards-lite/internal/apperr"
	"vps-rewards-lite/internal/guard"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/session"
)

const (
	AdReward             = 20
	ShortLinkReward      = 20
	DailyBonusReward     = 20
	SpecialMissionReward = 20

	DefaultShortLinkDelay = 2 * time.Second
)

var errNegativeCredit = errors.New("credit amount must not be negative")

type AccountStore interface {
	GetAccount(ctx context.Context, id string) (model.Account, bool, error)
	Increment(ctx context.Context, id string, d model.Delta) (model.Account, error)
	SetLastDailyBonus(ctx context.Context, id string, at time.Time) error
}

type Options struct {
	// Location is the calendar used to decide whether a daily bonus was
	// already claimed today. Defaults to time.Local.
	Location       *time.Location
	ShortLinkDelay time.Duration
	Now            func() time.Time
	Sleep          func(ctx context.Context, d time.Duration) error
	Guard          *guard.Guard
}

// Ledger grants points. Every reward source ends in Credit.
type Ledger struct {
	store          AccountStore
	location       *time.Location
	shortLinkDelay time.Duration
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
	guard          *guard.Guard
}

func New(st AccountStore, opts Options) *Ledger {
	l := &Ledger{
		store:          st,
		location:       opts.Location,
		shortLinkDelay: opts.ShortLinkDelay,
		now:            opts.Now,
		sleep:          opts.Sleep,
		guard:          opts.Guard,
	}
	if l.location == nil {
		l.location = time.Local
	}
	if l.shortLinkDelay < 0 {
		l.shortLinkDelay = 0
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.sleep == nil {
		l.sleep = sleepContext
	}
	if l.guard == nil {
		l.guard = guard.New()
	}
	return l
}

// Credit adds amount to points and totalEarned in one store call and mirrors
// it into the session cache once confirmed. It is not idempotent. A zero
// amount touches nothing.
func (l *Ledger) Credit(ctx context.Context, sess *session.Session, amount int64) (int64, error) {
	p, ok := sess.Principal()
	if !ok {
		return 0, apperr.ErrUnauthenticated
	}
	if amount < 0 {
		return sess.CachedPoints(), errNegativeCredit
	}
	if amount == 0 {
		return sess.CachedPoints(), nil
	}

	if _, err := l.store.Increment(ctx, p.ID, model.Delta{Points: amount, TotalEarned: amount}); err != nil {
		return sess.CachedPoints(), fmt.Errorf("%w: %v", apperr.ErrCreditFailed, err)
	}
	return sess.ApplyDelta(amount), nil
}

// CompleteShortLink waits out the fixed short link delay, then credits.
func (l *Ledger) CompleteShortLink(ctx context.Context, sess *session.Session) (int64, error) {
	if _, ok := sess.Principal(); !ok {
		return 0, apperr.ErrUnauthenticated
	}
	if err := l.sleep(ctx, l.shortLinkDelay); err != nil {
		return sess.CachedPoints(), err
	}
	return l.Credit(ctx, sess, ShortLinkReward)
}

func (l *Ledger) CompleteSpecialMission(ctx context.Context, sess *session.Session) (int64, error) {
	return l.Credit(ctx, sess, SpecialMissionReward)
}

// ClaimDailyBonus credits at most once per calendar day. The timestamp is
// written before the credit and the two writes are separate: if the credit
// fails the day is still marked as claimed.
func (l *Ledger) ClaimDailyBonus(ctx context.Context, sess *session.Session) (int64, error) {
	p, ok := sess.Principal()
	if !ok {
		return 0, apperr.ErrUnauthenticated
	}

	release := l.guard.Acquire("daily|" + p.ID)
	defer release()

	acc, exists, err := l.store.GetAccount(ctx, p.ID)
	if err != nil {
		return sess.CachedPoints(), fmt.Errorf("%w: load account: %v", apperr.ErrTransport, err)
	}
	if !exists {
		return sess.CachedPoints(), fmt.Errorf("%w: account %s not found", apperr.ErrTransport, p.ID)
	}

	now := l.now()
	if acc.LastDailyBonus != nil && SameDay(*acc.LastDailyBonus, now, l.location) {
		return sess.CachedPoints(), apperr.ErrAlreadyClaimedToday
	}

	if err := l.store.SetLastDailyBonus(ctx, p.ID, now); err != nil {
		return sess.CachedPoints(), fmt.Errorf("%w: mark daily bonus: %v", apperr.ErrTransport, err)
	}
	return l.Credit(ctx, sess, DailyBonusReward)
}

// SameDay compares calendar dates in loc, not elapsed time.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
