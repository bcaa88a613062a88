package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/store"
)

// WelcomeBonus is credited once when an account is first created.
const WelcomeBonus = 300

// AccountStore is the part of the Account Store sessions need.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (model.Account, bool, error)
	CreateAccount(ctx context.Context, acc model.Account) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// Session holds the signed-in principal and a cached points balance that
// mirrors the stored account.
type Session struct {
	mu           sync.Mutex
	principal    *model.Principal
	cachedPoints int64
}

// Principal returns the signed-in principal. A nil session is unauthenticated.
func (s *Session) Principal() (model.Principal, bool) {
	if s == nil {
		return model.Principal{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return model.Principal{}, false
	}
	return *s.principal, true
}

func (s *Session) CachedPoints() int64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedPoints
}

// ApplyDelta mirrors a confirmed store mutation into the cache.
func (s *Session) ApplyDelta(points int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedPoints += points
	return s.cachedPoints
}

// Resync replaces the cache with a balance read from the store.
func (s *Session) Resync(points int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedPoints = points
}

// Clear drops the principal and zeroes the cache. It is idempotent.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = nil
	s.cachedPoints = 0
}

type EstablishResult struct {
	Session    *Session
	Account    model.Account
	NewAccount bool
}

// Registry owns one Session per signed-in principal.
type Registry struct {
	store AccountStore
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(st AccountStore) *Registry {
	return NewRegistryWithNow(st, time.Now)
}

func NewRegistryWithNow(st AccountStore, now func() time.Time) *Registry {
	return &Registry{store: st, now: now, sessions: make(map[string]*Session)}
}

// Establish signs p in. A first-time principal gets an account with the
// welcome bonus; a returning one has its cache reloaded from the store.
func (r *Registry) Establish(ctx context.Context, p model.Principal) (EstablishResult, error) {
	if p.ID == "" {
		return EstablishResult{}, errors.New("missing principal id")
	}

	acc, exists, err := r.store.GetAccount(ctx, p.ID)
	if err != nil {
		return EstablishResult{}, fmt.Errorf("load account: %w", err)
	}

	created := false
	now := r.now()
	if !exists {
		acc = model.Account{
			ID:          p.ID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			PhotoURL:    p.PhotoURL,
			Points:      WelcomeBonus,
			TotalEarned: WelcomeBonus,
			CreatedAt:   now,
			LastLogin:   now,
		}
		err := r.store.CreateAccount(ctx, acc)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, store.ErrAccountExists):
			// Lost a race with a concurrent first sign-in.
			acc, exists, err = r.store.GetAccount(ctx, p.ID)
			if err != nil {
				return EstablishResult{}, fmt.Errorf("load account: %w", err)
			}
			if !exists {
				return EstablishResult{}, store.ErrAccountNotFound
			}
		default:
			return EstablishResult{}, fmt.Errorf("create account: %w", err)
		}
	}

	if !created {
		if err := r.store.TouchLogin(ctx, p.ID, now); err != nil {
			log.Printf("session: update last login failed (%s): %v", p.ID, err)
		} else {
			acc.LastLogin = now
		}
	}

	principal := p
	r.mu.Lock()
	sess, ok := r.sessions[p.ID]
	if !ok {
		sess = &Session{}
		r.sessions[p.ID] = sess
	}
	r.mu.Unlock()

	sess.Resync(acc.Points)
	sess.mu.Lock()
	sess.principal = &principal
	sess.mu.Unlock()

	return EstablishResult{Session: sess, Account: acc, NewAccount: created}, nil
}

func (r *Registry) Get(principalID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[principalID]
	if !ok {
		return nil, false
	}
	if _, signedIn := sess.Principal(); !signedIn {
		return nil, false
	}
	return sess, true
}

// Clear signs the principal out. Holders of the old Session see it
// unauthenticated afterwards.
func (r *Registry) Clear(principalID string) {
	r.mu.Lock()
	sess := r.sessions[principalID]
	delete(r.sessions, principalID)
	r.mu.Unlock()

	sess.Clear()
}
