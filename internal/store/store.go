package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"vps-rewards-lite/internal/model"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrInsufficientPoints = errors.New("points balance would become negative")
	ErrVPSExists          = errors.New("vps record already exists")
)

// Store is the local Account Store adapter: accounts keyed by principal id
// and redemption records keyed by record id. Numeric account fields only
// change through Increment.
type Store struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex

	accountsByID map[string]model.Account
	vpsByID      map[string]model.VPSRecord
}

type Options struct {
	StateFile string
}

func New() *Store {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Store {
	s := &Store{
		accountsByID: make(map[string]model.Account),
		vpsByID:      make(map[string]model.VPSRecord),
		stateFile:    opts.StateFile,
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			log.Printf("state persistence: load failed (%s): %v", s.stateFile, err)
		}
	}

	return s
}

func (s *Store) GetAccount(_ context.Context, id string) (model.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accountsByID[id]
	return acc, ok, nil
}

func (s *Store) CreateAccount(_ context.Context, acc model.Account) error {
	if acc.ID == "" {
		return errors.New("missing account id")
	}
	if acc.Points < 0 {
		return ErrInsufficientPoints
	}

	s.mu.Lock()
	if _, ok := s.accountsByID[acc.ID]; ok {
		s.mu.Unlock()
		return ErrAccountExists
	}
	s.accountsByID[acc.ID] = acc
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return nil
}

func (s *Store) TouchLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(acc *model.Account) error {
		acc.LastLogin = at
		return nil
	})
}

func (s *Store) SetLastDailyBonus(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(acc *model.Account) error {
		stamp := at
		acc.LastDailyBonus = &stamp
		return nil
	})
}

// Increment applies d atomically and returns the resulting account. A delta
// that would take points below zero is rejected without applying anything.
func (s *Store) Increment(_ context.Context, id string, d model.Delta) (model.Account, error) {
	var result model.Account
	err := s.update(id, func(acc *model.Account) error {
		if acc.Points+d.Points < 0 {
			return ErrInsufficientPoints
		}
		acc.Points += d.Points
		acc.TotalEarned += d.TotalEarned
		acc.VPSCreated += d.VPSCreated
		result = *acc
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}
	return result, nil
}

func (s *Store) update(id string, fn func(acc *model.Account) error) error {
	s.mu.Lock()

	acc, ok := s.accountsByID[id]
	if !ok {
		s.mu.Unlock()
		return ErrAccountNotFound
	}
	if err := fn(&acc); err != nil {
		s.mu.Unlock()
		return err
	}
	s.accountsByID[id] = acc
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return nil
}

func (s *Store) CreateVPS(_ context.Context, rec model.VPSRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return errors.New("missing vps id or user id")
	}

	s.mu.Lock()
	if _, ok := s.vpsByID[rec.ID]; ok {
		s.mu.Unlock()
		return ErrVPSExists
	}
	s.vpsByID[rec.ID] = rec
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return nil
}

func (s *Store) ListVPS(_ context.Context, userID string) ([]model.VPSRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.VPSRecord, 0)
	for _, rec := range s.vpsByID {
		if rec.UserID == userID {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
