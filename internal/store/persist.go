package store

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"vps-rewards-lite/internal/model"
)

const stateFileVersion = 1

type persistedStateFile struct {
	Version  int               `json:"version"`
	Accounts []model.Account   `json:"accounts"`
	VPS      []model.VPSRecord `json:"vps"`
	SavedAt  int64             `json:"savedAt"`
}

type stateSnapshot struct {
	accounts []model.Account
	vps      []model.VPSRecord
}

func (s *Store) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedStateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != stateFileVersion {
		return errors.New("unsupported state file version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range file.Accounts {
		if acc.ID == "" {
			continue
		}
		s.accountsByID[acc.ID] = acc
	}
	for _, rec := range file.VPS {
		if rec.ID == "" || rec.UserID == "" {
			continue
		}
		s.vpsByID[rec.ID] = rec
	}
	return nil
}

// snapshotLocked copies the current state; callers hold s.mu. It returns nil
// when persistence is disabled.
func (s *Store) snapshotLocked() *stateSnapshot {
	if s.stateFile == "" {
		return nil
	}

	snap := &stateSnapshot{
		accounts: make([]model.Account, 0, len(s.accountsByID)),
		vps:      make([]model.VPSRecord, 0, len(s.vpsByID)),
	}
	for _, acc := range s.accountsByID {
		snap.accounts = append(snap.accounts, acc)
	}
	for _, rec := range s.vpsByID {
		snap.vps = append(snap.vps, rec)
	}
	sort.Slice(snap.accounts, func(i, j int) bool { return snap.accounts[i].ID < snap.accounts[j].ID })
	sort.Slice(snap.vps, func(i, j int) bool { return snap.vps[i].ID < snap.vps[j].ID })
	return snap
}

func (s *Store) persist(snap *stateSnapshot) {
	path := s.stateFile
	if path == "" || snap == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.Printf("state persistence: mkdir failed (%s): %v", dir, err)
		return
	}

	file := persistedStateFile{
		Version:  stateFileVersion,
		Accounts: snap.accounts,
		VPS:      snap.vps,
		SavedAt:  time.Now().UnixMilli(),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		log.Printf("state persistence: marshal failed: %v", err)
		return
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		log.Printf("state persistence: create temp failed: %v", err)
		return
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		log.Printf("state persistence: chmod temp failed: %v", err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		log.Printf("state persistence: write temp failed: %v", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		log.Printf("state persistence: sync temp failed: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		log.Printf("state persistence: close temp failed: %v", err)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		log.Printf("state persistence: rename failed: %v", err)
	}
}
