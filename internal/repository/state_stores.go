package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
	domrepo "ArbPull/internal/domain/repository"
	"ArbPull/pkg/cache"
)

// CacheStateStore keeps TreasuryState under one key of a cache.Service.
// Over Redis it survives restarts and is shared by standby engines.
type CacheStateStore struct {
	svc cache.Service
	key string
}

func NewCacheStateStore(svc cache.Service, key string) *CacheStateStore {
	return &CacheStateStore{svc: svc, key: key}
}

func (s *CacheStateStore) Load(ctx context.Context) (models.TreasuryState, error) {
	var st models.TreasuryState
	if err := s.svc.Get(ctx, s.key, &st); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.TreasuryState{}, domrepo.ErrStateNotFound
		}
		return models.TreasuryState{}, fmt.Errorf("load treasury state: %w", err)
	}
	return st, nil
}

func (s *CacheStateStore) Save(ctx context.Context, st models.TreasuryState) error {
	if err := s.svc.Set(ctx, s.key, st, 0); err != nil {
		return fmt.Errorf("save treasury state: %w", err)
	}
	return nil
}

// FileStateStore keeps TreasuryState in a JSON file. Writes go to a temp
// file first so a crash never leaves a truncated state behind.
type FileStateStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

func (s *FileStateStore) Load(_ context.Context) (models.TreasuryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.TreasuryState{}, domrepo.ErrStateNotFound
		}
		return models.TreasuryState{}, fmt.Errorf("read state file: %w", err)
	}
	var st models.TreasuryState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.TreasuryState{}, fmt.Errorf("parse state file: %w", err)
	}
	return st, nil
}

func (s *FileStateStore) Save(_ context.Context, st models.TreasuryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// CacheTickLease holds the per-treasury tick lease for one engine instance.
type CacheTickLease struct {
	svc   cache.Service
	key   string
	owner string
}

func NewCacheTickLease(svc cache.Service, key, owner string) *CacheTickLease {
	return &CacheTickLease{svc: svc, key: key, owner: owner}
}

func (l *CacheTickLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.svc.AcquireLease(ctx, l.key, l.owner, ttl)
}

func (l *CacheTickLease) Release(ctx context.Context) error {
	return l.svc.ReleaseLease(ctx, l.key, l.owner)
}
