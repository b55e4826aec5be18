package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"smartmonitor/internal/models"
)

// MemoryStore is an in-memory Store for tests and database-less runs.
type MemoryStore struct {
	mu       sync.RWMutex
	tokens   map[string]models.SplToken
	accounts map[string]models.Account
	nextID   uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]models.SplToken),
		accounts: make(map[string]models.Account),
	}
}

func (s *MemoryStore) RecordTrackedMint(_ context.Context, mint, owner, ruleName string) error {
	if mint == "" || owner == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, exists := s.tokens[mint]; exists {
		if existing.MonitorStatus == models.MonitorStatusActive {
			return nil
		}
		existing.SmartAddress = owner
		existing.StrategyName = ruleName
		existing.MonitorStatus = models.MonitorStatusActive
		existing.UpdatedAt = now
		s.tokens[mint] = existing
		return nil
	}
	s.tokens[mint] = models.SplToken{
		Mint:          mint,
		SmartAddress:  owner,
		MonitorStatus: models.MonitorStatusActive,
		StrategyName:  ruleName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return nil
}

func (s *MemoryStore) ListTrackedMints(_ context.Context, f TrackedMintFilter) ([]models.SplToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.SplToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		if f.SmartAddress != "" && t.SmartAddress != f.SmartAddress {
			continue
		}
		if f.Status != "" && t.MonitorStatus != f.Status {
			continue
		}
		result = append(result, t)
	}

	// newest first, mint breaks ties
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Mint < result[j].Mint
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *MemoryStore) DeactivateMint(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokens[mint]
	if !exists {
		return ErrNotFound
	}
	t.MonitorStatus = models.MonitorStatusInactive
	t.UpdatedAt = time.Now()
	s.tokens[mint] = t
	return nil
}

func (s *MemoryStore) AddAccount(_ context.Context, address string) (*models.Account, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.accounts[address]
	if !exists {
		s.nextID++
		a = models.Account{ID: s.nextID, Account: address, CreatedAt: time.Now()}
	}
	a.Deleted = false
	s.accounts[address] = a
	return &a, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.accounts[address]
	if !exists || a.Deleted {
		return ErrNotFound
	}
	a.Deleted = true
	s.accounts[address] = a
	return nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if !a.Deleted {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
