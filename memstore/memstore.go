// Package memstore provides map-backed implementations of the core store
// interfaces. It honors the same not-found contract as a database-backed
// store (gorm.ErrRecordNotFound), so the engine code paths are identical
// in tests and production.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/CrestLend/core/core"
)

type Store struct {
	mu sync.RWMutex

	assets     map[string]*core.AssetConfig
	assetOrder []string

	positions map[string]*core.Position
	counts    map[uuid.UUID]uint64

	balances map[string]decimal.Decimal

	holders map[uuid.UUID]*core.ShareHolder

	events []*core.Event
}

func New() *Store {
	return &Store{
		assets:    make(map[string]*core.AssetConfig),
		positions: make(map[string]*core.Position),
		counts:    make(map[uuid.UUID]uint64),
		balances:  make(map[string]decimal.Decimal),
		holders:   make(map[uuid.UUID]*core.ShareHolder),
	}
}

// Stores bundles the store for engine construction.
func (s *Store) Stores() core.Stores {
	return core.Stores{
		Assets:    s,
		Positions: s,
		Balances:  s,
		Holders:   s,
		Events:    s,
	}
}

func positionKey(accountId uuid.UUID, index uint64) string {
	return fmt.Sprintf("%s/%d", accountId, index)
}

func balanceKey(accountId uuid.UUID, assetId string) string {
	return fmt.Sprintf("%s/%s", accountId, assetId)
}

// ------------ AssetStore

func (s *Store) GetAsset(ctx context.Context, assetId string) (*core.AssetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, ok := s.assets[assetId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return config.Clone(), nil
}

func (s *Store) UpsertAsset(ctx context.Context, config *core.AssetConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[config.AssetId]; !ok {
		s.assetOrder = append(s.assetOrder, config.AssetId)
	}
	s.assets[config.AssetId] = config.Clone()
	return nil
}

func (s *Store) ListAssets(ctx context.Context) ([]*core.AssetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]*core.AssetConfig, 0, len(s.assetOrder))
	for _, assetId := range s.assetOrder {
		assets = append(assets, s.assets[assetId].Clone())
	}
	return assets, nil
}

// ------------ PositionStore

func (s *Store) GetPosition(ctx context.Context, accountId uuid.UUID, index uint64) (*core.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	position, ok := s.positions[positionKey(accountId, index)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return position.Clone(), nil
}

func (s *Store) CountPositions(ctx context.Context, accountId uuid.UUID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[accountId], nil
}

func (s *Store) CreatePosition(ctx context.Context, position *core.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(position.AccountId, position.Index)
	if _, ok := s.positions[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	s.positions[key] = position.Clone()
	s.counts[position.AccountId]++
	return nil
}

func (s *Store) UpdatePosition(ctx context.Context, position *core.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(position.AccountId, position.Index)
	if _, ok := s.positions[key]; !ok {
		return gorm.ErrRecordNotFound
	}
	s.positions[key] = position.Clone()
	return nil
}

func (s *Store) ListPositions(ctx context.Context, accountId uuid.UUID) ([]*core.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.counts[accountId]
	positions := make([]*core.Position, 0, count)
	for index := uint64(0); index < count; index++ {
		if position, ok := s.positions[positionKey(accountId, index)]; ok {
			positions = append(positions, position.Clone())
		}
	}
	return positions, nil
}

// ------------ BalanceStore

func (s *Store) GetBalance(ctx context.Context, accountId uuid.UUID, assetId string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[balanceKey(accountId, assetId)]
	if !ok {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[balanceKey(accountId, assetId)] = amount
	return nil
}

// ------------ ShareStore

func (s *Store) GetHolder(ctx context.Context, accountId uuid.UUID) (*core.ShareHolder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holder, ok := s.holders[accountId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return holder.Clone(), nil
}

func (s *Store) UpsertHolder(ctx context.Context, holder *core.ShareHolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holders[holder.AccountId] = holder.Clone()
	return nil
}

// ------------ EventStore

func (s *Store) CreateEvent(ctx context.Context, event *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, accountId uuid.UUID, limit int64) ([]*core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*core.Event, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if accountId != uuid.Nil && event.AccountId != accountId {
			continue
		}
		events = append(events, event)
		if limit > 0 && int64(len(events)) >= limit {
			break
		}
	}
	return events, nil
}
