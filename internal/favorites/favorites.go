// Package favorites keeps the menu items a signed-in identity has marked, per identity.
package favorites

import (
	"context"
	"encoding/json"
	"fmt"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/storage"
	"go.uber.org/zap"
)

type IdentitySource interface {
	Current() *domain.Identity
}

// Set stores favorites under "favorites:<identity id>".
type Set struct {
	store    storage.Store
	identity IdentitySource
	logger   *zap.Logger
}

func New(store storage.Store, identity IdentitySource, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{store: store, identity: identity, logger: logger}
}

// List returns the favorite item ids in the order they were added.
func (s *Set) List(ctx context.Context) ([]int64, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}
	return s.read(ctx, key)
}

func (s *Set) Add(ctx context.Context, itemID int64) error {
	return s.update(ctx, func(ids []int64) []int64 {
		if contains(ids, itemID) {
			return ids
		}
		return append(ids, itemID)
	})
}

func (s *Set) Remove(ctx context.Context, itemID int64) error {
	return s.update(ctx, func(ids []int64) []int64 {
		out := ids[:0]
		for _, id := range ids {
			if id != itemID {
				out = append(out, id)
			}
		}
		return out
	})
}

// Toggle flips an item and reports whether it is now a favorite.
func (s *Set) Toggle(ctx context.Context, itemID int64) (bool, error) {
	var now bool
	err := s.update(ctx, func(ids []int64) []int64 {
		if contains(ids, itemID) {
			out := ids[:0]
			for _, id := range ids {
				if id != itemID {
					out = append(out, id)
				}
			}
			return out
		}
		now = true
		return append(ids, itemID)
	})
	return now, err
}

func (s *Set) IsFavorite(ctx context.Context, itemID int64) (bool, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	return contains(ids, itemID), nil
}

func (s *Set) update(ctx context.Context, fn func([]int64) []int64) error {
	key, err := s.key()
	if err != nil {
		return err
	}
	ids, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	next := fn(ids)
	if next == nil {
		next = []int64{}
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("persist favorites: %w", err)
	}
	return nil
}

func (s *Set) key() (string, error) {
	id := s.identity.Current()
	if id == nil {
		return "", domain.ErrNotAuthenticated
	}
	return "favorites:" + id.ID, nil
}

func (s *Set) read(ctx context.Context, key string) ([]int64, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read favorites: %w", err)
	}
	if !ok {
		return []int64{}, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		s.logger.Warn("discard unreadable favorites", zap.String("key", key), zap.Error(err))
		return []int64{}, nil
	}
	return ids, nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
