// Package seed writes menu items into the document store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/menu"
	"coffeehouse/internal/remote"
	"go.uber.org/zap"
)

// Writer stores menu items under their numeric id as document id.
type Writer struct {
	docs   remote.DocumentStore
	logger *zap.Logger
}

func NewWriter(docs remote.DocumentStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{docs: docs, logger: logger}
}

// Insert creates the item's document. It reports false when the item already exists.
func (w *Writer) Insert(ctx context.Context, item domain.MenuItem) (bool, error) {
	_, err := w.docs.CreateDocument(ctx, remote.CollectionMenu, docID(item), menu.ItemFields(item))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrAlreadyExists):
		return false, nil
	default:
		return false, fmt.Errorf("insert menu item %d: %w", item.ID, err)
	}
}

// Upsert creates the item's document or overwrites its fields.
func (w *Writer) Upsert(ctx context.Context, item domain.MenuItem) error {
	created, err := w.Insert(ctx, item)
	if err != nil || created {
		return err
	}
	if _, err := w.docs.UpdateDocument(ctx, remote.CollectionMenu, docID(item), menu.ItemFields(item)); err != nil {
		return fmt.Errorf("update menu item %d: %w", item.ID, err)
	}
	return nil
}

// Apply inserts the bundled menu. It is idempotent: items already present are left alone.
func Apply(ctx context.Context, docs remote.DocumentStore, logger *zap.Logger) (int, error) {
	items, err := menu.Static()
	if err != nil {
		return 0, err
	}
	w := NewWriter(docs, logger)
	created := 0
	for _, item := range items {
		ok, err := w.Insert(ctx, item)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		} else {
			w.logger.Debug("menu item already present", zap.Int64("item_id", item.ID))
		}
	}
	return created, nil
}

func docID(item domain.MenuItem) string {
	return strconv.FormatInt(item.ID, 10)
}
