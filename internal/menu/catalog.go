// Package menu serves the menu from the document store, falling back to the bundled list.
package menu

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/validation"
	"go.uber.org/zap"
)

// AllCategories selects every item.
const AllCategories = "All"

//go:embed static_menu.json
var staticMenu []byte

// categoryOrder is the display order of the known categories.
var categoryOrder = []string{"Breakfast", "Lunch", "Dinner", "Hot Beverages", "Cold Beverages", "Desserts"}

// Static returns the bundled menu.
func Static() ([]domain.MenuItem, error) {
	var items []domain.MenuItem
	if err := json.Unmarshal(staticMenu, &items); err != nil {
		return nil, fmt.Errorf("decode bundled menu: %w", err)
	}
	return items, nil
}

type Catalog struct {
	docs   remote.DocumentStore
	static []domain.MenuItem
	logger *zap.Logger
}

// New builds a Catalog. docs may be nil, in which case only the bundled menu is served.
func New(docs remote.DocumentStore, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	static, err := Static()
	if err != nil {
		return nil, err
	}
	return &Catalog{docs: docs, static: static, logger: logger}, nil
}

// Items returns the items of a category ("" or "All" for everything), ordered by id.
// Store failures and empty or fully invalid listings fall back to the bundled menu.
func (c *Catalog) Items(ctx context.Context, category string) []domain.MenuItem {
	items := c.load(ctx)
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, AllCategories) {
		return items
	}
	out := make([]domain.MenuItem, 0, len(items))
	for _, it := range items {
		if strings.EqualFold(it.Category, category) {
			out = append(out, it)
		}
	}
	return out
}

// Categories lists "All" followed by the categories present, known ones first.
func (c *Catalog) Categories(ctx context.Context) []string {
	present := map[string]bool{}
	for _, it := range c.load(ctx) {
		present[it.Category] = true
	}
	out := []string{AllCategories}
	for _, name := range categoryOrder {
		if present[name] {
			out = append(out, name)
			delete(present, name)
		}
	}
	var extra []string
	for name := range present {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Item looks up one item. It also serves as the cart's line resolver.
func (c *Catalog) Item(ctx context.Context, id int64) (*domain.MenuItem, error) {
	for _, it := range c.load(ctx) {
		if it.ID == id {
			item := it
			return &item, nil
		}
	}
	return nil, fmt.Errorf("menu item %d: %w", id, domain.ErrNotFound)
}

func (c *Catalog) load(ctx context.Context) []domain.MenuItem {
	if c.docs == nil {
		return c.bundled()
	}
	docs, err := c.docs.ListDocuments(ctx, remote.CollectionMenu)
	if err != nil {
		c.logger.Debug("menu store unavailable, serving bundled menu", zap.Error(err))
		return c.bundled()
	}
	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		it, err := ItemFromDocument(doc)
		if err != nil {
			c.logger.Warn("skip invalid menu record", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return c.bundled()
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (c *Catalog) bundled() []domain.MenuItem {
	out := make([]domain.MenuItem, len(c.static))
	copy(out, c.static)
	return out
}

// ItemFromDocument turns a loosely typed menu record into a MenuItem. The item id comes
// from the "id" field, or from the document id when that is numeric.
func ItemFromDocument(doc remote.Document) (domain.MenuItem, error) {
	f := doc.Fields
	id, ok := remote.Int64(f, "id")
	if !ok {
		parsed, err := strconv.ParseInt(doc.ID, 10, 64)
		if err != nil {
			return domain.MenuItem{}, domain.Invalid("menu record %q has no numeric id", doc.ID)
		}
		id = parsed
	}
	price, ok := remote.Decimal(f, "price")
	if !ok || price.IsNegative() {
		return domain.MenuItem{}, domain.Invalid("menu record %q has no valid price", doc.ID)
	}
	rating, _ := remote.Float(f, "rating")
	image := remote.String(f, "image")
	if image == "" {
		image = remote.String(f, "imageUrl")
	}
	item := domain.MenuItem{
		ID:          id,
		Name:        strings.TrimSpace(remote.String(f, "name")),
		Description: remote.String(f, "description"),
		Price:       price,
		Category:    strings.TrimSpace(remote.String(f, "category")),
		ImageRef:    image,
		Popular:     remote.Bool(f, "popular"),
		Rating:      rating,
	}
	if err := validation.Struct(item); err != nil {
		return domain.MenuItem{}, err
	}
	return item, nil
}

// ItemFields is the menu document layout used by the seed and import commands.
func ItemFields(it domain.MenuItem) map[string]interface{} {
	return map[string]interface{}{
		"id":          it.ID,
		"name":        it.Name,
		"description": it.Description,
		"price":       it.Price.InexactFloat64(),
		"category":    it.Category,
		"image":       it.ImageRef,
		"popular":     it.Popular,
		"rating":      it.Rating,
	}
}
