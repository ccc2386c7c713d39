package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/menu"
	"coffeehouse/internal/remote"
)

type ItemWriter interface {
	Upsert(ctx context.Context, item domain.MenuItem) error
}

// requiredColumns must appear in the header row.
var requiredColumns = []string{"id", "name", "price", "category"}

// CSVImporter reads menu CSV files (id,name,description,price,category,image,popular,rating)
// and upserts each row.
type CSVImporter struct {
	reader *csv.Reader
	writer ItemWriter
}

func NewCSVImporter(r io.Reader, w ItemWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{reader: csvr, writer: w}
}

// Run imports every row. Rows are checked with the same rules as menu records read from
// the store; the first invalid row stops the import.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return 0, fmt.Errorf("missing column %q", col)
		}
	}

	imported := 0
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		line, _ := i.reader.FieldPos(0)
		if blank(record) {
			continue
		}

		item, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		if err := i.writer.Upsert(ctx, item); err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		imported++
	}
	return imported, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) (domain.MenuItem, error) {
	fields := map[string]interface{}{
		"id":          pick(record, index, "id"),
		"name":        pick(record, index, "name"),
		"description": pick(record, index, "description"),
		"price":       pick(record, index, "price"),
		"category":    pick(record, index, "category"),
		"image":       pick(record, index, "image"),
		"popular":     pick(record, index, "popular"),
	}
	if rating := pick(record, index, "rating"); rating != "" {
		r, err := strconv.ParseFloat(rating, 64)
		if err != nil {
			return domain.MenuItem{}, domain.Invalid("rating %q is not a number", rating)
		}
		fields["rating"] = r
	}
	return menu.ItemFromDocument(remote.Document{ID: pick(record, index, "id"), Fields: fields})
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
