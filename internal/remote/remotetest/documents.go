// Package remotetest provides an in-memory remote.DocumentStore for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
)

// Documents is a remote.DocumentStore kept in memory. Fields are round-tripped through
// JSON so readers see the same loose typing a real store returns.
type Documents struct {
	mu    sync.Mutex
	docs  map[string][]remote.Document
	seq   int
	calls int

	// Err, when set, fails every call.
	Err error
	// ListErr fails ListDocuments only.
	ListErr error
}

var _ remote.DocumentStore = (*Documents)(nil)

func NewDocuments() *Documents {
	return &Documents{docs: make(map[string][]remote.Document)}
}

// Calls reports how many store operations were attempted.
func (d *Documents) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// All returns every document of a collection.
func (d *Documents) All(collection string) []remote.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]remote.Document, len(d.docs[collection]))
	copy(out, d.docs[collection])
	return out
}

func (d *Documents) CreateDocument(_ context.Context, collection, id string, fields map[string]interface{}) (*remote.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.Err != nil {
		return nil, d.Err
	}
	if id == "" || id == remote.UniqueID {
		d.seq++
		id = fmt.Sprintf("doc-%d", d.seq)
	}
	for _, doc := range d.docs[collection] {
		if doc.ID == id {
			return nil, domain.ErrAlreadyExists
		}
	}
	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	doc := remote.Document{ID: id, Collection: collection, CreatedAt: now, UpdatedAt: now, Fields: normalized}
	d.docs[collection] = append(d.docs[collection], doc)
	return &doc, nil
}

func (d *Documents) ListDocuments(_ context.Context, collection string, filters ...remote.Filter) ([]remote.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.Err != nil {
		return nil, d.Err
	}
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	var out []remote.Document
	for _, doc := range d.docs[collection] {
		if matches(doc, filters) {
			out = append(out, doc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *Documents) UpdateDocument(_ context.Context, collection, docID string, fields map[string]interface{}) (*remote.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.Err != nil {
		return nil, d.Err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	for i, doc := range d.docs[collection] {
		if doc.ID != docID {
			continue
		}
		merged := make(map[string]interface{}, len(doc.Fields)+len(normalized))
		for k, v := range doc.Fields {
			merged[k] = v
		}
		for k, v := range normalized {
			merged[k] = v
		}
		doc.Fields = merged
		doc.UpdatedAt = time.Now().UTC()
		d.docs[collection][i] = doc
		return &doc, nil
	}
	return nil, domain.ErrNotFound
}

func matches(doc remote.Document, filters []remote.Filter) bool {
	for _, f := range filters {
		want, _ := json.Marshal(f.Value)
		got, _ := json.Marshal(doc.Fields[f.Field])
		if string(want) != string(got) {
			return false
		}
	}
	return true
}

func normalize(fields map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
