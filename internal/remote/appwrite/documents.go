package appwrite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"coffeehouse/internal/remote"
)

const listLimit = 100

type documentList struct {
	Total     int                      `json:"total"`
	Documents []map[string]interface{} `json:"documents"`
}

type query struct {
	Method    string        `json:"method"`
	Attribute string        `json:"attribute,omitempty"`
	Values    []interface{} `json:"values,omitempty"`
}

func (c *Client) collectionPath(collection string) string {
	return "/databases/" + url.PathEscape(c.cfg.DatabaseID) + "/collections/" + url.PathEscape(collection) + "/documents"
}

func (c *Client) CreateDocument(ctx context.Context, collection, id string, fields map[string]interface{}) (*remote.Document, error) {
	if strings.TrimSpace(id) == "" {
		id = remote.UniqueID
	}
	var raw map[string]interface{}
	err := c.do(ctx, "create document", http.MethodPost, c.collectionPath(collection), nil, nil, map[string]interface{}{
		"documentId": id,
		"data":       fields,
	}, &raw)
	if err != nil {
		return nil, err
	}
	doc := toDocument(collection, raw)
	return &doc, nil
}

func (c *Client) ListDocuments(ctx context.Context, collection string, filters ...remote.Filter) ([]remote.Document, error) {
	q := url.Values{}
	for _, f := range filters {
		encoded, err := json.Marshal(query{Method: "equal", Attribute: f.Field, Values: []interface{}{f.Value}})
		if err != nil {
			return nil, fmt.Errorf("list documents: encode filter %s: %w", f.Field, err)
		}
		q.Add("queries[]", string(encoded))
	}
	limit, _ := json.Marshal(query{Method: "limit", Values: []interface{}{listLimit}})
	q.Add("queries[]", string(limit))

	var out documentList
	if err := c.do(ctx, "list documents", http.MethodGet, c.collectionPath(collection), q, nil, nil, &out); err != nil {
		return nil, err
	}
	docs := make([]remote.Document, 0, len(out.Documents))
	for _, raw := range out.Documents {
		docs = append(docs, toDocument(collection, raw))
	}
	return docs, nil
}

func (c *Client) UpdateDocument(ctx context.Context, collection, docID string, fields map[string]interface{}) (*remote.Document, error) {
	var raw map[string]interface{}
	path := c.collectionPath(collection) + "/" + url.PathEscape(docID)
	if err := c.do(ctx, "update document", http.MethodPatch, path, nil, nil, map[string]interface{}{"data": fields}, &raw); err != nil {
		return nil, err
	}
	doc := toDocument(collection, raw)
	return &doc, nil
}

// toDocument splits Appwrite's $-prefixed system attributes from the user fields.
func toDocument(collection string, raw map[string]interface{}) remote.Document {
	doc := remote.Document{
		Collection: collection,
		Fields:     make(map[string]interface{}, len(raw)),
	}
	for k, v := range raw {
		if strings.HasPrefix(k, "$") {
			continue
		}
		doc.Fields[k] = v
	}
	doc.ID = remote.String(raw, "$id")
	if t, ok := remote.Time(raw, "$createdAt"); ok {
		doc.CreatedAt = t
	}
	if t, ok := remote.Time(raw, "$updatedAt"); ok {
		doc.UpdatedAt = t
	}
	return doc
}
