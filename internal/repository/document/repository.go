package document

import (
	"context"

	"coffeehouse/internal/remote"
)

// Repository is the self-hosted document store. Besides the remote.DocumentStore
// surface it can remove documents, which the storefront itself never does.
type Repository interface {
	remote.DocumentStore
	Delete(ctx context.Context, collection, docID string) error
}
