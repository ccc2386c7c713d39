// Package storage is the durable key/value mirror that holds per-device state
// (cart contents, session credential, favorites).
package storage

import "context"

// Store maps keys to string values.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type scoped struct {
	inner  Store
	prefix string
}

// Scoped namespaces every key under "<namespace>:".
func Scoped(inner Store, namespace string) Store {
	return &scoped{inner: inner, prefix: namespace + ":"}
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}
