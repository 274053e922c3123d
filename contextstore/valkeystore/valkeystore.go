// Package valkeystore is the distributed contextstore.KV backend, used in
// multi-instance deployments so ConversationContext survives a restart and
// is visible across replicas. Adapted from the teacher's
// ValkeyContextCacheStore, generalized from provider-cache JSON blobs to
// arbitrary ConversationContext payloads.
package valkeystore

import (
	"context"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/coursebot/assistant/infrastructure/valkey"
)

// Store implements contextstore.KV on top of a Valkey connection.
type Store struct {
	client *valkey.Client
	prefix string
}

func New(client *valkey.Client) *Store {
	return &Store{
		client: client,
		prefix: client.Key("context") + ":",
	}
}

func (s *Store) fullKey(key string) string {
	return s.prefix + key
}

func (s *Store) inner() valkeylib.Client {
	return s.client.Inner()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.inner().B().Get().Key(s.fullKey(key)).Build()
	data, err := s.inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.inner().B().Set().
		Key(s.fullKey(key)).
		Value(string(value)).
		Ex(ttl).
		Build()
	return s.inner().Do(ctx, cmd).Error()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	cmd := s.inner().B().Del().Key(s.fullKey(key)).Build()
	return s.inner().Do(ctx, cmd).Error()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
