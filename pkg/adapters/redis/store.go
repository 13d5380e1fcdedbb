package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/skyscope/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces view keys.
const DefaultPrefix = "skyscope:view:"

// noExpiryScore is the index score for views without a TTL (2100-01-01).
const noExpiryScore = 4102444800

// Store implements ports.ViewStore using Redis.
// Each view is a JSON string key; a ZSET index scored by expiry time backs List.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for views.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for views.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, shared with the Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(viewID string) string {
	return s.prefix + viewID
}

// indexKey contains a colon, which view IDs cannot, so it never collides with
// a view key.
func (s *Store) indexKey() string {
	return s.prefix + "index:views"
}

// Save persists the view to Redis.
func (s *Store) Save(ctx context.Context, view *domain.View) error {
	if err := domain.ValidateViewID(view.ID); err != nil {
		return err
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal view: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = noExpiryScore
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(view.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: view.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the view from Redis.
func (s *Store) Load(ctx context.Context, viewID string) (*domain.View, error) {
	val, err := s.client.Get(ctx, s.key(viewID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrViewNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var view domain.View
	if err := json.Unmarshal([]byte(val), &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal view: %w", err)
	}
	if view.Visible == nil {
		view.Visible = make(domain.VisibleSet)
	}
	return &view, nil
}

// Delete removes the view and its index entry.
func (s *Store) Delete(ctx context.Context, viewID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(viewID))
	pipe.ZRem(ctx, s.indexKey(), viewID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns live view IDs, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired views: %w", err)
	}

	views, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	return views, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
