// Package store is a thin façade over the key-value collaborator. All
// operations are full-list read/replace: callers read the current list,
// mutate it in memory, and write the whole list back.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"telefeed/internal/domain"
)

const (
	subscriberKeyPrefix = "subscriber:"
	feedKeyPrefix       = "feed:"

	listCacheTTL        = time.Hour
	listCacheMaxEntries = 1024
)

// KV is the external key-value collaborator. Get returns nil for an absent
// key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

type Store struct {
	kv    KV
	cache *listCache
	now   func() time.Time
	log   *slog.Logger
}

func New(kv KV, log *slog.Logger) *Store {
	return &Store{
		kv:    kv,
		cache: newListCache(listCacheMaxEntries),
		now:   time.Now,
		log:   log,
	}
}

func subscriberKey(subscriberID int64) string {
	return subscriberKeyPrefix + strconv.FormatInt(subscriberID, 10)
}

func feedKey(feedURL string) string {
	return feedKeyPrefix + url.QueryEscape(feedURL)
}

// ListSubscriptions returns the subscriber's subscription list, serving
// repeated reads from the TTL cache until the next SaveSubscriptions.
func (s *Store) ListSubscriptions(
	ctx context.Context,
	subscriberID int64,
) ([]domain.Subscription, error) {
	now := s.now()

	if subs, ok := s.cache.get(subscriberID, now); ok {
		return subs, nil
	}

	key := subscriberKey(subscriberID)

	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get key %q: %w", key, err)
	}
	if raw == nil {
		return nil, nil
	}

	var subs []domain.Subscription
	if err = json.Unmarshal(raw, &subs); err != nil {
		return nil, fmt.Errorf("unmarshal key %q: %w", key, err)
	}

	s.cache.set(subscriberID, subs, now.Add(listCacheTTL), now)

	return subs, nil
}

// SaveSubscriptions replaces the subscriber's full subscription list. The
// cache entry is invalidated before the write so a failed put cannot leave
// stale data behind.
func (s *Store) SaveSubscriptions(
	ctx context.Context,
	subscriberID int64,
	subs []domain.Subscription,
) error {
	s.cache.invalidate(subscriberID)

	key := subscriberKey(subscriberID)

	raw, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("marshal key %q: %w", key, err)
	}

	if err = s.kv.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("put key %q: %w", key, err)
	}

	return nil
}

func (s *Store) ListAllSubscriberIDs(ctx context.Context) ([]int64, error) {
	keys, err := s.kv.ListKeys(ctx, subscriberKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list keys with prefix %q: %w", subscriberKeyPrefix, err)
	}

	subscriberIDs := make([]int64, 0, len(keys))

	for _, key := range keys {
		idStr, ok := strings.CutPrefix(key, subscriberKeyPrefix)
		if !ok {
			continue
		}

		subscriberID, parseErr := strconv.ParseInt(idStr, 10, 64)
		if parseErr != nil {
			s.log.WarnContext(ctx, "Skipping malformed subscriber key",
				"key", key,
				"error", parseErr)

			continue
		}

		subscriberIDs = append(subscriberIDs, subscriberID)
	}

	return subscriberIDs, nil
}

// GetSeenSet returns the feed's fingerprint history. The seen set is keyed
// by feed URL and shared across all subscribers of the feed.
func (s *Store) GetSeenSet(ctx context.Context, feedURL string) ([]string, error) {
	key := feedKey(feedURL)

	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get key %q: %w", key, err)
	}
	if raw == nil {
		return nil, nil
	}

	var fingerprints []string
	if err = json.Unmarshal(raw, &fingerprints); err != nil {
		return nil, fmt.Errorf("unmarshal key %q: %w", key, err)
	}

	return fingerprints, nil
}

func (s *Store) SaveSeenSet(ctx context.Context, feedURL string, fingerprints []string) error {
	key := feedKey(feedURL)

	raw, err := json.Marshal(fingerprints)
	if err != nil {
		return fmt.Errorf("marshal key %q: %w", key, err)
	}

	if err = s.kv.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("put key %q: %w", key, err)
	}

	return nil
}
