package counter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go/jetstream"
)

const maxCASAttempts = 10

// NATSStore keeps counters in a JetStream key-value bucket. Each key holds a
// JSON record with its own expiry; the bucket TTL only garbage-collects
// records that nobody touches again.
type NATSStore struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

type record struct {
	Count     int64     `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewNATSStore(kv jetstream.KeyValue) *NATSStore {
	return &NATSStore{kv: kv, now: time.Now}
}

// OpenBucket creates or updates the bucket backing a NATSStore. maxAge must
// be at least the longest window stored in it.
func OpenBucket(ctx context.Context, js jetstream.JetStream, bucket string, maxAge time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "playerhub expiring counters",
		History:     1,
		TTL:         maxAge,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

func (s *NATSStore) Incr(ctx context.Context, key string, ttl time.Duration) (Count, error) {
	if ttl <= 0 {
		return Count{}, ErrInvalidTTL
	}
	key = SanitizeKey(key)

	var result Count
	err := s.cas(ctx, func() error {
		now := s.now()
		cur, rev, err := s.load(ctx, key)
		if err != nil {
			return backoff.Permanent(err)
		}

		next := record{Count: 1, ExpiresAt: now.Add(ttl)}
		if rev != 0 && now.Before(cur.ExpiresAt) {
			next = record{Count: cur.Count + 1, ExpiresAt: cur.ExpiresAt}
		}

		if err := s.store(ctx, key, next, rev); err != nil {
			return err
		}
		result = Count{Value: next.Count, ExpiresAt: next.ExpiresAt}
		return nil
	})
	if err != nil {
		return Count{}, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return result, nil
}

func (s *NATSStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	key = SanitizeKey(key)

	now := s.now()
	cur, rev, err := s.load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read marker %s: %w", key, err)
	}
	if rev != 0 && now.Before(cur.ExpiresAt) {
		return false, nil
	}

	err = s.store(ctx, key, record{Count: 1, ExpiresAt: now.Add(ttl)}, rev)
	if isConflict(err) {
		// Another writer created or refreshed the marker first.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to write marker %s: %w", key, err)
	}
	return true, nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	key = SanitizeKey(key)
	err := s.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) load(ctx context.Context, key string) (record, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return record{}, 0, nil
	}
	if err != nil {
		return record{}, 0, err
	}

	var rec record
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		// Unreadable records are overwritten as if expired.
		return record{}, entry.Revision(), nil
	}
	return rec, entry.Revision(), nil
}

func (s *NATSStore) store(ctx context.Context, key string, rec record, rev uint64) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return backoff.Permanent(err)
	}
	if rev == 0 {
		_, err = s.kv.Create(ctx, key, data)
	} else {
		_, err = s.kv.Update(ctx, key, data, rev)
	}
	return err
}

// cas retries op while it fails with a revision conflict.
func (s *NATSStore) cas(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxCASAttempts), ctx))
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return strings.Contains(err.Error(), "wrong last sequence")
}

// SanitizeKey maps key onto the character set JetStream accepts for KV keys.
func SanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == '=', r == '/':
			b.WriteRune(r)
		case r == ':' || r == '.':
			b.WriteRune('.')
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}
