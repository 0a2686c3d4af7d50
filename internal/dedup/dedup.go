// Package dedup collapses retransmitted fire-and-forget events using
// short-lived markers in a counter.Store.
package dedup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pixelframe/playerhub/internal/counter"
)

const DefaultTTL = 60 * time.Second

type Deduplicator struct {
	store counter.Store
	ttl   time.Duration
}

func New(store counter.Store, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduplicator{store: store, ttl: ttl}
}

// FirstSeen records key and reports whether no marker existed for it.
func (d *Deduplicator) FirstSeen(ctx context.Context, key string) (bool, error) {
	created, err := d.store.SetNX(ctx, "dd:"+key, d.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to record dedup marker: %w", err)
	}
	return created, nil
}

// Release drops the marker for key so the next delivery counts as first
// seen again. Used when an event was refused for a reason the sender may
// retry.
func (d *Deduplicator) Release(ctx context.Context, key string) error {
	if err := d.store.Delete(ctx, "dd:"+key); err != nil {
		return fmt.Errorf("failed to release dedup marker: %w", err)
	}
	return nil
}

// ViewKey identifies one view event as reported by the player. The raw
// client timestamp is used so retransmissions map to the same key.
func ViewKey(playerID string, postID int64, clientTimestamp string) string {
	return strings.Join([]string{"view", playerID, strconv.FormatInt(postID, 10), clientTimestamp}, ":")
}
