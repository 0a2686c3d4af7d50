package counter

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelframe/playerhub/systemtest/natsserver"
)

func newJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS integration test in short mode")
	}

	ctx := context.Background()
	container, url, err := natsserver.StartNATS(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = natsserver.TerminateNATS(ctx, container) })

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	return js
}

func newNATSTestStore(t *testing.T, js jetstream.JetStream, bucket string) (*NATSStore, *fakeClock) {
	t.Helper()
	kv, err := OpenBucket(context.Background(), js, bucket, time.Hour)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewNATSStore(kv)
	s.now = clock.Now
	return s, clock
}

func TestNATSStore(t *testing.T) {
	js := newJetStream(t)
	ctx := context.Background()

	t.Run("incr counts within window and restarts after expiry", func(t *testing.T) {
		s, clock := newNATSTestStore(t, js, "incr")

		c, err := s.Incr(ctx, "rl:view:p1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Value)
		windowEnd := c.ExpiresAt

		clock.Advance(30 * time.Second)
		c, err = s.Incr(ctx, "rl:view:p1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), c.Value)
		assert.Equal(t, windowEnd, c.ExpiresAt)

		clock.Advance(31 * time.Second)
		c, err = s.Incr(ctx, "rl:view:p1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Value)
		assert.True(t, c.ExpiresAt.After(windowEnd))
	})

	t.Run("setnx creates once until expiry or delete", func(t *testing.T) {
		s, clock := newNATSTestStore(t, js, "markers")

		created, err := s.SetNX(ctx, "dd:view:p1:7", time.Minute)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.SetNX(ctx, "dd:view:p1:7", time.Minute)
		require.NoError(t, err)
		assert.False(t, created)

		clock.Advance(61 * time.Second)
		created, err = s.SetNX(ctx, "dd:view:p1:7", time.Minute)
		require.NoError(t, err)
		assert.True(t, created, "expired marker is replaced")

		require.NoError(t, s.Delete(ctx, "dd:view:p1:7"))
		require.NoError(t, s.Delete(ctx, "dd:view:never"))

		created, err = s.SetNX(ctx, "dd:view:p1:7", time.Minute)
		require.NoError(t, err)
		assert.True(t, created, "deleted marker is recreated")
	})

	t.Run("concurrent setnx has one winner", func(t *testing.T) {
		s, _ := newNATSTestStore(t, js, "race")

		const contenders = 10
		var wg sync.WaitGroup
		results := make([]bool, contenders)
		errs := make([]error, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = s.SetNX(ctx, "dd:race", time.Minute)
			}(i)
		}
		wg.Wait()

		winners := 0
		for i := range results {
			require.NoError(t, errs[i])
			if results[i] {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("concurrent incr counts every call", func(t *testing.T) {
		s, _ := newNATSTestStore(t, js, "concurrent")

		const workers, perWorker = 4, 5
		var mu sync.Mutex
		var seen []int
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					c, err := s.Incr(ctx, "rl:burst", time.Minute)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					seen = append(seen, int(c.Value))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		sort.Ints(seen)
		want := make([]int, workers*perWorker)
		for i := range want {
			want[i] = i + 1
		}
		assert.Equal(t, want, seen, "every increment observes a distinct count")
	})
}
