package livestore_test

import (
	"os"
	"testing"
	"time"

	"github.com/anchoros/anchord/internal/core/ports"
	inmemory "github.com/anchoros/anchord/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/anchoros/anchord/internal/infrastructure/live-store/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const windowSize = 12

func TestLiveStore(t *testing.T) {
	stores := []struct {
		name  string
		store ports.LiveStore
	}{
		{"inmemory", inmemory.NewLiveStore(windowSize)},
	}

	// redis tests need a reachable server, e.g. redis://localhost:6379/0
	if redisURL := os.Getenv("ANCHORD_TEST_REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		require.NoError(t, err)
		rdb := redis.NewClient(redisOpts)
		stores = append(stores, struct {
			name  string
			store ports.LiveStore
		}{"redis", redislivestore.NewLiveStore(rdb, windowSize, 5)})
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			runLiveStoreTests(t, tt.store)
		})
	}
}

func runLiveStoreTests(t *testing.T, store ports.LiveStore) {
	t.Run("SourceStore", func(t *testing.T) {
		ctx := t.Context()

		exists, err := store.Sources().Exists(ctx, "coinwatch")
		require.NoError(t, err)
		require.False(t, exists)

		require.NoError(t, store.Sources().Register(ctx, "coinwatch"))
		require.NoError(t, store.Sources().Register(ctx, "chainfeed"))
		// registration is idempotent
		require.NoError(t, store.Sources().Register(ctx, "coinwatch"))

		exists, err = store.Sources().Exists(ctx, "coinwatch")
		require.NoError(t, err)
		require.True(t, exists)

		sources, err := store.Sources().GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, sources, 2)
		require.ElementsMatch(t, []string{"coinwatch", "chainfeed"}, sources)
	})

	t.Run("AttestationWindowStore", func(t *testing.T) {
		ctx := t.Context()
		now := time.Now().Unix()

		latest, err := store.AttestationWindows().LatestBySource(ctx, "BTC/USD")
		require.NoError(t, err)
		require.Empty(t, latest)

		for i := 0; i < windowSize+3; i++ {
			require.NoError(t, store.AttestationWindows().Push(
				ctx, "BTC/USD", ports.AttestationPoint{
					SourceID:  "coinwatch",
					Value:     uint64(4200000000 + i),
					Timestamp: now + int64(i),
				},
			))
		}
		require.NoError(t, store.AttestationWindows().Push(
			ctx, "BTC/USD", ports.AttestationPoint{
				SourceID:  "chainfeed",
				Value:     4200000050,
				Timestamp: now,
			},
		))

		// the window is capped, oldest points fall off
		window, err := store.AttestationWindows().Window(ctx, "BTC/USD", "coinwatch")
		require.NoError(t, err)
		require.Len(t, window, windowSize)
		require.Equal(t, uint64(4200000003), window[0].Value)
		require.Equal(t, uint64(4200000000+windowSize+2), window[len(window)-1].Value)

		latest, err = store.AttestationWindows().LatestBySource(ctx, "BTC/USD")
		require.NoError(t, err)
		require.Len(t, latest, 2)
		require.Equal(t, uint64(4200000000+windowSize+2), latest["coinwatch"].Value)
		require.Equal(t, uint64(4200000050), latest["chainfeed"].Value)

		// pairs are isolated
		window, err = store.AttestationWindows().Window(ctx, "ETH/USD", "coinwatch")
		require.NoError(t, err)
		require.Empty(t, window)
	})
}
