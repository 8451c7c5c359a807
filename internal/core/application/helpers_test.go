package application_test

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/anchoros/anchord/internal/core/application"
	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	"github.com/anchoros/anchord/internal/infrastructure/db"
	inmemorylivestore "github.com/anchoros/anchord/internal/infrastructure/live-store/inmemory"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"
)

const (
	testWindowSize   = 12
	testMaxStaleness = 2 * time.Minute
)

type testSigner struct {
	key    *btcec.PrivateKey
	pubkey string
}

func newTestSigner(t *testing.T) testSigner {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return testSigner{
		key:    key,
		pubkey: hex.EncodeToString(key.PubKey().SerializeCompressed()),
	}
}

func (s testSigner) sign(digest []byte) string {
	return hex.EncodeToString(ecdsa.Sign(s.key, digest).Serialize())
}

func newTestRepoManager(t *testing.T) ports.RepoManager {
	t.Helper()
	repo, err := db.NewService(db.ServiceConfig{
		EventStoreType:  "gochannel",
		DataStoreType:   "badger",
		DataStoreConfig: []interface{}{"", nil},
	})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func newTestOracle(
	t *testing.T, repo ports.RepoManager, sources ...string,
) application.OracleService {
	t.Helper()
	liveStore := inmemorylivestore.NewLiveStore(testWindowSize)
	svc := application.NewOracleService(
		repo, liveStore, nil, testMaxStaleness, 5*time.Second, 5,
	)
	for _, sourceID := range sources {
		require.NoError(t, svc.RegisterSource(context.Background(), sourceID))
	}
	return svc
}

type mockScheduler struct{}

func (m *mockScheduler) Start() {}
func (m *mockScheduler) Stop()  {}
func (m *mockScheduler) ScheduleTaskOnce(_ int64, _ func()) error {
	return nil
}
func (m *mockScheduler) ScheduleTaskEvery(_ time.Duration, _ func()) error {
	return nil
}

type fakeProofVerifier struct {
	err error
}

func (f fakeProofVerifier) Verify(_ context.Context, _ ports.Proof) error {
	return f.err
}

type fakeTierProvider struct {
	tiers map[string]domain.Tier
}

func (f fakeTierProvider) GetTier(_ context.Context, owner string) (domain.Tier, error) {
	return f.tiers[owner], nil
}
