package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/anchoros/anchord/internal/core/application"
	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestSubmitAttestationGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestRepoManager(t)
	oracle := newTestOracle(t, repo, "coinwatch", "chainfeed", "blockeye")
	now := time.Now().Unix()

	t.Run("unknown source", func(t *testing.T) {
		_, err := oracle.SubmitAttestation(ctx, "intruder", "BTC/USD", 42000, now)
		require.ErrorIs(t, err, application.ErrUnknownSource)
	})

	t.Run("future timestamp", func(t *testing.T) {
		attestation, err := oracle.SubmitAttestation(ctx, "coinwatch", "BTC/USD", 42000, now+60)
		require.ErrorIs(t, err, application.ErrFutureAttestation)
		require.NotNil(t, attestation)
		require.Equal(t, domain.AttestationStatusRejectedFuture, attestation.Status)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		attestation, err := oracle.SubmitAttestation(ctx, "coinwatch", "BTC/USD", 42000, now-600)
		require.ErrorIs(t, err, application.ErrStaleAttestation)
		require.NotNil(t, attestation)
		require.Equal(t, domain.AttestationStatusRejectedStale, attestation.Status)
	})
}

func TestSubmitAttestationDeviation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestRepoManager(t)
	oracle := newTestOracle(t, repo, "coinwatch", "chainfeed", "blockeye")
	now := time.Now().Unix()

	// the first submission has no other sources to deviate from
	attestation, err := oracle.SubmitAttestation(ctx, "coinwatch", "BTC/USD", 10000, now)
	require.NoError(t, err)
	require.Equal(t, domain.AttestationStatusAccepted, attestation.Status)

	// within threshold of the other sources' median
	attestation, err = oracle.SubmitAttestation(ctx, "chainfeed", "BTC/USD", 10050, now)
	require.NoError(t, err)
	require.Equal(t, domain.AttestationStatusAccepted, attestation.Status)

	// 20% off the median of {10000, 10050}
	attestation, err = oracle.SubmitAttestation(ctx, "blockeye", "BTC/USD", 12000, now)
	require.ErrorIs(t, err, application.ErrExcessiveDeviation)
	require.NotNil(t, attestation)
	require.Equal(t, domain.AttestationStatusRejectedDeviation, attestation.Status)
	require.InDelta(t, 20, attestation.DeviationFromMedian, 0.01)

	// the rejected value must not have entered the window
	value, err := oracle.GetAttestedValue(ctx, "BTC/USD")
	require.NoError(t, err)
	require.Equal(t, uint64(10000), value.Value)

	rejected, err := repo.Attestations().GetRejected(ctx, "BTC/USD", now-60, now+60)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
}

func TestGetAttestedValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().Unix()

	t.Run("median across all fresh sources", func(t *testing.T) {
		repo := newTestRepoManager(t)
		oracle := newTestOracle(t, repo, "coinwatch", "chainfeed", "blockeye")

		_, err := oracle.SubmitAttestation(ctx, "coinwatch", "BTC/USD", 10000, now)
		require.NoError(t, err)
		_, err = oracle.SubmitAttestation(ctx, "chainfeed", "BTC/USD", 10100, now)
		require.NoError(t, err)
		_, err = oracle.SubmitAttestation(ctx, "blockeye", "BTC/USD", 10060, now)
		require.NoError(t, err)

		value, err := oracle.GetAttestedValue(ctx, "BTC/USD")
		require.NoError(t, err)
		require.Equal(t, uint64(10060), value.Value)
		require.Equal(t, 3, value.FreshSources)
		require.InDelta(t, 1.0, value.Confidence, 0.001)
		require.Equal(t, now, value.Timestamp)
	})

	t.Run("confidence degrades with missing sources", func(t *testing.T) {
		repo := newTestRepoManager(t)
		oracle := newTestOracle(t, repo, "coinwatch", "chainfeed", "blockeye")

		_, err := oracle.SubmitAttestation(ctx, "coinwatch", "BTC/USD", 10000, now)
		require.NoError(t, err)
		_, err = oracle.SubmitAttestation(ctx, "chainfeed", "BTC/USD", 10100, now)
		require.NoError(t, err)

		value, err := oracle.GetAttestedValue(ctx, "BTC/USD")
		require.NoError(t, err)
		require.Equal(t, 2, value.FreshSources)
		require.InDelta(t, 2.0/3.0, value.Confidence, 0.001)
		// lower middle for an even count
		require.Equal(t, uint64(10000), value.Value)
	})

	t.Run("no fresh attestations", func(t *testing.T) {
		repo := newTestRepoManager(t)
		oracle := newTestOracle(t, repo, "coinwatch")

		_, err := oracle.GetAttestedValue(ctx, "BTC/USD")
		require.ErrorIs(t, err, application.ErrNoFreshAttestations)
	})
}
