package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/anchoros/anchord/internal/core/application"
	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	"github.com/stretchr/testify/require"
)

func addVerifiedCommitment(
	t *testing.T, repo ports.RepoManager, owner string, amount uint64,
) {
	t.Helper()
	commitment, err := domain.NewCommitment(
		owner, amount, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", "nonce",
	)
	require.NoError(t, err)
	commitment.MarkVerified(time.Now().Unix())
	require.NoError(t, repo.Commitments().Add(context.Background(), *commitment))
}

func TestComputePeriod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestRepoManager(t)
	svc := application.NewRewardService(repo)

	owners := []string{
		newTestSigner(t).pubkey, newTestSigner(t).pubkey, newTestSigner(t).pubkey,
	}
	addVerifiedCommitment(t, repo, owners[0], 600)
	addVerifiedCommitment(t, repo, owners[1], 300)
	addVerifiedCommitment(t, repo, owners[2], 100)

	now := time.Now().Unix()
	records, err := svc.ComputePeriod(ctx, now-3600, now, 1000)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byOwner := make(map[string]domain.RewardRecord, len(records))
	for _, record := range records {
		byOwner[record.Owner] = record
	}
	require.Equal(t, uint64(600), byOwner[owners[0]].Amount)
	require.Equal(t, uint64(300), byOwner[owners[1]].Amount)
	require.Equal(t, uint64(100), byOwner[owners[2]].Amount)
	for _, record := range records {
		require.Equal(t, domain.RewardSourceCommitmentShare, record.Source)
		require.Equal(t, now-3600, record.PeriodStart)
		require.Equal(t, now, record.PeriodEnd)
		require.False(t, record.Claimed)
	}

	carry, err := repo.Rewards().GetCarry(ctx)
	require.NoError(t, err)
	require.Zero(t, carry)
}

func TestComputePeriodCarriesRemainder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestRepoManager(t)
	svc := application.NewRewardService(repo)

	owners := []string{
		newTestSigner(t).pubkey, newTestSigner(t).pubkey, newTestSigner(t).pubkey,
	}
	for _, owner := range owners {
		addVerifiedCommitment(t, repo, owner, 1)
	}

	now := time.Now().Unix()
	records, err := svc.ComputePeriod(ctx, now-3600, now, 100)
	require.NoError(t, err)
	require.Len(t, records, 3)

	distributed := uint64(0)
	for _, record := range records {
		require.Equal(t, uint64(33), record.Amount)
		distributed += record.Amount
	}
	carry, err := repo.Rewards().GetCarry(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), carry)
	require.Equal(t, uint64(100), distributed+carry)

	// the carried satoshi joins the next period's pool
	records, err = svc.ComputePeriod(ctx, now, now+3600, 2)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, record := range records {
		require.Equal(t, uint64(1), record.Amount)
	}
	carry, err = repo.Rewards().GetCarry(ctx)
	require.NoError(t, err)
	require.Zero(t, carry)
}

func TestComputePeriodEdgeCases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().Unix()

	t.Run("invalid period", func(t *testing.T) {
		repo := newTestRepoManager(t)
		svc := application.NewRewardService(repo)
		_, err := svc.ComputePeriod(ctx, now, now, 1000)
		require.Error(t, err)
	})

	t.Run("no verified commitments carries the whole pool", func(t *testing.T) {
		repo := newTestRepoManager(t)
		svc := application.NewRewardService(repo)

		records, err := svc.ComputePeriod(ctx, now-3600, now, 1000)
		require.NoError(t, err)
		require.Empty(t, records)

		carry, err := repo.Rewards().GetCarry(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1000), carry)
	})
}

func TestClaimReward(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestRepoManager(t)
	svc := application.NewRewardService(repo)

	owner := newTestSigner(t).pubkey
	addVerifiedCommitment(t, repo, owner, 500)

	now := time.Now().Unix()
	records, err := svc.ComputePeriod(ctx, now-3600, now, 1000)
	require.NoError(t, err)
	require.Len(t, records, 1)

	balance, err := svc.UnclaimedBalance(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), balance)

	claimed, err := svc.Claim(ctx, records[0].ID)
	require.NoError(t, err)
	require.True(t, claimed.Claimed)
	require.NotZero(t, claimed.ClaimedAt)

	_, err = svc.Claim(ctx, records[0].ID)
	require.Error(t, err)

	balance, err = svc.UnclaimedBalance(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, balance)

	history, err := svc.GetByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, history, 1)
}
