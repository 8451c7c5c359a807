package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anchoros/anchord/internal/core/application"
	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	"github.com/stretchr/testify/require"
)

const testCustodian = "custodian"

type commitmentStack struct {
	repo   ports.RepoManager
	oracle application.OracleService
	svc    application.CommitmentService
}

func newCommitmentStack(
	t *testing.T, baseTierLimit uint64, tiers map[string]domain.Tier,
) commitmentStack {
	t.Helper()
	repo := newTestRepoManager(t)
	oracle := newTestOracle(t, repo, testCustodian)
	svc := application.NewCommitmentService(
		repo, oracle, fakeProofVerifier{}, fakeTierProvider{tiers},
		&mockScheduler{}, nil, baseTierLimit, time.Minute,
	)
	return commitmentStack{repo, oracle, svc}
}

// attest publishes a balance attestation for an external address, which is
// what commitment verification reads back.
func (s commitmentStack) attest(t *testing.T, address string, balance uint64) {
	t.Helper()
	_, err := s.oracle.SubmitAttestation(
		context.Background(), testCustodian, address, balance, time.Now().Unix(),
	)
	require.NoError(t, err)
}

func TestSubmitCommitment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	owner := newTestSigner(t).pubkey
	address := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

	t.Run("verified on submission", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 1_000_000)

		commitment, err := stack.svc.Submit(ctx, owner, 500_000, address, "nonce-1", "proof")
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusVerified, commitment.Status)
		require.Equal(t, domain.TierBase, commitment.Tier)
		require.NotZero(t, commitment.LastVerifiedAt)
	})

	t.Run("invalid proof", func(t *testing.T) {
		repo := newTestRepoManager(t)
		oracle := newTestOracle(t, repo, testCustodian)
		svc := application.NewCommitmentService(
			repo, oracle, fakeProofVerifier{err: errors.New("bad signature")},
			fakeTierProvider{}, &mockScheduler{}, nil, 1_000_000, time.Minute,
		)

		_, err := svc.Submit(ctx, owner, 500_000, address, "nonce-1", "proof")
		require.ErrorIs(t, err, application.ErrInvalidProof)
	})

	t.Run("base tier limit", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 10_000_000)

		_, err := stack.svc.Submit(ctx, owner, 1_500_000, address, "nonce-1", "proof")
		require.ErrorIs(t, err, application.ErrTierLimitExceeded)
	})

	t.Run("limit counts existing commitments", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 10_000_000)

		_, err := stack.svc.Submit(ctx, owner, 700_000, address, "nonce-1", "proof")
		require.NoError(t, err)
		_, err = stack.svc.Submit(ctx, owner, 700_000, address, "nonce-2", "proof")
		require.ErrorIs(t, err, application.ErrTierLimitExceeded)
	})

	t.Run("verified tier multiplies the limit", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, map[string]domain.Tier{
			owner: domain.TierVerified,
		})
		stack.attest(t, address, 10_000_000)

		commitment, err := stack.svc.Submit(ctx, owner, 1_500_000, address, "nonce-1", "proof")
		require.NoError(t, err)
		require.Equal(t, domain.TierVerified, commitment.Tier)
	})
}

func TestVerifyCommitment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	owner := newTestSigner(t).pubkey
	address := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

	t.Run("insufficient balance pauses after repeated failures", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 400_000)

		// the eager verification at submission already counts as failure one
		commitment, err := stack.svc.Submit(ctx, owner, 800_000, address, "nonce-1", "proof")
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusPending, commitment.Status)
		require.Equal(t, 1, commitment.ConsecutiveFailures)

		err = stack.svc.Verify(ctx, commitment.ID)
		require.ErrorIs(t, err, application.ErrInsufficientBalance)
		err = stack.svc.Verify(ctx, commitment.ID)
		require.ErrorIs(t, err, application.ErrInsufficientBalance)

		commitment, err = stack.svc.Get(ctx, commitment.ID)
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusUnverified, commitment.Status)
		require.Equal(t, domain.MaxVerificationFailures, commitment.ConsecutiveFailures)
	})

	t.Run("paused commitment recovers only with a fresh proof", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 400_000)

		commitment, err := stack.svc.Submit(ctx, owner, 800_000, address, "nonce-1", "proof")
		require.NoError(t, err)
		require.ErrorIs(t, stack.svc.Verify(ctx, commitment.ID), application.ErrInsufficientBalance)
		require.ErrorIs(t, stack.svc.Verify(ctx, commitment.ID), application.ErrInsufficientBalance)

		commitment, err = stack.svc.Get(ctx, commitment.ID)
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusUnverified, commitment.Status)

		// the oracle catching up does not lift the pause
		stack.attest(t, address, 900_000)
		err = stack.svc.Verify(ctx, commitment.ID)
		require.ErrorIs(t, err, application.ErrProofRequired)

		commitment, err = stack.svc.Get(ctx, commitment.ID)
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusUnverified, commitment.Status)

		// resubmitting a proof does
		commitment, err = stack.svc.UpdateAmount(ctx, commitment.ID, 800_000, "nonce-2", "proof")
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusVerified, commitment.Status)
		require.Zero(t, commitment.ConsecutiveFailures)
	})

	t.Run("recovery resets the failure count", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 400_000)

		commitment, err := stack.svc.Submit(ctx, owner, 800_000, address, "nonce-1", "proof")
		require.NoError(t, err)
		require.Equal(t, 1, commitment.ConsecutiveFailures)

		stack.attest(t, address, 900_000)
		require.NoError(t, err)
		require.NoError(t, stack.svc.Verify(ctx, commitment.ID))

		commitment, err = stack.svc.Get(ctx, commitment.ID)
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusVerified, commitment.Status)
		require.Zero(t, commitment.ConsecutiveFailures)
	})
}

func TestUpdateCommitmentAmount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	owner := newTestSigner(t).pubkey
	address := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

	stack := newCommitmentStack(t, 1_000_000, nil)
	stack.attest(t, address, 600_000)

	commitment, err := stack.svc.Submit(ctx, owner, 500_000, address, "nonce-1", "proof")
	require.NoError(t, err)
	require.Equal(t, domain.CommitmentStatusVerified, commitment.Status)

	// raising above the attested balance demands a fresh verification, which
	// fails until the attested balance catches up
	commitment, err = stack.svc.UpdateAmount(ctx, commitment.ID, 800_000, "nonce-2", "proof")
	require.NoError(t, err)
	require.Equal(t, domain.CommitmentStatusPending, commitment.Status)
	require.Equal(t, 1, commitment.ConsecutiveFailures)
	require.Equal(t, uint64(800_000), commitment.Amount)
	require.Equal(t, "nonce-2", commitment.Nonce)
}

func TestCloseCommitment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	owner := newTestSigner(t).pubkey
	address := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

	t.Run("closes and stays closed", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 1_000_000)

		commitment, err := stack.svc.Submit(ctx, owner, 500_000, address, "nonce-1", "proof")
		require.NoError(t, err)

		require.NoError(t, stack.svc.Close(ctx, commitment.ID))
		commitment, err = stack.svc.Get(ctx, commitment.ID)
		require.NoError(t, err)
		require.Equal(t, domain.CommitmentStatusClosed, commitment.Status)
		require.Zero(t, commitment.Amount)

		require.Error(t, stack.svc.Close(ctx, commitment.ID))
	})

	t.Run("unclaimed rewards block closing the last commitment", func(t *testing.T) {
		stack := newCommitmentStack(t, 1_000_000, nil)
		stack.attest(t, address, 1_000_000)

		commitment, err := stack.svc.Submit(ctx, owner, 500_000, address, "nonce-1", "proof")
		require.NoError(t, err)

		record := domain.NewRewardRecord(
			owner, 0, time.Now().Unix(), 250, domain.RewardSourceCommitmentShare,
		)
		require.NoError(t, stack.repo.Rewards().Add(ctx, record))

		err = stack.svc.Close(ctx, commitment.ID)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unclaimed")

		require.NoError(t, record.Claim(time.Now().Unix()))
		require.NoError(t, stack.repo.Rewards().Update(ctx, record))
		require.NoError(t, stack.svc.Close(ctx, commitment.ID))
	})
}

func TestOverrideTier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	owner := newTestSigner(t).pubkey
	address := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

	stack := newCommitmentStack(t, 1_000_000, nil)
	stack.attest(t, address, 1_000_000)

	commitment, err := stack.svc.Submit(ctx, owner, 500_000, address, "nonce-1", "proof")
	require.NoError(t, err)

	require.NoError(t, stack.svc.OverrideTier(ctx, commitment.ID, domain.TierPrivileged))
	commitment, err = stack.svc.Get(ctx, commitment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TierPrivileged, commitment.Tier)

	require.NoError(t, stack.svc.Close(ctx, commitment.ID))
	require.Error(t, stack.svc.OverrideTier(ctx, commitment.ID, domain.TierBase))
}
