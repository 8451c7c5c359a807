package domain_test

import (
	"testing"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func signUpdate(
	channel *domain.StateChannel, signers []testSigner,
	state domain.ChannelState, sequence uint64,
) []domain.ChannelSignature {
	digest := channel.UpdateDigest(state.Hash(), sequence)
	signatures := make([]domain.ChannelSignature, 0, len(signers))
	for _, signer := range signers {
		signatures = append(signatures, domain.ChannelSignature{
			Participant: signer.pubkey,
			Signature:   signer.sign(digest),
		})
	}
	return signatures
}

func TestNewStateChannel(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	timeout := time.Now().Unix() + 3600

	t.Run("valid", func(t *testing.T) {
		channel, err := domain.NewStateChannel(
			[]string{alice.pubkey, bob.pubkey},
			domain.ChannelState{Balances: map[string]uint64{alice.pubkey: 1000}},
			timeout,
		)
		require.NoError(t, err)
		require.Zero(t, channel.Sequence)
		require.Equal(t, domain.ChannelStatusOpen, channel.Status)
		require.NotEmpty(t, channel.StateHash)
	})

	t.Run("single participant fails", func(t *testing.T) {
		_, err := domain.NewStateChannel(
			[]string{alice.pubkey}, domain.ChannelState{}, timeout,
		)
		require.Error(t, err)
	})

	t.Run("balance for non-participant fails", func(t *testing.T) {
		outsider := newTestSigner(t)
		_, err := domain.NewStateChannel(
			[]string{alice.pubkey, bob.pubkey},
			domain.ChannelState{Balances: map[string]uint64{outsider.pubkey: 1}},
			timeout,
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "non-participant")
	})
}

func TestChannelApplyUpdate(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	signers := []testSigner{alice, bob}
	timeout := time.Now().Unix() + 3600

	channel, err := domain.NewStateChannel(
		[]string{alice.pubkey, bob.pubkey}, domain.ChannelState{}, timeout,
	)
	require.NoError(t, err)

	stateAt5 := domain.ChannelState{Balances: map[string]uint64{
		alice.pubkey: 600, bob.pubkey: 400,
	}}
	require.NoError(t, channel.ApplyUpdate(
		stateAt5, 5, signUpdate(channel, signers, stateAt5, 5),
	))
	require.Equal(t, uint64(5), channel.Sequence)

	// sequences only need to increase, gaps are fine
	stateAt7 := domain.ChannelState{Balances: map[string]uint64{
		alice.pubkey: 300, bob.pubkey: 700,
	}}
	require.NoError(t, channel.ApplyUpdate(
		stateAt7, 7, signUpdate(channel, signers, stateAt7, 7),
	))
	require.Equal(t, uint64(7), channel.Sequence)
	require.Equal(t, stateAt7.Hash(), channel.StateHash)

	t.Run("stale sequence rejected", func(t *testing.T) {
		err := channel.ApplyUpdate(
			stateAt5, 5, signUpdate(channel, signers, stateAt5, 5),
		)
		require.ErrorIs(t, err, domain.ErrStaleSequence)
	})

	t.Run("equal sequence rejected", func(t *testing.T) {
		err := channel.ApplyUpdate(
			stateAt7, 7, signUpdate(channel, signers, stateAt7, 7),
		)
		require.ErrorIs(t, err, domain.ErrStaleSequence)
	})

	t.Run("partial signatures rejected", func(t *testing.T) {
		next := domain.ChannelState{Balances: map[string]uint64{alice.pubkey: 1000}}
		err := channel.ApplyUpdate(
			next, 8, signUpdate(channel, []testSigner{alice}, next, 8),
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "missing signature")
	})

	t.Run("signature over wrong sequence rejected", func(t *testing.T) {
		next := domain.ChannelState{Balances: map[string]uint64{alice.pubkey: 1000}}
		err := channel.ApplyUpdate(
			next, 9, signUpdate(channel, signers, next, 8),
		)
		require.Error(t, err)
	})
}

func TestChannelDispute(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	signers := []testSigner{alice, bob}
	timeout := time.Now().Unix() + 3600

	channel, err := domain.NewStateChannel(
		[]string{alice.pubkey, bob.pubkey}, domain.ChannelState{}, timeout,
	)
	require.NoError(t, err)

	stateAt3 := domain.ChannelState{Balances: map[string]uint64{
		alice.pubkey: 900, bob.pubkey: 100,
	}}
	require.NoError(t, channel.ApplyUpdate(
		stateAt3, 3, signUpdate(channel, signers, stateAt3, 3),
	))

	t.Run("outsider cannot dispute", func(t *testing.T) {
		outsider := newTestSigner(t)
		err := channel.Dispute(outsider.pubkey, stateAt3, 4, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "not a participant")
	})

	t.Run("lower sequence cannot dispute", func(t *testing.T) {
		stale := domain.ChannelState{Balances: map[string]uint64{alice.pubkey: 1}}
		err := channel.Dispute(
			bob.pubkey, stale, 2, signUpdate(channel, signers, stale, 2),
		)
		require.ErrorIs(t, err, domain.ErrStaleSequence)
	})

	// the higher fully-signed state becomes canonical
	stateAt6 := domain.ChannelState{Balances: map[string]uint64{
		alice.pubkey: 500, bob.pubkey: 500,
	}}
	require.NoError(t, channel.Dispute(
		bob.pubkey, stateAt6, 6, signUpdate(channel, signers, stateAt6, 6),
	))
	require.Equal(t, domain.ChannelStatusDisputed, channel.Status)
	require.Equal(t, bob.pubkey, channel.DisputedBy)
	require.Equal(t, uint64(6), channel.Sequence)
}

func TestChannelSettle(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	now := time.Now().Unix()

	channel, err := domain.NewStateChannel(
		[]string{alice.pubkey, bob.pubkey},
		domain.ChannelState{Balances: map[string]uint64{alice.pubkey: 250}},
		now+100,
	)
	require.NoError(t, err)

	require.False(t, channel.Settleable(now))
	require.True(t, channel.Settleable(now+100))

	final := channel.Settle(now + 100)
	require.Equal(t, domain.ChannelStatusSettled, channel.Status)
	require.Equal(t, uint64(250), final.TotalBalance())

	// settling again is a no-op returning the same state
	again := channel.Settle(now + 500)
	require.Equal(t, final.Hash(), again.Hash())
	require.Equal(t, now+100, channel.SettledAt)

	require.Error(t, channel.ApplyUpdate(final, 10, nil))
}
