package ports

import "github.com/anchoros/anchord/internal/core/domain"

type RepoManager interface {
	Events() domain.EventRepository
	Attestations() domain.AttestationRepository
	Commitments() domain.CommitmentRepository
	Multisig() domain.MultisigRepository
	Channels() domain.ChannelRepository
	Rewards() domain.RewardRepository
	Close()
}
