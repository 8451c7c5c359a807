package db

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	badgerdb "github.com/anchoros/anchord/internal/infrastructure/db/badger"
	watermilldb "github.com/anchoros/anchord/internal/infrastructure/db/watermill"
)

var (
	attestationStoreTypes = map[string]func(...interface{}) (domain.AttestationRepository, error){
		"badger": badgerdb.NewAttestationRepository,
	}
	commitmentStoreTypes = map[string]func(...interface{}) (domain.CommitmentRepository, error){
		"badger": badgerdb.NewCommitmentRepository,
	}
	multisigStoreTypes = map[string]func(...interface{}) (domain.MultisigRepository, error){
		"badger": badgerdb.NewMultisigRepository,
	}
	channelStoreTypes = map[string]func(...interface{}) (domain.ChannelRepository, error){
		"badger": badgerdb.NewChannelRepository,
	}
	rewardStoreTypes = map[string]func(...interface{}) (domain.RewardRepository, error){
		"badger": badgerdb.NewRewardRepository,
	}
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	DataStoreConfig []interface{}
}

type service struct {
	eventStore       domain.EventRepository
	attestationStore domain.AttestationRepository
	commitmentStore  domain.CommitmentRepository
	multisigStore    domain.MultisigRepository
	channelStore     domain.ChannelRepository
	rewardStore      domain.RewardRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var eventStore domain.EventRepository
	switch config.EventStoreType {
	case "gochannel":
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
		eventStore = watermilldb.NewWatermillEventRepository(pubSub)
	default:
		return nil, fmt.Errorf("unknown event store db type")
	}

	attestationStoreFactory, ok := attestationStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("attestation store type not supported")
	}
	commitmentStoreFactory, ok := commitmentStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("commitment store type not supported")
	}
	multisigStoreFactory, ok := multisigStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("multisig store type not supported")
	}
	channelStoreFactory, ok := channelStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("channel store type not supported")
	}
	rewardStoreFactory, ok := rewardStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("reward store type not supported")
	}

	attestationStore, err := attestationStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open attestation store: %s", err)
	}
	commitmentStore, err := commitmentStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open commitment store: %s", err)
	}
	multisigStore, err := multisigStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open multisig store: %s", err)
	}
	channelStore, err := channelStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel store: %s", err)
	}
	rewardStore, err := rewardStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open reward store: %s", err)
	}

	return &service{
		eventStore:       eventStore,
		attestationStore: attestationStore,
		commitmentStore:  commitmentStore,
		multisigStore:    multisigStore,
		channelStore:     channelStore,
		rewardStore:      rewardStore,
	}, nil
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Attestations() domain.AttestationRepository {
	return s.attestationStore
}

func (s *service) Commitments() domain.CommitmentRepository {
	return s.commitmentStore
}

func (s *service) Multisig() domain.MultisigRepository {
	return s.multisigStore
}

func (s *service) Channels() domain.ChannelRepository {
	return s.channelStore
}

func (s *service) Rewards() domain.RewardRepository {
	return s.rewardStore
}

func (s *service) Close() {
	s.eventStore.Close()
	s.attestationStore.Close()
	s.commitmentStore.Close()
	s.multisigStore.Close()
	s.channelStore.Close()
	s.rewardStore.Close()
}
