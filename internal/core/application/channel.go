package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type ChannelService interface {
	Start() error
	Stop()
	Open(
		ctx context.Context, participants []string,
		initialBalances map[string]uint64, timeout time.Duration,
	) (*domain.StateChannel, error)
	ApplyUpdate(
		ctx context.Context, channelID string, balances map[string]uint64,
		sequence uint64, signatures []domain.ChannelSignature,
	) (*domain.StateChannel, error)
	Dispute(
		ctx context.Context, channelID, challenger string, balances map[string]uint64,
		sequence uint64, signatures []domain.ChannelSignature,
	) (*domain.StateChannel, error)
	Settle(ctx context.Context, channelID string) (*domain.StateChannel, error)
	ForceSettle(ctx context.Context, channelID string) (*domain.StateChannel, error)
	Get(ctx context.Context, channelID string) (*domain.StateChannel, error)
	GetByParticipant(ctx context.Context, participant string) ([]domain.StateChannel, error)
}

type channelService struct {
	repoManager ports.RepoManager
	scheduler   ports.SchedulerService
	alerts      ports.Alerts

	sweepInterval time.Duration
}

func NewChannelService(
	repoManager ports.RepoManager, scheduler ports.SchedulerService,
	alerts ports.Alerts, sweepInterval time.Duration,
) ChannelService {
	return &channelService{
		repoManager:   repoManager,
		scheduler:     scheduler,
		alerts:        alerts,
		sweepInterval: sweepInterval,
	}
}

// Start schedules the settlement sweep. The sweep, not the per-channel
// timers, is what guarantees settlement across restarts.
func (s *channelService) Start() error {
	return s.scheduler.ScheduleTaskEvery(s.sweepInterval, s.settleDue)
}

func (s *channelService) Stop() {}

func (s *channelService) Open(
	ctx context.Context, participants []string,
	initialBalances map[string]uint64, timeout time.Duration,
) (*domain.StateChannel, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("channel timeout must be positive")
	}
	timeoutHeight := time.Now().Add(timeout).Unix()
	channel, err := domain.NewStateChannel(
		participants, domain.ChannelState{Balances: initialBalances}, timeoutHeight,
	)
	if err != nil {
		return nil, err
	}
	if err := s.repoManager.Channels().Add(ctx, *channel); err != nil {
		return nil, err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.ChannelTopic, channel.ID,
		domain.ChannelOpened{
			BaseEvent:     newBaseEvent(channel.ID, domain.EventTypeChannelOpened),
			Participants:  participants,
			TimeoutHeight: timeoutHeight,
		},
	)

	channelID := channel.ID
	if err := s.scheduler.ScheduleTaskOnce(timeoutHeight, func() {
		if _, err := s.Settle(context.Background(), channelID); err != nil {
			log.WithError(err).Debugf("scheduled settlement of channel %s", channelID)
		}
	}); err != nil {
		log.WithError(err).Warnf("failed to schedule settlement of channel %s", channelID)
	}
	return channel, nil
}

func (s *channelService) ApplyUpdate(
	ctx context.Context, channelID string, balances map[string]uint64,
	sequence uint64, signatures []domain.ChannelSignature,
) (*domain.StateChannel, error) {
	channel, err := s.repoManager.Channels().Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	newState := domain.ChannelState{Balances: balances}
	if err := channel.ApplyUpdate(newState, sequence, signatures); err != nil {
		return nil, err
	}
	if err := s.repoManager.Channels().Update(ctx, *channel); err != nil {
		return nil, err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.ChannelTopic, channel.ID,
		domain.ChannelUpdated{
			BaseEvent: newBaseEvent(channel.ID, domain.EventTypeChannelUpdated),
			Sequence:  sequence,
			StateHash: channel.StateHash,
		},
	)
	return channel, nil
}

func (s *channelService) Dispute(
	ctx context.Context, channelID, challenger string, balances map[string]uint64,
	sequence uint64, signatures []domain.ChannelSignature,
) (*domain.StateChannel, error) {
	channel, err := s.repoManager.Channels().Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	claimed := domain.ChannelState{Balances: balances}
	if err := channel.Dispute(challenger, claimed, sequence, signatures); err != nil {
		return nil, err
	}
	if err := s.repoManager.Channels().Update(ctx, *channel); err != nil {
		return nil, err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.ChannelTopic, channel.ID,
		domain.ChannelDisputed{
			BaseEvent:  newBaseEvent(channel.ID, domain.EventTypeChannelDisputed),
			Challenger: challenger,
			Sequence:   sequence,
			StateHash:  channel.StateHash,
		},
	)
	publishAlert(s.alerts, ports.ChannelDisputed, ports.ChannelDisputedAlert{
		ChannelID:  channel.ID,
		Challenger: challenger,
		Sequence:   sequence,
		StateHash:  channel.StateHash,
	})
	return channel, nil
}

func (s *channelService) Settle(
	ctx context.Context, channelID string,
) (*domain.StateChannel, error) {
	return s.settle(ctx, channelID, false)
}

// ForceSettle bypasses the timeout gate. It is only reachable through an
// approved channel_force_settle transaction.
func (s *channelService) ForceSettle(
	ctx context.Context, channelID string,
) (*domain.StateChannel, error) {
	return s.settle(ctx, channelID, true)
}

func (s *channelService) Get(
	ctx context.Context, channelID string,
) (*domain.StateChannel, error) {
	return s.repoManager.Channels().Get(ctx, channelID)
}

func (s *channelService) GetByParticipant(
	ctx context.Context, participant string,
) ([]domain.StateChannel, error) {
	return s.repoManager.Channels().GetByParticipant(ctx, participant)
}

// settle finalizes the channel's canonical state into reward records, once.
// Settling an already settled channel returns it unchanged.
func (s *channelService) settle(
	ctx context.Context, channelID string, forced bool,
) (*domain.StateChannel, error) {
	channel, err := s.repoManager.Channels().Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.Status == domain.ChannelStatusSettled {
		return channel, nil
	}

	now := time.Now().Unix()
	if !forced && !channel.Settleable(now) {
		if channel.Status == domain.ChannelStatusDisputed {
			return nil, fmt.Errorf(
				"%w: channel %s is disputed, resolution requires authorization",
				ErrNotSettleable, channelID,
			)
		}
		return nil, fmt.Errorf(
			"%w: channel %s times out at %d", ErrNotSettleable, channelID, channel.TimeoutHeight,
		)
	}

	final := channel.Settle(now)
	if err := s.repoManager.Channels().Update(ctx, *channel); err != nil {
		return nil, err
	}

	records := make([]domain.RewardRecord, 0, len(final.Balances))
	for participant, amount := range final.Balances {
		if amount == 0 {
			continue
		}
		records = append(records, domain.NewRewardRecord(
			participant, channel.CreatedAt, now, amount,
			domain.RewardSourceChannelSettlement,
		))
	}
	if len(records) > 0 {
		if err := s.repoManager.Rewards().Add(ctx, records...); err != nil {
			return nil, fmt.Errorf(
				"failed to credit settlement of channel %s: %s", channelID, err,
			)
		}
	}

	saveEvents(
		ctx, s.repoManager.Events(), domain.ChannelTopic, channel.ID,
		domain.ChannelSettled{
			BaseEvent:   newBaseEvent(channel.ID, domain.EventTypeChannelSettled),
			Sequence:    channel.Sequence,
			StateHash:   channel.StateHash,
			TotalAmount: final.TotalBalance(),
			Forced:      forced,
		},
	)
	log.Debugf(
		"settled channel %s at sequence %d for %d sats",
		channel.ID, channel.Sequence, final.TotalBalance(),
	)
	return channel, nil
}

func (s *channelService) settleDue() {
	ctx := context.Background()
	now := time.Now().Unix()
	channels, err := s.repoManager.Channels().GetOpenPastTimeout(ctx, now)
	if err != nil {
		log.WithError(err).Warn("failed to load channels due for settlement")
		return
	}
	for _, channel := range channels {
		if _, err := s.settle(ctx, channel.ID, false); err != nil {
			log.WithError(err).Warnf("failed to settle channel %s", channel.ID)
		}
	}
}

// ForceSettlePayload settles a channel ahead of its timeout. Resolving a
// disputed channel before its window elapses requires this path.
type ForceSettlePayload struct {
	ChannelID string `json:"channel_id"`
}

func ForceSettleExecutor(channels ChannelService) TxExecutor {
	return func(ctx context.Context, tx domain.PendingTransaction) error {
		var payload ForceSettlePayload
		if err := json.Unmarshal(tx.Payload, &payload); err != nil {
			return fmt.Errorf("invalid force settle payload: %s", err)
		}
		_, err := channels.ForceSettle(ctx, payload.ChannelID)
		return err
	}
}
