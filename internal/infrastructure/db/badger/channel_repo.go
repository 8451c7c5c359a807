package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const channelStoreDir = "channels"

type channelRepository struct {
	store *badgerhold.Store
}

func NewChannelRepository(config ...interface{}) (domain.ChannelRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, channelStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel store: %s", err)
	}

	return &channelRepository{store}, nil
}

func (r *channelRepository) Add(ctx context.Context, channel domain.StateChannel) error {
	if err := r.store.Insert(channel.ID, channel); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("channel %s already exists", channel.ID)
		}
		return fmt.Errorf("failed to add channel: %w", err)
	}
	return nil
}

func (r *channelRepository) Update(ctx context.Context, channel domain.StateChannel) error {
	err := r.store.Update(channel.ID, channel)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Update(channel.ID, channel)
			attempts++
		}
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("channel %s not found", channel.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	return nil
}

func (r *channelRepository) Get(ctx context.Context, id string) (*domain.StateChannel, error) {
	var channel domain.StateChannel
	if err := r.store.Get(id, &channel); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("channel %s not found", id)
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &channel, nil
}

func (r *channelRepository) GetByParticipant(
	ctx context.Context, participant string,
) ([]domain.StateChannel, error) {
	var channels []domain.StateChannel
	if err := r.store.Find(
		&channels, badgerhold.Where("Participants").Contains(participant),
	); err != nil {
		return nil, fmt.Errorf("failed to get channels by participant: %w", err)
	}
	return channels, nil
}

func (r *channelRepository) GetOpenPastTimeout(
	ctx context.Context, now int64,
) ([]domain.StateChannel, error) {
	var channels []domain.StateChannel
	query := badgerhold.Where("Status").Eq(domain.ChannelStatusOpen).
		And("TimeoutHeight").Le(now)
	if err := r.store.Find(&channels, query); err != nil {
		return nil, fmt.Errorf("failed to get channels past timeout: %w", err)
	}
	return channels, nil
}

func (r *channelRepository) Close() {
	// nolint:all
	r.store.Close()
}
