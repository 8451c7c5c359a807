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

const (
	rewardStoreDir = "rewards"
	carryKey       = "carry"
)

type rewardRepository struct {
	store *badgerhold.Store
}

// rewardCarry persists the undistributed remainder between periods.
type rewardCarry struct {
	Amount uint64
}

func NewRewardRepository(config ...interface{}) (domain.RewardRepository, error) {
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
		dir = filepath.Join(baseDir, rewardStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open reward store: %s", err)
	}

	return &rewardRepository{store}, nil
}

func (r *rewardRepository) Add(ctx context.Context, records ...domain.RewardRecord) error {
	for _, record := range records {
		if err := r.store.Insert(record.ID, record); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return fmt.Errorf("failed to add reward record: %w", err)
		}
	}
	return nil
}

func (r *rewardRepository) Update(ctx context.Context, record domain.RewardRecord) error {
	err := r.store.Update(record.ID, record)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Update(record.ID, record)
			attempts++
		}
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("reward record %s not found", record.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update reward record: %w", err)
	}
	return nil
}

func (r *rewardRepository) Get(ctx context.Context, id string) (*domain.RewardRecord, error) {
	var record domain.RewardRecord
	if err := r.store.Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("reward record %s not found", id)
		}
		return nil, fmt.Errorf("failed to get reward record: %w", err)
	}
	return &record, nil
}

func (r *rewardRepository) GetByOwner(
	ctx context.Context, owner string,
) ([]domain.RewardRecord, error) {
	var records []domain.RewardRecord
	if err := r.store.Find(
		&records, badgerhold.Where("Owner").Eq(owner),
	); err != nil {
		return nil, fmt.Errorf("failed to get rewards by owner: %w", err)
	}
	return records, nil
}

func (r *rewardRepository) GetUnclaimedByOwner(
	ctx context.Context, owner string,
) ([]domain.RewardRecord, error) {
	var records []domain.RewardRecord
	if err := r.store.Find(
		&records, badgerhold.Where("Owner").Eq(owner).And("Claimed").Eq(false),
	); err != nil {
		return nil, fmt.Errorf("failed to get unclaimed rewards: %w", err)
	}
	return records, nil
}

func (r *rewardRepository) GetByPeriod(
	ctx context.Context, periodStart, periodEnd int64,
) ([]domain.RewardRecord, error) {
	if err := validateTimeRange(periodStart, periodEnd); err != nil {
		return nil, err
	}

	var records []domain.RewardRecord
	query := badgerhold.Where("PeriodStart").Ge(periodStart).
		And("PeriodEnd").Le(periodEnd)
	if err := r.store.Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to get rewards by period: %w", err)
	}
	return records, nil
}

func (r *rewardRepository) GetCarry(ctx context.Context) (uint64, error) {
	var carry rewardCarry
	err := r.store.Get(carryKey, &carry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get reward carry: %w", err)
	}
	return carry.Amount, nil
}

func (r *rewardRepository) SetCarry(ctx context.Context, amount uint64) error {
	err := r.store.Upsert(carryKey, rewardCarry{Amount: amount})
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Upsert(carryKey, rewardCarry{Amount: amount})
			attempts++
		}
	}
	if err != nil {
		return fmt.Errorf("failed to set reward carry: %w", err)
	}
	return nil
}

func (r *rewardRepository) Close() {
	// nolint:all
	r.store.Close()
}
