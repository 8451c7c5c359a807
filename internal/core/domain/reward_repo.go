package domain

import "context"

type RewardRepository interface {
	Add(ctx context.Context, records ...RewardRecord) error
	Update(ctx context.Context, record RewardRecord) error
	Get(ctx context.Context, id string) (*RewardRecord, error)
	GetByOwner(ctx context.Context, owner string) ([]RewardRecord, error)
	GetUnclaimedByOwner(ctx context.Context, owner string) ([]RewardRecord, error)
	GetByPeriod(ctx context.Context, periodStart, periodEnd int64) ([]RewardRecord, error)
	GetCarry(ctx context.Context) (uint64, error)
	SetCarry(ctx context.Context, carry uint64) error
	Close()
}
