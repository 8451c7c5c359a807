package application

import (
	"context"
	"fmt"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type RewardService interface {
	// ComputePeriod distributes pool plus any carried remainder across the
	// commitments verified at computation time.
	ComputePeriod(
		ctx context.Context, periodStart, periodEnd int64, pool uint64,
	) ([]domain.RewardRecord, error)
	Claim(ctx context.Context, rewardID string) (*domain.RewardRecord, error)
	GetByOwner(ctx context.Context, owner string) ([]domain.RewardRecord, error)
	UnclaimedBalance(ctx context.Context, owner string) (uint64, error)
}

type rewardService struct {
	repoManager ports.RepoManager
}

func NewRewardService(repoManager ports.RepoManager) RewardService {
	return &rewardService{repoManager: repoManager}
}

func (s *rewardService) ComputePeriod(
	ctx context.Context, periodStart, periodEnd int64, pool uint64,
) ([]domain.RewardRecord, error) {
	if periodEnd <= periodStart {
		return nil, fmt.Errorf(
			"invalid period: end %d not after start %d", periodEnd, periodStart,
		)
	}

	carry, err := s.repoManager.Rewards().GetCarry(ctx)
	if err != nil {
		return nil, err
	}
	distributable := pool + carry

	commitments, err := s.repoManager.Commitments().GetAllVerified(ctx)
	if err != nil {
		return nil, err
	}

	shares, remainder := domain.DistributeRewards(distributable, commitments)
	records := make([]domain.RewardRecord, 0, len(shares))
	for owner, amount := range shares {
		records = append(records, domain.NewRewardRecord(
			owner, periodStart, periodEnd, amount, domain.RewardSourceCommitmentShare,
		))
	}
	if len(records) > 0 {
		if err := s.repoManager.Rewards().Add(ctx, records...); err != nil {
			return nil, err
		}
	}
	if err := s.repoManager.Rewards().SetCarry(ctx, remainder); err != nil {
		return nil, err
	}

	log.Debugf(
		"distributed %d of %d sats across %d owners, carrying %d",
		distributable-remainder, distributable, len(records), remainder,
	)
	return records, nil
}

func (s *rewardService) Claim(
	ctx context.Context, rewardID string,
) (*domain.RewardRecord, error) {
	record, err := s.repoManager.Rewards().Get(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if err := record.Claim(time.Now().Unix()); err != nil {
		return nil, err
	}
	if err := s.repoManager.Rewards().Update(ctx, *record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *rewardService) GetByOwner(
	ctx context.Context, owner string,
) ([]domain.RewardRecord, error) {
	return s.repoManager.Rewards().GetByOwner(ctx, owner)
}

func (s *rewardService) UnclaimedBalance(
	ctx context.Context, owner string,
) (uint64, error) {
	records, err := s.repoManager.Rewards().GetUnclaimedByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	total := uint64(0)
	for _, record := range records {
		total += record.Amount
	}
	return total, nil
}
