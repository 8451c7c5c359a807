package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RewardSource string

const (
	RewardSourceCommitmentShare   RewardSource = "commitment_share"
	RewardSourceChannelSettlement RewardSource = "channel_settlement"
)

// RewardRecord is derived state: it is recomputed from commitments and
// channel settlements per period, never independently mutated.
type RewardRecord struct {
	ID          string
	Owner       string
	PeriodStart int64
	PeriodEnd   int64
	Amount      uint64
	Source      RewardSource
	Claimed     bool
	ClaimedAt   int64
	CreatedAt   int64
}

func NewRewardRecord(
	owner string, periodStart, periodEnd int64, amount uint64, source RewardSource,
) RewardRecord {
	return RewardRecord{
		ID:          uuid.New().String(),
		Owner:       owner,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Amount:      amount,
		Source:      source,
		CreatedAt:   time.Now().Unix(),
	}
}

func (r *RewardRecord) Claim(now int64) error {
	if r.Claimed {
		return fmt.Errorf("reward %s already claimed", r.ID)
	}
	r.Claimed = true
	r.ClaimedAt = now
	return nil
}

// DistributeRewards splits a distributable pool across verified commitments
// proportionally to committed amount, flooring each share to a whole satoshi.
// The undistributed remainder is returned and carried into the next period,
// so no satoshi is ever lost or double-counted.
func DistributeRewards(
	pool uint64, commitments []Commitment,
) (map[string]uint64, uint64) {
	shares := make(map[string]uint64)
	if pool == 0 {
		return shares, 0
	}

	totalCommitted := uint64(0)
	perOwner := make(map[string]uint64)
	for _, c := range commitments {
		if !c.EarnsRewards() {
			continue
		}
		totalCommitted += c.Amount
		perOwner[c.Owner] += c.Amount
	}
	if totalCommitted == 0 {
		return shares, pool
	}

	owners := make([]string, 0, len(perOwner))
	for owner := range perOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	poolDec := decimal.NewFromUint64(pool)
	totalDec := decimal.NewFromUint64(totalCommitted)

	distributed := uint64(0)
	for _, owner := range owners {
		share := poolDec.
			Mul(decimal.NewFromUint64(perOwner[owner])).
			Div(totalDec).
			Floor()
		amount := share.BigInt().Uint64()
		if amount == 0 {
			continue
		}
		shares[owner] = amount
		distributed += amount
	}
	return shares, pool - distributed
}
