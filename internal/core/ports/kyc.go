package ports

import (
	"context"

	"github.com/anchoros/anchord/internal/core/domain"
)

// TierProvider resolves the commitment tier granted to an owner. The tier
// caps how much a single owner may commit.
type TierProvider interface {
	GetTier(ctx context.Context, owner string) (domain.Tier, error)
}
