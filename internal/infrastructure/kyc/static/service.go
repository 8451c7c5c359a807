package statickyc

import (
	"context"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
)

// service resolves tiers from a static allowlist loaded at startup. Owners
// not listed get the base tier.
type service struct {
	tiers map[string]domain.Tier
}

func NewService(verified, privileged []string) ports.TierProvider {
	tiers := make(map[string]domain.Tier)
	for _, owner := range verified {
		tiers[owner] = domain.TierVerified
	}
	for _, owner := range privileged {
		tiers[owner] = domain.TierPrivileged
	}
	return &service{tiers}
}

func (s *service) GetTier(_ context.Context, owner string) (domain.Tier, error) {
	if tier, ok := s.tiers[owner]; ok {
		return tier, nil
	}
	return domain.TierBase, nil
}
