package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

var tierMultipliers = map[domain.Tier]uint64{
	domain.TierBase:       1,
	domain.TierVerified:   10,
	domain.TierPrivileged: 100,
}

type CommitmentService interface {
	Start() error
	Stop()
	Submit(
		ctx context.Context, owner string, amount uint64,
		externalAddress, nonce, proofSignature string,
	) (*domain.Commitment, error)
	UpdateAmount(
		ctx context.Context, id string, newAmount uint64, nonce, proofSignature string,
	) (*domain.Commitment, error)
	Verify(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Commitment, error)
	GetByOwner(ctx context.Context, owner string) ([]domain.Commitment, error)
	OverrideTier(ctx context.Context, id string, tier domain.Tier) error
}

type commitmentService struct {
	repoManager   ports.RepoManager
	oracle        OracleService
	proofVerifier ports.ProofVerifier
	tierProvider  ports.TierProvider
	scheduler     ports.SchedulerService
	alerts        ports.Alerts

	baseTierLimit  uint64
	verifyInterval time.Duration
}

func NewCommitmentService(
	repoManager ports.RepoManager, oracle OracleService,
	proofVerifier ports.ProofVerifier, tierProvider ports.TierProvider,
	scheduler ports.SchedulerService, alerts ports.Alerts,
	baseTierLimit uint64, verifyInterval time.Duration,
) CommitmentService {
	return &commitmentService{
		repoManager:    repoManager,
		oracle:         oracle,
		proofVerifier:  proofVerifier,
		tierProvider:   tierProvider,
		scheduler:      scheduler,
		alerts:         alerts,
		baseTierLimit:  baseTierLimit,
		verifyInterval: verifyInterval,
	}
}

func (s *commitmentService) Start() error {
	return s.scheduler.ScheduleTaskEvery(s.verifyInterval, s.reverifyAll)
}

func (s *commitmentService) Stop() {}

func (s *commitmentService) Submit(
	ctx context.Context, owner string, amount uint64,
	externalAddress, nonce, proofSignature string,
) (*domain.Commitment, error) {
	commitment, err := domain.NewCommitment(owner, amount, externalAddress, nonce)
	if err != nil {
		return nil, err
	}

	if err := s.proofVerifier.Verify(ctx, ports.Proof{
		Address:   externalAddress,
		Message:   commitment.ProofMessage(),
		Signature: proofSignature,
	}); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	commitment.ProofReference = proofSignature

	tier, err := s.tierProvider.GetTier(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tier for %s: %s", owner, err)
	}
	commitment.Tier = tier

	if err := s.checkTierLimit(ctx, owner, tier, amount, ""); err != nil {
		return nil, err
	}

	if err := s.repoManager.Commitments().Add(ctx, *commitment); err != nil {
		return nil, err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.CommitmentTopic, commitment.ID,
		domain.CommitmentSubmitted{
			BaseEvent:       newBaseEvent(commitment.ID, domain.EventTypeCommitmentSubmitted),
			Owner:           owner,
			Amount:          amount,
			ExternalAddress: externalAddress,
		},
	)
	log.Debugf(
		"new commitment %s: %d sats at %s (%s tier)",
		commitment.ID, amount, externalAddress, tier,
	)

	// verify eagerly so a commitment the oracle already covers earns from
	// this period, failures here are retried by the periodic loop
	if err := s.Verify(ctx, commitment.ID); err != nil {
		log.WithError(err).Debugf("deferred verification of commitment %s", commitment.ID)
	}
	return s.Get(ctx, commitment.ID)
}

func (s *commitmentService) UpdateAmount(
	ctx context.Context, id string, newAmount uint64, nonce, proofSignature string,
) (*domain.Commitment, error) {
	commitment, err := s.repoManager.Commitments().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.proofVerifier.Verify(ctx, ports.Proof{
		Address:   commitment.ExternalAddress,
		Message:   domain.ProofMessage(commitment.Owner, nonce),
		Signature: proofSignature,
	}); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}

	if err := s.checkTierLimit(
		ctx, commitment.Owner, commitment.Tier, newAmount, commitment.ID,
	); err != nil {
		return nil, err
	}

	if err := commitment.UpdateAmount(newAmount, nonce); err != nil {
		return nil, err
	}
	commitment.ProofReference = proofSignature

	if err := s.repoManager.Commitments().Update(ctx, *commitment); err != nil {
		return nil, err
	}

	if err := s.Verify(ctx, commitment.ID); err != nil {
		log.WithError(err).Debugf("deferred verification of commitment %s", commitment.ID)
	}
	return s.Get(ctx, commitment.ID)
}

func (s *commitmentService) Verify(ctx context.Context, id string) error {
	commitment, err := s.repoManager.Commitments().Get(ctx, id)
	if err != nil {
		return err
	}
	if commitment.Status == domain.CommitmentStatusClosed {
		return fmt.Errorf("commitment %s is closed", id)
	}

	attested, err := s.oracle.GetAttestedValue(ctx, commitment.ExternalAddress)
	if err != nil {
		if errors.Is(err, ErrNoFreshAttestations) {
			if failErr := s.markFailed(
				ctx, commitment, "no fresh balance attestation",
			); failErr != nil {
				return failErr
			}
		}
		return err
	}
	if attested.Value < commitment.Amount {
		if err := s.markFailed(ctx, commitment, fmt.Sprintf(
			"attested balance %d below committed %d", attested.Value, commitment.Amount,
		)); err != nil {
			return err
		}
		return fmt.Errorf(
			"%w: attested %d, committed %d",
			ErrInsufficientBalance, attested.Value, commitment.Amount,
		)
	}

	// a paused commitment only recovers through a resubmitted proof, the
	// oracle catching up again is not enough on its own
	if commitment.Status == domain.CommitmentStatusUnverified {
		return fmt.Errorf("%w: commitment %s is paused", ErrProofRequired, id)
	}

	commitment.MarkVerified(time.Now().Unix())
	if err := s.repoManager.Commitments().Update(ctx, *commitment); err != nil {
		return err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.CommitmentTopic, commitment.ID,
		domain.CommitmentVerified{
			BaseEvent: newBaseEvent(commitment.ID, domain.EventTypeCommitmentVerified),
			Owner:     commitment.Owner,
			Amount:    commitment.Amount,
		},
	)
	return nil
}

func (s *commitmentService) Close(ctx context.Context, id string) error {
	commitment, err := s.repoManager.Commitments().Get(ctx, id)
	if err != nil {
		return err
	}

	// rewards accrue per owner, so the unclaimed gate only binds when the
	// owner is closing their last active commitment
	unclaimed := uint64(0)
	active, err := s.repoManager.Commitments().GetByOwner(ctx, commitment.Owner)
	if err != nil {
		return err
	}
	lastActive := true
	for _, other := range active {
		if other.ID != id && other.Status != domain.CommitmentStatusClosed {
			lastActive = false
			break
		}
	}
	if lastActive {
		records, err := s.repoManager.Rewards().GetUnclaimedByOwner(ctx, commitment.Owner)
		if err != nil {
			return err
		}
		for _, record := range records {
			unclaimed += record.Amount
		}
	}

	if err := commitment.Close(unclaimed); err != nil {
		return err
	}
	if err := s.repoManager.Commitments().Update(ctx, *commitment); err != nil {
		return err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.CommitmentTopic, commitment.ID,
		domain.CommitmentClosed{
			BaseEvent: newBaseEvent(commitment.ID, domain.EventTypeCommitmentClosed),
			Owner:     commitment.Owner,
		},
	)
	return nil
}

func (s *commitmentService) Get(ctx context.Context, id string) (*domain.Commitment, error) {
	return s.repoManager.Commitments().Get(ctx, id)
}

func (s *commitmentService) GetByOwner(
	ctx context.Context, owner string,
) ([]domain.Commitment, error) {
	return s.repoManager.Commitments().GetByOwner(ctx, owner)
}

func (s *commitmentService) OverrideTier(
	ctx context.Context, id string, tier domain.Tier,
) error {
	commitment, err := s.repoManager.Commitments().Get(ctx, id)
	if err != nil {
		return err
	}
	if commitment.Status == domain.CommitmentStatusClosed {
		return fmt.Errorf("commitment %s is closed", id)
	}
	commitment.Tier = tier
	commitment.Version++
	if err := s.repoManager.Commitments().Update(ctx, *commitment); err != nil {
		return err
	}
	log.Infof("tier of commitment %s overridden to %s", id, tier)
	return nil
}

func (s *commitmentService) checkTierLimit(
	ctx context.Context, owner string, tier domain.Tier, amount uint64, excludeID string,
) error {
	limit := s.baseTierLimit * tierMultipliers[tier]
	total := amount
	existing, err := s.repoManager.Commitments().GetByOwner(ctx, owner)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == excludeID || other.Status == domain.CommitmentStatusClosed {
			continue
		}
		total += other.Amount
	}
	if total > limit {
		return fmt.Errorf(
			"%w: %d sats committed against a %d sats %s tier limit",
			ErrTierLimitExceeded, total, limit, tier,
		)
	}
	return nil
}

func (s *commitmentService) markFailed(
	ctx context.Context, commitment *domain.Commitment, reason string,
) error {
	paused := commitment.MarkFailed()
	if err := s.repoManager.Commitments().Update(ctx, *commitment); err != nil {
		return err
	}
	if paused {
		saveEvents(
			ctx, s.repoManager.Events(), domain.CommitmentTopic, commitment.ID,
			domain.CommitmentUnverified{
				BaseEvent: newBaseEvent(commitment.ID, domain.EventTypeCommitmentUnverified),
				Owner:     commitment.Owner,
				Failures:  commitment.ConsecutiveFailures,
				Reason:    reason,
			},
		)
	}
	publishAlert(s.alerts, ports.VerificationFailed, ports.VerificationFailedAlert{
		CommitmentID:    commitment.ID,
		Owner:           commitment.Owner,
		ExternalAddress: commitment.ExternalAddress,
		Failures:        commitment.ConsecutiveFailures,
		Paused:          paused,
		Reason:          reason,
	})
	return nil
}

func (s *commitmentService) reverifyAll() {
	ctx := context.Background()
	commitments, err := s.repoManager.Commitments().GetAllActive(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to load commitments for re-verification")
		return
	}
	for _, commitment := range commitments {
		if err := s.Verify(ctx, commitment.ID); err != nil {
			log.WithError(err).Debugf("re-verification of commitment %s", commitment.ID)
		}
	}
}
