package application

import (
	"context"
	"fmt"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type OracleService interface {
	RegisterSource(ctx context.Context, sourceID string) error
	SubmitAttestation(
		ctx context.Context, sourceID, assetPair string, value uint64, timestamp int64,
	) (*domain.Attestation, error)
	GetAttestedValue(ctx context.Context, assetPair string) (*AttestedValue, error)
}

// AttestedValue is the service's current answer for an asset pair: the median
// across fresh sources plus a confidence score callers can threshold on.
type AttestedValue struct {
	AssetPair    string
	Value        uint64
	Confidence   float64 // fresh sources over registered sources
	FreshSources int
	Timestamp    int64 // newest timestamp among the fresh attestations
}

type oracleService struct {
	repoManager ports.RepoManager
	liveStore   ports.LiveStore
	alerts      ports.Alerts

	maxStaleness    int64
	maxFutureSkew   int64
	maxDeviationPct float64
}

func NewOracleService(
	repoManager ports.RepoManager, liveStore ports.LiveStore, alerts ports.Alerts,
	maxStaleness, maxFutureSkew time.Duration, maxDeviationPct float64,
) OracleService {
	return &oracleService{
		repoManager:     repoManager,
		liveStore:       liveStore,
		alerts:          alerts,
		maxStaleness:    int64(maxStaleness.Seconds()),
		maxFutureSkew:   int64(maxFutureSkew.Seconds()),
		maxDeviationPct: maxDeviationPct,
	}
}

func (s *oracleService) RegisterSource(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return fmt.Errorf("missing source id")
	}
	if err := s.liveStore.Sources().Register(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to register source %s: %s", sourceID, err)
	}
	log.Debugf("registered oracle source %s", sourceID)
	return nil
}

func (s *oracleService) SubmitAttestation(
	ctx context.Context, sourceID, assetPair string, value uint64, timestamp int64,
) (*domain.Attestation, error) {
	known, err := s.liveStore.Sources().Exists(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	now := time.Now().Unix()
	attestation := domain.NewAttestation(sourceID, assetPair, value, timestamp)

	if timestamp > now+s.maxFutureSkew {
		attestation.Status = domain.AttestationStatusRejectedFuture
		s.record(ctx, attestation)
		return &attestation, fmt.Errorf(
			"%w: %d is %ds ahead", ErrFutureAttestation, timestamp, timestamp-now,
		)
	}
	if now-timestamp > s.maxStaleness {
		attestation.Status = domain.AttestationStatusRejectedStale
		s.record(ctx, attestation)
		return &attestation, fmt.Errorf(
			"%w: %d is %ds old, max is %ds",
			ErrStaleAttestation, timestamp, now-timestamp, s.maxStaleness,
		)
	}

	// deviation is judged against the other sources' fresh medians, so a
	// single compromised source cannot drag the reference with its own value
	median, freshCount, err := s.freshMedian(ctx, assetPair, sourceID, now)
	if err != nil {
		return nil, err
	}
	if freshCount > 0 {
		deviation := domain.DeviationPct(value, median)
		attestation.DeviationFromMedian = deviation
		if deviation > s.maxDeviationPct {
			attestation.Status = domain.AttestationStatusRejectedDeviation
			s.record(ctx, attestation)
			publishAlert(s.alerts, ports.OracleDeviation, ports.OracleDeviationAlert{
				AssetPair:    assetPair,
				SourceID:     sourceID,
				Value:        value,
				Median:       median,
				DeviationPct: deviation,
				ThresholdPct: s.maxDeviationPct,
			})
			return &attestation, fmt.Errorf(
				"%w: %.2f%% from median %d, max is %.2f%%",
				ErrExcessiveDeviation, deviation, median, s.maxDeviationPct,
			)
		}
	}

	attestation.Status = domain.AttestationStatusAccepted
	if err := s.liveStore.AttestationWindows().Push(ctx, assetPair, ports.AttestationPoint{
		SourceID:  sourceID,
		Value:     value,
		Timestamp: timestamp,
	}); err != nil {
		return nil, fmt.Errorf("failed to update attestation window: %s", err)
	}
	s.record(ctx, attestation)
	return &attestation, nil
}

func (s *oracleService) GetAttestedValue(
	ctx context.Context, assetPair string,
) (*AttestedValue, error) {
	latest, err := s.liveStore.AttestationWindows().LatestBySource(ctx, assetPair)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	values := make([]uint64, 0, len(latest))
	newest := int64(0)
	for _, point := range latest {
		if now-point.Timestamp > s.maxStaleness {
			continue
		}
		values = append(values, point.Value)
		if point.Timestamp > newest {
			newest = point.Timestamp
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoFreshAttestations, assetPair)
	}

	median, err := domain.MedianValue(values)
	if err != nil {
		return nil, err
	}

	registered, err := s.liveStore.Sources().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	confidence := 1.0
	if len(registered) > 0 {
		confidence = float64(len(values)) / float64(len(registered))
	}

	return &AttestedValue{
		AssetPair:    assetPair,
		Value:        median,
		Confidence:   confidence,
		FreshSources: len(values),
		Timestamp:    newest,
	}, nil
}

// freshMedian computes the median of the latest fresh value of every source
// except the submitting one.
func (s *oracleService) freshMedian(
	ctx context.Context, assetPair, excludeSource string, now int64,
) (uint64, int, error) {
	latest, err := s.liveStore.AttestationWindows().LatestBySource(ctx, assetPair)
	if err != nil {
		return 0, 0, err
	}

	values := make([]uint64, 0, len(latest))
	for sourceID, point := range latest {
		if sourceID == excludeSource {
			continue
		}
		if now-point.Timestamp > s.maxStaleness {
			continue
		}
		values = append(values, point.Value)
	}
	if len(values) == 0 {
		return 0, 0, nil
	}
	median, err := domain.MedianValue(values)
	if err != nil {
		return 0, 0, err
	}
	return median, len(values), nil
}

func (s *oracleService) record(ctx context.Context, attestation domain.Attestation) {
	if err := s.repoManager.Attestations().Add(ctx, attestation); err != nil {
		log.WithError(err).Warnf("failed to persist attestation %s", attestation.ID)
	}
}
