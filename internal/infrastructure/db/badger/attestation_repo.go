package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const attestationStoreDir = "attestations"

type attestationRepository struct {
	store *badgerhold.Store
}

func NewAttestationRepository(config ...interface{}) (domain.AttestationRepository, error) {
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
		dir = filepath.Join(baseDir, attestationStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open attestation store: %s", err)
	}

	return &attestationRepository{store}, nil
}

func (r *attestationRepository) Add(
	ctx context.Context, attestations ...domain.Attestation,
) error {
	for _, attestation := range attestations {
		if err := r.store.Insert(attestation.ID, attestation); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return fmt.Errorf("failed to add attestation: %w", err)
		}
	}
	return nil
}

func (r *attestationRepository) GetByAssetPair(
	ctx context.Context, assetPair string, after, before int64,
) ([]domain.Attestation, error) {
	if err := validateTimeRange(after, before); err != nil {
		return nil, err
	}

	query := badgerhold.Where("AssetPair").Eq(assetPair)
	if after > 0 {
		query = query.And("Timestamp").Ge(after)
	}
	if before > 0 {
		query = query.And("Timestamp").Le(before)
	}

	var attestations []domain.Attestation
	if err := r.store.Find(&attestations, query); err != nil {
		return nil, fmt.Errorf("failed to get attestations: %w", err)
	}
	return attestations, nil
}

func (r *attestationRepository) GetLatestAccepted(
	ctx context.Context, assetPair string,
) (*domain.Attestation, error) {
	var attestations []domain.Attestation
	query := badgerhold.Where("AssetPair").Eq(assetPair).
		And("Status").Eq(domain.AttestationStatusAccepted)
	if err := r.store.Find(&attestations, query); err != nil {
		return nil, fmt.Errorf("failed to get attestations: %w", err)
	}
	if len(attestations) == 0 {
		return nil, fmt.Errorf("no accepted attestation for %s", assetPair)
	}

	latest := attestations[0]
	for _, attestation := range attestations[1:] {
		if attestation.Timestamp > latest.Timestamp {
			latest = attestation
		}
	}
	return &latest, nil
}

func (r *attestationRepository) GetRejected(
	ctx context.Context, assetPair string, after, before int64,
) ([]domain.Attestation, error) {
	if err := validateTimeRange(after, before); err != nil {
		return nil, err
	}

	query := badgerhold.Where("AssetPair").Eq(assetPair).
		And("Status").Ne(domain.AttestationStatusAccepted)
	if after > 0 {
		query = query.And("Timestamp").Ge(after)
	}
	if before > 0 {
		query = query.And("Timestamp").Le(before)
	}

	var attestations []domain.Attestation
	if err := r.store.Find(&attestations, query); err != nil {
		return nil, fmt.Errorf("failed to get rejected attestations: %w", err)
	}
	return attestations, nil
}

func (r *attestationRepository) Close() {
	// nolint:all
	r.store.Close()
}
