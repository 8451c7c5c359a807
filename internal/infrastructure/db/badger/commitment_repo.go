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

const commitmentStoreDir = "commitments"

type commitmentRepository struct {
	store *badgerhold.Store
}

func NewCommitmentRepository(config ...interface{}) (domain.CommitmentRepository, error) {
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
		dir = filepath.Join(baseDir, commitmentStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open commitment store: %s", err)
	}

	return &commitmentRepository{store}, nil
}

func (r *commitmentRepository) Add(ctx context.Context, commitment domain.Commitment) error {
	if err := r.store.Insert(commitment.ID, commitment); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("commitment %s already exists", commitment.ID)
		}
		return fmt.Errorf("failed to add commitment: %w", err)
	}
	return nil
}

func (r *commitmentRepository) Update(ctx context.Context, commitment domain.Commitment) error {
	err := r.store.Update(commitment.ID, commitment)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Update(commitment.ID, commitment)
			attempts++
		}
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("commitment %s not found", commitment.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update commitment: %w", err)
	}
	return nil
}

func (r *commitmentRepository) Get(
	ctx context.Context, id string,
) (*domain.Commitment, error) {
	var commitment domain.Commitment
	if err := r.store.Get(id, &commitment); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("commitment %s not found", id)
		}
		return nil, fmt.Errorf("failed to get commitment: %w", err)
	}
	return &commitment, nil
}

func (r *commitmentRepository) GetByOwner(
	ctx context.Context, owner string,
) ([]domain.Commitment, error) {
	var commitments []domain.Commitment
	if err := r.store.Find(
		&commitments, badgerhold.Where("Owner").Eq(owner),
	); err != nil {
		return nil, fmt.Errorf("failed to get commitments by owner: %w", err)
	}
	return commitments, nil
}

func (r *commitmentRepository) GetAllActive(ctx context.Context) ([]domain.Commitment, error) {
	var commitments []domain.Commitment
	if err := r.store.Find(
		&commitments, badgerhold.Where("Status").Ne(domain.CommitmentStatusClosed),
	); err != nil {
		return nil, fmt.Errorf("failed to get active commitments: %w", err)
	}
	return commitments, nil
}

func (r *commitmentRepository) GetAllVerified(ctx context.Context) ([]domain.Commitment, error) {
	var commitments []domain.Commitment
	if err := r.store.Find(
		&commitments, badgerhold.Where("Status").Eq(domain.CommitmentStatusVerified),
	); err != nil {
		return nil, fmt.Errorf("failed to get verified commitments: %w", err)
	}
	return commitments, nil
}

func (r *commitmentRepository) Close() {
	// nolint:all
	r.store.Close()
}
