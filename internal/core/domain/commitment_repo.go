package domain

import "context"

type CommitmentRepository interface {
	Add(ctx context.Context, commitment Commitment) error
	Update(ctx context.Context, commitment Commitment) error
	Get(ctx context.Context, id string) (*Commitment, error)
	GetByOwner(ctx context.Context, owner string) ([]Commitment, error)
	GetAllActive(ctx context.Context) ([]Commitment, error)
	GetAllVerified(ctx context.Context) ([]Commitment, error)
	Close()
}
