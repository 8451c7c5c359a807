package domain

import "context"

type AttestationRepository interface {
	Add(ctx context.Context, attestations ...Attestation) error
	GetByAssetPair(ctx context.Context, assetPair string, after, before int64) ([]Attestation, error)
	GetLatestAccepted(ctx context.Context, assetPair string) (*Attestation, error)
	GetRejected(ctx context.Context, assetPair string, after, before int64) ([]Attestation, error)
	Close()
}
