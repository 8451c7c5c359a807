package ports

import "context"

type LiveStore interface {
	Sources() SourceStore
	AttestationWindows() AttestationWindowStore
}

// SourceStore tracks the oracle sources registered to report for the service.
// Confidence scoring needs the full registered set, not just the ones that
// happen to have reported recently.
type SourceStore interface {
	Register(ctx context.Context, sourceID string) error
	Exists(ctx context.Context, sourceID string) (bool, error)
	GetAll(ctx context.Context) ([]string, error)
}

// AttestationWindowStore keeps a bounded rolling window of accepted points
// per (asset pair, source). Old points fall off the window, the durable
// attestation log is the repository's job.
type AttestationWindowStore interface {
	Push(ctx context.Context, assetPair string, point AttestationPoint) error
	LatestBySource(ctx context.Context, assetPair string) (map[string]AttestationPoint, error)
	Window(ctx context.Context, assetPair, sourceID string) ([]AttestationPoint, error)
}

type AttestationPoint struct {
	SourceID  string
	Value     uint64
	Timestamp int64
}
