package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type AttestationStatus uint8

const (
	AttestationStatusAccepted AttestationStatus = iota
	AttestationStatusRejectedStale
	AttestationStatusRejectedFuture
	AttestationStatusRejectedDeviation
)

func (s AttestationStatus) String() string {
	return []string{
		"Accepted",
		"RejectedStale",
		"RejectedFuture",
		"RejectedDeviation",
	}[s]
}

// Attestation is a timestamped, sourced claim about an external asset's value
// or balance. Values are fixed-point with 8 decimals (satoshi-equivalent).
// Attestations are append-only: a newer attestation supersedes an older one,
// it never mutates it.
type Attestation struct {
	ID                  string
	AssetPair           string
	SourceID            string
	Value               uint64
	Timestamp           int64
	DeviationFromMedian float64 // percent, vs the fresh-source median at submission time
	Status              AttestationStatus
	RecordedAt          int64
}

func NewAttestation(
	sourceID, assetPair string, value uint64, timestamp int64,
) Attestation {
	return Attestation{
		ID:         uuid.New().String(),
		AssetPair:  assetPair,
		SourceID:   sourceID,
		Value:      value,
		Timestamp:  timestamp,
		RecordedAt: time.Now().Unix(),
	}
}

func (a Attestation) IsFresh(now, maxStaleness int64) bool {
	return now-a.Timestamp <= maxStaleness && a.Timestamp <= now
}

func (a Attestation) String() string {
	return fmt.Sprintf(
		"%s %s=%d from %s at %d (%s)",
		a.ID, a.AssetPair, a.Value, a.SourceID, a.Timestamp, a.Status,
	)
}

// MedianValue returns the median of the given fixed-point values.
// For an even count the lower of the two middle values is returned, so the
// result is always a value actually reported by a source.
func MedianValue(values []uint64) (uint64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("no values to compute median")
	}
	sorted := make([]uint64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[(len(sorted)-1)/2], nil
}

// DeviationPct returns the absolute deviation of value from median, as a
// percentage of the median.
func DeviationPct(value, median uint64) float64 {
	if median == 0 {
		if value == 0 {
			return 0
		}
		return 100
	}
	var diff uint64
	if value > median {
		diff = value - median
	} else {
		diff = median - value
	}
	return float64(diff) / float64(median) * 100
}
