package domain_test

import (
	"testing"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestMedianValue(t *testing.T) {
	tests := []struct {
		name     string
		values   []uint64
		expected uint64
	}{
		{
			name:     "single value",
			values:   []uint64{4200000000},
			expected: 4200000000,
		},
		{
			name:     "odd count",
			values:   []uint64{300, 100, 200},
			expected: 200,
		},
		{
			name:     "even count takes lower middle",
			values:   []uint64{100, 200, 300, 400},
			expected: 200,
		},
		{
			name:     "unsorted input",
			values:   []uint64{9000, 1000, 5000, 3000, 7000},
			expected: 5000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			median, err := domain.MedianValue(tt.values)
			require.NoError(t, err)
			require.Equal(t, tt.expected, median)
		})
	}

	t.Run("empty input fails", func(t *testing.T) {
		_, err := domain.MedianValue(nil)
		require.Error(t, err)
	})
}

func TestDeviationPct(t *testing.T) {
	tests := []struct {
		name     string
		value    uint64
		median   uint64
		expected float64
	}{
		{"exact match", 1000, 1000, 0},
		{"above median", 1050, 1000, 5},
		{"below median", 950, 1000, 5},
		{"zero median zero value", 0, 0, 0},
		{"zero median nonzero value", 100, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(
				t, tt.expected, domain.DeviationPct(tt.value, tt.median), 0.0001,
			)
		})
	}
}

func TestAttestationFreshness(t *testing.T) {
	now := time.Now().Unix()
	maxStaleness := int64(120)

	tests := []struct {
		name      string
		timestamp int64
		fresh     bool
	}{
		{"current", now, true},
		{"within window", now - 119, true},
		{"at window edge", now - 120, true},
		{"stale", now - 121, false},
		{"future timestamp", now + 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attestation := domain.NewAttestation(
				"source-1", "BTC/USD", 4200000000, tt.timestamp,
			)
			require.Equal(t, tt.fresh, attestation.IsFresh(now, maxStaleness))
		})
	}
}
