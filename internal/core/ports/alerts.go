package ports

import "context"

const (
	OracleDeviation    Topic = "Oracle Deviation"
	VerificationFailed Topic = "Verification Failed"
	ChannelDisputed    Topic = "Channel Disputed"
)

type Topic string

type Alerts interface {
	Publish(ctx context.Context, topic Topic, message interface{}) error
}

type OracleDeviationAlert struct {
	AssetPair    string
	SourceID     string
	Value        uint64
	Median       uint64
	DeviationPct float64
	ThresholdPct float64
}

type VerificationFailedAlert struct {
	CommitmentID    string
	Owner           string
	ExternalAddress string
	Failures        int
	Paused          bool
	Reason          string
}

type ChannelDisputedAlert struct {
	ChannelID  string
	Challenger string
	Sequence   uint64
	StateHash  string
}
