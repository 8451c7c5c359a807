package domain

const (
	CommitmentTopic = "commitment"
	MultisigTopic   = "multisig"
	ChannelTopic    = "channel"
)

type EventType string

const (
	EventTypeCommitmentSubmitted  EventType = "commitment_submitted"
	EventTypeCommitmentVerified   EventType = "commitment_verified"
	EventTypeCommitmentUnverified EventType = "commitment_unverified"
	EventTypeCommitmentClosed     EventType = "commitment_closed"
	EventTypeTxProposed           EventType = "tx_proposed"
	EventTypeTxSigned             EventType = "tx_signed"
	EventTypeTxExecuted           EventType = "tx_executed"
	EventTypeTxExpired            EventType = "tx_expired"
	EventTypeTxVoided             EventType = "tx_voided"
	EventTypeChannelOpened        EventType = "channel_opened"
	EventTypeChannelUpdated       EventType = "channel_updated"
	EventTypeChannelDisputed      EventType = "channel_disputed"
	EventTypeChannelSettled       EventType = "channel_settled"
)

type Event interface {
	GetType() EventType
	GetID() string
}

type BaseEvent struct {
	Id        string
	Type      EventType
	Timestamp int64
}

func (e BaseEvent) GetType() EventType { return e.Type }
func (e BaseEvent) GetID() string      { return e.Id }

type CommitmentSubmitted struct {
	BaseEvent
	Owner           string
	Amount          uint64
	ExternalAddress string
}

type CommitmentVerified struct {
	BaseEvent
	Owner  string
	Amount uint64
}

type CommitmentUnverified struct {
	BaseEvent
	Owner    string
	Failures int
	Reason   string
}

type CommitmentClosed struct {
	BaseEvent
	Owner string
}

type TxProposed struct {
	BaseEvent
	WalletID string
	Kind     PayloadKind
	Expiry   int64
}

type TxSigned struct {
	BaseEvent
	WalletID  string
	Owner     string
	Collected int
	Threshold int
}

type TxExecuted struct {
	BaseEvent
	WalletID string
	Kind     PayloadKind
}

type TxExpired struct {
	BaseEvent
	WalletID string
}

type TxVoided struct {
	BaseEvent
	WalletID string
}

type ChannelOpened struct {
	BaseEvent
	Participants  []string
	TimeoutHeight int64
}

type ChannelUpdated struct {
	BaseEvent
	Sequence  uint64
	StateHash string
}

type ChannelDisputed struct {
	BaseEvent
	Challenger string
	Sequence   uint64
	StateHash  string
}

type ChannelSettled struct {
	BaseEvent
	Sequence    uint64
	StateHash   string
	TotalAmount uint64
	Forced      bool
}
