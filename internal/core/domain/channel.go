package domain

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
)

// ErrStaleSequence rejects updates and disputes whose sequence is not
// strictly above the last accepted one.
var ErrStaleSequence = errors.New("stale sequence")

type ChannelStatus uint8

const (
	ChannelStatusOpen ChannelStatus = iota
	ChannelStatusDisputed
	ChannelStatusSettled
)

func (s ChannelStatus) String() string {
	return []string{"Open", "Disputed", "Settled"}[s]
}

// ChannelState is the accumulated off-ledger balance per participant. Its
// hash is what participants actually sign.
type ChannelState struct {
	Balances map[string]uint64 // participant pubkey -> accrued satoshis
}

// Hash returns the double-sha256 of the canonical state serialization.
// Participants are serialized in lexical order so the hash is deterministic.
func (s ChannelState) Hash() string {
	participants := make([]string, 0, len(s.Balances))
	for p := range s.Balances {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	buf := make([]byte, 0, len(participants)*41)
	for _, p := range participants {
		buf = append(buf, []byte(p)...)
		var amount [8]byte
		binary.BigEndian.PutUint64(amount[:], s.Balances[p])
		buf = append(buf, amount[:]...)
	}
	return hex.EncodeToString(chainhash.DoubleHashB(buf))
}

func (s ChannelState) TotalBalance() uint64 {
	total := uint64(0)
	for _, amount := range s.Balances {
		total += amount
	}
	return total
}

type ChannelSignature struct {
	Participant string
	Signature   string // DER, hex
}

// StateChannel accumulates high-frequency off-ledger updates between a fixed
// participant set and settles a single final state into the ledger.
type StateChannel struct {
	ID            string
	Participants  []string
	State         ChannelState
	StateHash     string
	Sequence      uint64
	TimeoutHeight int64 // unix seconds after which an undisputed channel settles
	Status        ChannelStatus
	DisputedBy    string
	CreatedAt     int64
	SettledAt     int64
}

func NewStateChannel(
	participants []string, initialState ChannelState, timeoutHeight int64,
) (*StateChannel, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("channel requires at least 2 participants")
	}
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if _, err := parsePubKey(p); err != nil {
			return nil, fmt.Errorf("invalid participant pubkey %s: %s", p, err)
		}
		if _, ok := seen[p]; ok {
			return nil, fmt.Errorf("duplicate participant %s", p)
		}
		seen[p] = struct{}{}
	}
	for owner := range initialState.Balances {
		if _, ok := seen[owner]; !ok {
			return nil, fmt.Errorf("initial state references non-participant %s", owner)
		}
	}
	return &StateChannel{
		ID:            uuid.New().String(),
		Participants:  participants,
		State:         initialState,
		StateHash:     initialState.Hash(),
		Sequence:      0,
		TimeoutHeight: timeoutHeight,
		Status:        ChannelStatusOpen,
		CreatedAt:     time.Now().Unix(),
	}, nil
}

func (c StateChannel) HasParticipant(pubkey string) bool {
	for _, p := range c.Participants {
		if p == pubkey {
			return true
		}
	}
	return false
}

// UpdateDigest is the message every participant must sign for a state update:
// double-sha256 over (channel id, state hash, big-endian sequence).
func (c StateChannel) UpdateDigest(stateHash string, sequence uint64) []byte {
	buf := make([]byte, 0, len(c.ID)+len(stateHash)+8)
	buf = append(buf, []byte(c.ID)...)
	buf = append(buf, []byte(stateHash)...)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	buf = append(buf, seq[:]...)
	return chainhash.DoubleHashB(buf)
}

// VerifyUpdateSignatures checks that every participant signed the given
// (state hash, sequence) pair. All participants must sign, no subset counts.
func (c StateChannel) VerifyUpdateSignatures(
	stateHash string, sequence uint64, signatures []ChannelSignature,
) error {
	digest := c.UpdateDigest(stateHash, sequence)
	signed := make(map[string]struct{}, len(signatures))
	for _, sig := range signatures {
		if !c.HasParticipant(sig.Participant) {
			return fmt.Errorf("signature from non-participant %s", sig.Participant)
		}
		if err := VerifySignature(sig.Participant, sig.Signature, digest); err != nil {
			return fmt.Errorf("invalid signature from %s: %s", sig.Participant, err)
		}
		signed[sig.Participant] = struct{}{}
	}
	for _, p := range c.Participants {
		if _, ok := signed[p]; !ok {
			return fmt.Errorf("missing signature from participant %s", p)
		}
	}
	return nil
}

// ApplyUpdate accepts a fully-signed state at a strictly higher sequence.
// Sequences may skip numbers: strictly increasing, not contiguous, is the
// rule, so parties can drop intermediate states they both agree to discard.
func (c *StateChannel) ApplyUpdate(
	newState ChannelState, sequence uint64, signatures []ChannelSignature,
) error {
	if c.Status == ChannelStatusSettled {
		return fmt.Errorf("channel %s already settled", c.ID)
	}
	if sequence <= c.Sequence {
		return fmt.Errorf(
			"%w: %d, channel %s is at %d", ErrStaleSequence, sequence, c.ID, c.Sequence,
		)
	}
	for owner := range newState.Balances {
		if !c.HasParticipant(owner) {
			return fmt.Errorf("state references non-participant %s", owner)
		}
	}
	stateHash := newState.Hash()
	if err := c.VerifyUpdateSignatures(stateHash, sequence, signatures); err != nil {
		return err
	}
	c.State = newState
	c.StateHash = stateHash
	c.Sequence = sequence
	return nil
}

// Dispute replaces the last accepted state with a higher-sequence,
// fully-signed one and freezes the channel. Highest valid sequence wins: it
// is the one tie-break a single party cannot forge.
func (c *StateChannel) Dispute(
	challenger string, claimedState ChannelState, sequence uint64,
	signatures []ChannelSignature,
) error {
	if c.Status == ChannelStatusSettled {
		return fmt.Errorf("channel %s already settled", c.ID)
	}
	if !c.HasParticipant(challenger) {
		return fmt.Errorf("challenger %s is not a participant of channel %s", challenger, c.ID)
	}
	if sequence <= c.Sequence {
		return fmt.Errorf(
			"%w: dispute sequence %d not above channel %s sequence %d",
			ErrStaleSequence, sequence, c.ID, c.Sequence,
		)
	}
	stateHash := claimedState.Hash()
	if err := c.VerifyUpdateSignatures(stateHash, sequence, signatures); err != nil {
		return err
	}
	c.State = claimedState
	c.StateHash = stateHash
	c.Sequence = sequence
	c.Status = ChannelStatusDisputed
	c.DisputedBy = challenger
	return nil
}

// Settleable reports whether the channel can settle without multisig
// intervention: open and past its timeout height.
func (c StateChannel) Settleable(now int64) bool {
	return c.Status == ChannelStatusOpen && now >= c.TimeoutHeight
}

func (c *StateChannel) Settle(now int64) ChannelState {
	if c.Status == ChannelStatusSettled {
		return c.State
	}
	c.Status = ChannelStatusSettled
	c.SettledAt = now
	return c.State
}
