package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// consecutive verification failures before a commitment is paused
const MaxVerificationFailures = 3

type Tier uint8

const (
	TierBase Tier = iota
	TierVerified
	TierPrivileged
)

func (t Tier) String() string {
	return []string{"Base", "Verified", "Privileged"}[t]
}

type CommitmentStatus uint8

const (
	CommitmentStatusPending CommitmentStatus = iota
	CommitmentStatusVerified
	CommitmentStatusUnverified
	CommitmentStatusClosed
)

func (s CommitmentStatus) String() string {
	return []string{"Pending", "Verified", "Unverified", "Closed"}[s]
}

// Commitment is a user's claim of control over an amount held at an external
// address. It never takes custody: verification only proves control and an
// attested balance covering the claimed amount.
type Commitment struct {
	ID                  string
	Owner               string // compressed secp256k1 pubkey, hex
	Amount              uint64 // satoshis
	ExternalAddress     string
	Nonce               string
	ProofReference      string
	Tier                Tier
	Status              CommitmentStatus
	ConsecutiveFailures int
	Version             uint64
	LastVerifiedAt      int64
	CreatedAt           int64
}

func NewCommitment(owner string, amount uint64, externalAddress, nonce string) (*Commitment, error) {
	if amount == 0 {
		return nil, fmt.Errorf("commitment amount must be greater than 0")
	}
	if owner == "" {
		return nil, fmt.Errorf("missing commitment owner")
	}
	if externalAddress == "" {
		return nil, fmt.Errorf("missing external address")
	}
	return &Commitment{
		ID:              uuid.New().String(),
		Owner:           owner,
		Amount:          amount,
		ExternalAddress: externalAddress,
		Nonce:           nonce,
		Status:          CommitmentStatusPending,
		Version:         1,
		CreatedAt:       time.Now().Unix(),
	}, nil
}

// ProofMessage is the exact message a commitment proof signature must cover.
func (c Commitment) ProofMessage() string {
	return ProofMessage(c.Owner, c.Nonce)
}

func ProofMessage(owner, nonce string) string {
	return fmt.Sprintf("commitment:%s:%s", owner, nonce)
}

func (c *Commitment) UpdateAmount(newAmount uint64, nonce string) error {
	if c.Status == CommitmentStatusClosed {
		return fmt.Errorf("commitment %s is closed", c.ID)
	}
	if newAmount == 0 {
		return fmt.Errorf("commitment amount must be greater than 0")
	}
	c.Amount = newAmount
	c.Nonce = nonce
	// a fresh proof is required before the new amount counts again
	c.Status = CommitmentStatusPending
	c.ConsecutiveFailures = 0
	c.Version++
	return nil
}

func (c *Commitment) MarkVerified(now int64) {
	c.Status = CommitmentStatusVerified
	c.ConsecutiveFailures = 0
	c.LastVerifiedAt = now
	c.Version++
}

// MarkFailed records a verification failure and returns true when the
// commitment transitioned to Unverified as a result.
func (c *Commitment) MarkFailed() bool {
	if c.Status == CommitmentStatusClosed {
		return false
	}
	c.ConsecutiveFailures++
	c.Version++
	if c.ConsecutiveFailures >= MaxVerificationFailures &&
		c.Status != CommitmentStatusUnverified {
		c.Status = CommitmentStatusUnverified
		return true
	}
	return false
}

// Close transitions the commitment to its terminal status. The record is kept
// for audit, it is never deleted.
func (c *Commitment) Close(unclaimedRewards uint64) error {
	if c.Status == CommitmentStatusClosed {
		return fmt.Errorf("commitment %s already closed", c.ID)
	}
	if unclaimedRewards > 0 {
		return fmt.Errorf(
			"commitment %s has %d sats of unclaimed rewards", c.ID, unclaimedRewards,
		)
	}
	c.Amount = 0
	c.Status = CommitmentStatusClosed
	c.Version++
	return nil
}

// EarnsRewards reports whether the commitment takes part in reward
// distribution for the current period.
func (c Commitment) EarnsRewards() bool {
	return c.Status == CommitmentStatusVerified
}
