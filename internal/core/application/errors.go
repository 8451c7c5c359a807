package application

import (
	"errors"

	"github.com/anchoros/anchord/internal/core/domain"
)

var (
	ErrUnknownSource       = errors.New("unknown oracle source")
	ErrStaleAttestation    = errors.New("attestation outside freshness window")
	ErrFutureAttestation   = errors.New("attestation timestamp in the future")
	ErrExcessiveDeviation  = errors.New("attestation deviates from source median")
	ErrNoFreshAttestations = errors.New("no fresh attestations")

	ErrInvalidProof        = errors.New("invalid proof of control")
	ErrInsufficientBalance = errors.New("attested balance below committed amount")
	ErrTierLimitExceeded   = errors.New("commitment exceeds tier limit")
	ErrProofRequired       = errors.New("fresh proof of control required")

	ErrNotWalletOwner  = errors.New("not a wallet owner")
	ErrTxNotCollecting = errors.New("transaction is not collecting signatures")
	ErrTxExpired       = errors.New("transaction expired")
	ErrThresholdNotMet = errors.New("signature threshold not met")
	ErrUnknownPayload  = errors.New("no executor for payload kind")

	ErrNotSettleable = errors.New("channel not settleable")

	// surfaced unchanged from the domain transitions
	ErrStaleUpdate   = domain.ErrStaleSequence
	ErrAlreadySigned = domain.ErrAlreadySigned
)
