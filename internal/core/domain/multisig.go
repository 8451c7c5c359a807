package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/google/uuid"
)

// ErrAlreadySigned rejects a second signature from the same owner on the
// same pending transaction.
var ErrAlreadySigned = errors.New("owner already signed")

type PayloadKind string

const (
	PayloadKindTreasuryDisbursement PayloadKind = "treasury_disbursement"
	PayloadKindTierOverride         PayloadKind = "tier_override"
	PayloadKindChannelForceSettle   PayloadKind = "channel_force_settle"
	PayloadKindOwnerSetUpdate       PayloadKind = "owner_set_update"
)

// MultisigWallet is the fixed owner set and threshold gating every
// treasury-affecting operation. Owners are compressed secp256k1 pubkeys, hex.
type MultisigWallet struct {
	ID        string
	Owners    []string
	Threshold int
	Revision  uint64
	CreatedAt int64
}

func NewMultisigWallet(owners []string, threshold int) (*MultisigWallet, error) {
	if threshold < 1 || threshold > len(owners) {
		return nil, fmt.Errorf(
			"invalid threshold %d for %d owners", threshold, len(owners),
		)
	}
	seen := make(map[string]struct{}, len(owners))
	for _, owner := range owners {
		if _, err := parsePubKey(owner); err != nil {
			return nil, fmt.Errorf("invalid owner pubkey %s: %s", owner, err)
		}
		if _, ok := seen[owner]; ok {
			return nil, fmt.Errorf("duplicate owner %s", owner)
		}
		seen[owner] = struct{}{}
	}
	return &MultisigWallet{
		ID:        uuid.New().String(),
		Owners:    owners,
		Threshold: threshold,
		Revision:  1,
		CreatedAt: time.Now().Unix(),
	}, nil
}

func (w MultisigWallet) HasOwner(pubkey string) bool {
	for _, owner := range w.Owners {
		if owner == pubkey {
			return true
		}
	}
	return false
}

func (w *MultisigWallet) UpdateOwners(owners []string, threshold int) error {
	if threshold < 1 || threshold > len(owners) {
		return fmt.Errorf(
			"invalid threshold %d for %d owners", threshold, len(owners),
		)
	}
	w.Owners = owners
	w.Threshold = threshold
	w.Revision++
	return nil
}

type TxStatus uint8

const (
	TxStatusCollecting TxStatus = iota
	TxStatusExecuted
	TxStatusExpired
	TxStatusVoided
)

func (s TxStatus) String() string {
	return []string{"Collecting", "Executed", "Expired", "Voided"}[s]
}

type TxSignature struct {
	Owner     string
	Signature string // DER, hex
	SignedAt  int64
}

// PendingTransaction collects owner signatures over a payload until the
// wallet threshold is met. Expired and voided transactions are kept for audit.
type PendingTransaction struct {
	ID         string
	WalletID   string
	Kind       PayloadKind
	Payload    []byte
	Signatures []TxSignature
	Status     TxStatus
	CreatedAt  int64
	Expiry     int64
	ExecutedAt int64
	VoidedAt   int64
}

func NewPendingTransaction(
	walletID string, kind PayloadKind, payload []byte, expiry int64,
) *PendingTransaction {
	return &PendingTransaction{
		ID:        uuid.New().String(),
		WalletID:  walletID,
		Kind:      kind,
		Payload:   payload,
		Status:    TxStatusCollecting,
		CreatedAt: time.Now().Unix(),
		Expiry:    expiry,
	}
}

// SigningDigest is the message every owner signature must cover. It binds the
// wallet, the transaction id, the payload kind and the payload bytes, so a
// signature cannot be replayed across transactions or wallets.
func (t PendingTransaction) SigningDigest() [32]byte {
	h := sha256.New()
	h.Write([]byte("anchord/multisig/v1"))
	h.Write([]byte(t.WalletID))
	h.Write([]byte(t.ID))
	h.Write([]byte(t.Kind))
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(t.Payload)))
	h.Write(size[:])
	h.Write(t.Payload)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

func (t PendingTransaction) IsExpired(now int64) bool {
	return now > t.Expiry
}

func (t PendingTransaction) HasSigned(owner string) bool {
	for _, sig := range t.Signatures {
		if sig.Owner == owner {
			return true
		}
	}
	return false
}

func (t *PendingTransaction) AddSignature(owner, sigHex string, now int64) error {
	if t.HasSigned(owner) {
		return fmt.Errorf("%w: %s on tx %s", ErrAlreadySigned, owner, t.ID)
	}
	digest := t.SigningDigest()
	if err := VerifySignature(owner, sigHex, digest[:]); err != nil {
		return fmt.Errorf("invalid signature from %s: %s", owner, err)
	}
	t.Signatures = append(t.Signatures, TxSignature{
		Owner:     owner,
		Signature: sigHex,
		SignedAt:  now,
	})
	return nil
}

// ValidSignatures re-checks every collected signature against the current
// owner set. A signature from an owner removed after signing no longer counts.
func (t PendingTransaction) ValidSignatures(wallet MultisigWallet) int {
	digest := t.SigningDigest()
	count := 0
	for _, sig := range t.Signatures {
		if !wallet.HasOwner(sig.Owner) {
			continue
		}
		if err := VerifySignature(sig.Owner, sig.Signature, digest[:]); err != nil {
			continue
		}
		count++
	}
	return count
}

func (t *PendingTransaction) MarkExecuted(now int64) {
	t.Status = TxStatusExecuted
	t.ExecutedAt = now
}

func (t *PendingTransaction) MarkExpired() {
	t.Status = TxStatusExpired
}

func (t *PendingTransaction) MarkVoided(now int64) {
	t.Status = TxStatusVoided
	t.VoidedAt = now
}

// VerifySignature checks a hex DER-encoded ECDSA signature over digest
// against a compressed secp256k1 pubkey in hex.
func VerifySignature(pubkeyHex, sigHex string, digest []byte) error {
	pubkey, err := parsePubKey(pubkeyHex)
	if err != nil {
		return err
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %s", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("failed to parse signature: %s", err)
	}
	if !sig.Verify(digest, pubkey) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func parsePubKey(pubkeyHex string) (*btcec.PublicKey, error) {
	buf, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey encoding: %s", err)
	}
	return btcec.ParsePubKey(buf)
}
