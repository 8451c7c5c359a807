package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// TxExecutor applies an approved transaction's payload. Executors run only
// after the signature threshold is re-checked against the current owner set.
type TxExecutor func(ctx context.Context, tx domain.PendingTransaction) error

type MultisigService interface {
	Start() error
	Stop()
	RegisterExecutor(kind domain.PayloadKind, executor TxExecutor)
	CreateWallet(ctx context.Context, owners []string, threshold int) (*domain.MultisigWallet, error)
	GetWallet(ctx context.Context, id string) (*domain.MultisigWallet, error)
	Propose(
		ctx context.Context, walletID, proposer string,
		kind domain.PayloadKind, payload []byte,
	) (*domain.PendingTransaction, error)
	Sign(ctx context.Context, txID, owner, signature string) (*domain.PendingTransaction, error)
	Execute(ctx context.Context, txID string) error
	Void(ctx context.Context, txID, owner string) error
	GetTransaction(ctx context.Context, txID string) (*domain.PendingTransaction, error)
}

type multisigService struct {
	repoManager ports.RepoManager
	scheduler   ports.SchedulerService

	txTTL         time.Duration
	sweepInterval time.Duration

	lock      sync.RWMutex
	executors map[domain.PayloadKind]TxExecutor
}

func NewMultisigService(
	repoManager ports.RepoManager, scheduler ports.SchedulerService,
	txTTL, sweepInterval time.Duration,
) MultisigService {
	return &multisigService{
		repoManager:   repoManager,
		scheduler:     scheduler,
		txTTL:         txTTL,
		sweepInterval: sweepInterval,
		executors:     make(map[domain.PayloadKind]TxExecutor),
	}
}

func (s *multisigService) Start() error {
	return s.scheduler.ScheduleTaskEvery(s.sweepInterval, s.sweepExpired)
}

func (s *multisigService) Stop() {}

func (s *multisigService) RegisterExecutor(kind domain.PayloadKind, executor TxExecutor) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.executors[kind] = executor
}

func (s *multisigService) CreateWallet(
	ctx context.Context, owners []string, threshold int,
) (*domain.MultisigWallet, error) {
	wallet, err := domain.NewMultisigWallet(owners, threshold)
	if err != nil {
		return nil, err
	}
	if err := s.repoManager.Multisig().AddWallet(ctx, *wallet); err != nil {
		return nil, err
	}
	log.Debugf("created %d-of-%d wallet %s", threshold, len(owners), wallet.ID)
	return wallet, nil
}

func (s *multisigService) GetWallet(
	ctx context.Context, id string,
) (*domain.MultisigWallet, error) {
	return s.repoManager.Multisig().GetWallet(ctx, id)
}

func (s *multisigService) Propose(
	ctx context.Context, walletID, proposer string,
	kind domain.PayloadKind, payload []byte,
) (*domain.PendingTransaction, error) {
	wallet, err := s.repoManager.Multisig().GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !wallet.HasOwner(proposer) {
		return nil, fmt.Errorf("%w: %s", ErrNotWalletOwner, proposer)
	}

	s.lock.RLock()
	_, known := s.executors[kind]
	s.lock.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayload, kind)
	}

	expiry := time.Now().Add(s.txTTL).Unix()
	tx := domain.NewPendingTransaction(walletID, kind, payload, expiry)
	if err := s.repoManager.Multisig().AddTransaction(ctx, *tx); err != nil {
		return nil, err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.MultisigTopic, tx.ID,
		domain.TxProposed{
			BaseEvent: newBaseEvent(tx.ID, domain.EventTypeTxProposed),
			WalletID:  walletID,
			Kind:      kind,
			Expiry:    expiry,
		},
	)
	return tx, nil
}

func (s *multisigService) Sign(
	ctx context.Context, txID, owner, signature string,
) (*domain.PendingTransaction, error) {
	tx, err := s.repoManager.Multisig().GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.repoManager.Multisig().GetWallet(ctx, tx.WalletID)
	if err != nil {
		return nil, err
	}

	if tx.Status != domain.TxStatusCollecting {
		return nil, fmt.Errorf("%w: tx %s is %s", ErrTxNotCollecting, txID, tx.Status)
	}
	if tx.IsExpired(time.Now().Unix()) {
		if err := s.expire(ctx, tx); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: tx %s", ErrTxExpired, txID)
	}
	if !wallet.HasOwner(owner) {
		return nil, fmt.Errorf("%w: %s", ErrNotWalletOwner, owner)
	}

	if err := tx.AddSignature(owner, signature, time.Now().Unix()); err != nil {
		return nil, err
	}
	if err := s.repoManager.Multisig().UpdateTransaction(ctx, *tx); err != nil {
		return nil, err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.MultisigTopic, tx.ID,
		domain.TxSigned{
			BaseEvent: newBaseEvent(tx.ID, domain.EventTypeTxSigned),
			WalletID:  tx.WalletID,
			Owner:     owner,
			Collected: tx.ValidSignatures(*wallet),
			Threshold: wallet.Threshold,
		},
	)
	return tx, nil
}

func (s *multisigService) Execute(ctx context.Context, txID string) error {
	tx, err := s.repoManager.Multisig().GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status != domain.TxStatusCollecting {
		return fmt.Errorf("%w: tx %s is %s", ErrTxNotCollecting, txID, tx.Status)
	}
	if tx.IsExpired(time.Now().Unix()) {
		if err := s.expire(ctx, tx); err != nil {
			return err
		}
		return fmt.Errorf("%w: tx %s", ErrTxExpired, txID)
	}

	// the owner set is re-read at execution time: signatures collected
	// before an owner rotation only count if the signer is still an owner
	wallet, err := s.repoManager.Multisig().GetWallet(ctx, tx.WalletID)
	if err != nil {
		return err
	}
	if valid := tx.ValidSignatures(*wallet); valid < wallet.Threshold {
		return fmt.Errorf(
			"%w: %d of %d required", ErrThresholdNotMet, valid, wallet.Threshold,
		)
	}

	s.lock.RLock()
	executor, ok := s.executors[tx.Kind]
	s.lock.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPayload, tx.Kind)
	}
	if err := executor(ctx, *tx); err != nil {
		return fmt.Errorf("failed to execute %s tx %s: %s", tx.Kind, txID, err)
	}

	tx.MarkExecuted(time.Now().Unix())
	if err := s.repoManager.Multisig().UpdateTransaction(ctx, *tx); err != nil {
		return err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.MultisigTopic, tx.ID,
		domain.TxExecuted{
			BaseEvent: newBaseEvent(tx.ID, domain.EventTypeTxExecuted),
			WalletID:  tx.WalletID,
			Kind:      tx.Kind,
		},
	)
	log.Infof("executed %s tx %s on wallet %s", tx.Kind, txID, tx.WalletID)
	return nil
}

func (s *multisigService) Void(ctx context.Context, txID, owner string) error {
	tx, err := s.repoManager.Multisig().GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	wallet, err := s.repoManager.Multisig().GetWallet(ctx, tx.WalletID)
	if err != nil {
		return err
	}
	if !wallet.HasOwner(owner) {
		return fmt.Errorf("%w: %s", ErrNotWalletOwner, owner)
	}
	if tx.Status != domain.TxStatusCollecting {
		return fmt.Errorf("%w: tx %s is %s", ErrTxNotCollecting, txID, tx.Status)
	}

	tx.MarkVoided(time.Now().Unix())
	if err := s.repoManager.Multisig().UpdateTransaction(ctx, *tx); err != nil {
		return err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.MultisigTopic, tx.ID,
		domain.TxVoided{
			BaseEvent: newBaseEvent(tx.ID, domain.EventTypeTxVoided),
			WalletID:  tx.WalletID,
		},
	)
	return nil
}

func (s *multisigService) GetTransaction(
	ctx context.Context, txID string,
) (*domain.PendingTransaction, error) {
	return s.repoManager.Multisig().GetTransaction(ctx, txID)
}

func (s *multisigService) expire(ctx context.Context, tx *domain.PendingTransaction) error {
	tx.MarkExpired()
	if err := s.repoManager.Multisig().UpdateTransaction(ctx, *tx); err != nil {
		return err
	}
	saveEvents(
		ctx, s.repoManager.Events(), domain.MultisigTopic, tx.ID,
		domain.TxExpired{
			BaseEvent: newBaseEvent(tx.ID, domain.EventTypeTxExpired),
			WalletID:  tx.WalletID,
		},
	)
	return nil
}

func (s *multisigService) sweepExpired() {
	ctx := context.Background()
	txs, err := s.repoManager.Multisig().GetCollectingTransactions(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to load collecting txs for expiry sweep")
		return
	}
	now := time.Now().Unix()
	for _, tx := range txs {
		if !tx.IsExpired(now) {
			continue
		}
		if err := s.expire(ctx, &tx); err != nil {
			log.WithError(err).Warnf("failed to expire tx %s", tx.ID)
		}
	}
}

// OwnerSetUpdatePayload rotates a wallet's owner set. It is applied through
// the wallet's own approval flow like any other privileged operation.
type OwnerSetUpdatePayload struct {
	Owners    []string `json:"owners"`
	Threshold int      `json:"threshold"`
}

// OwnerSetUpdateExecutor returns the executor applying owner set rotations.
func OwnerSetUpdateExecutor(repoManager ports.RepoManager) TxExecutor {
	return func(ctx context.Context, tx domain.PendingTransaction) error {
		var payload OwnerSetUpdatePayload
		if err := json.Unmarshal(tx.Payload, &payload); err != nil {
			return fmt.Errorf("invalid owner set payload: %s", err)
		}
		wallet, err := repoManager.Multisig().GetWallet(ctx, tx.WalletID)
		if err != nil {
			return err
		}
		if err := wallet.UpdateOwners(payload.Owners, payload.Threshold); err != nil {
			return err
		}
		return repoManager.Multisig().UpdateWallet(ctx, *wallet)
	}
}

// TierOverridePayload grants a commitment a tier outside what its owner's
// verification level would allow.
type TierOverridePayload struct {
	CommitmentID string `json:"commitment_id"`
	Tier         uint8  `json:"tier"`
}

func TierOverrideExecutor(commitments CommitmentService) TxExecutor {
	return func(ctx context.Context, tx domain.PendingTransaction) error {
		var payload TierOverridePayload
		if err := json.Unmarshal(tx.Payload, &payload); err != nil {
			return fmt.Errorf("invalid tier override payload: %s", err)
		}
		if payload.Tier > uint8(domain.TierPrivileged) {
			return fmt.Errorf("unknown tier %d", payload.Tier)
		}
		return commitments.OverrideTier(
			ctx, payload.CommitmentID, domain.Tier(payload.Tier),
		)
	}
}

// TreasuryDisbursementPayload releases pooled funds to a destination. The
// actual transfer happens on the external chain, the executor records the
// approval trail.
type TreasuryDisbursementPayload struct {
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
	Memo        string `json:"memo,omitempty"`
}

func TreasuryDisbursementExecutor() TxExecutor {
	return func(_ context.Context, tx domain.PendingTransaction) error {
		var payload TreasuryDisbursementPayload
		if err := json.Unmarshal(tx.Payload, &payload); err != nil {
			return fmt.Errorf("invalid disbursement payload: %s", err)
		}
		if payload.Amount == 0 {
			return fmt.Errorf("disbursement amount must be greater than 0")
		}
		if payload.Destination == "" {
			return fmt.Errorf("missing disbursement destination")
		}
		log.Infof(
			"approved disbursement of %d sats to %s", payload.Amount, payload.Destination,
		)
		return nil
	}
}
