package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const multisigStoreDir = "multisig"

// wallets and pending transactions share one store, they are distinct
// badgerhold types so queries never mix them
type multisigRepository struct {
	store *badgerhold.Store
}

func NewMultisigRepository(config ...interface{}) (domain.MultisigRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, multisigStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open multisig store: %s", err)
	}

	return &multisigRepository{store}, nil
}

func (r *multisigRepository) AddWallet(ctx context.Context, wallet domain.MultisigWallet) error {
	if err := r.store.Insert(wallet.ID, wallet); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("wallet %s already exists", wallet.ID)
		}
		return fmt.Errorf("failed to add wallet: %w", err)
	}
	return nil
}

func (r *multisigRepository) UpdateWallet(
	ctx context.Context, wallet domain.MultisigWallet,
) error {
	err := r.store.Update(wallet.ID, wallet)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Update(wallet.ID, wallet)
			attempts++
		}
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("wallet %s not found", wallet.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return nil
}

func (r *multisigRepository) GetWallet(
	ctx context.Context, id string,
) (*domain.MultisigWallet, error) {
	var wallet domain.MultisigWallet
	if err := r.store.Get(id, &wallet); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("wallet %s not found", id)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *multisigRepository) AddTransaction(
	ctx context.Context, tx domain.PendingTransaction,
) error {
	if err := r.store.Insert(tx.ID, tx); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
		return fmt.Errorf("failed to add transaction: %w", err)
	}
	return nil
}

func (r *multisigRepository) UpdateTransaction(
	ctx context.Context, tx domain.PendingTransaction,
) error {
	err := r.store.Update(tx.ID, tx)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Update(tx.ID, tx)
			attempts++
		}
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("transaction %s not found", tx.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (r *multisigRepository) GetTransaction(
	ctx context.Context, id string,
) (*domain.PendingTransaction, error) {
	var tx domain.PendingTransaction
	if err := r.store.Get(id, &tx); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s not found", id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *multisigRepository) GetTransactionsByWallet(
	ctx context.Context, walletID string,
) ([]domain.PendingTransaction, error) {
	var txs []domain.PendingTransaction
	if err := r.store.Find(
		&txs, badgerhold.Where("WalletID").Eq(walletID),
	); err != nil {
		return nil, fmt.Errorf("failed to get transactions by wallet: %w", err)
	}
	return txs, nil
}

func (r *multisigRepository) GetCollectingTransactions(
	ctx context.Context,
) ([]domain.PendingTransaction, error) {
	var txs []domain.PendingTransaction
	if err := r.store.Find(
		&txs, badgerhold.Where("Status").Eq(domain.TxStatusCollecting),
	); err != nil {
		return nil, fmt.Errorf("failed to get collecting transactions: %w", err)
	}
	return txs, nil
}

func (r *multisigRepository) Close() {
	// nolint:all
	r.store.Close()
}
