package domain

import "context"

type MultisigRepository interface {
	AddWallet(ctx context.Context, wallet MultisigWallet) error
	UpdateWallet(ctx context.Context, wallet MultisigWallet) error
	GetWallet(ctx context.Context, id string) (*MultisigWallet, error)
	AddTransaction(ctx context.Context, tx PendingTransaction) error
	UpdateTransaction(ctx context.Context, tx PendingTransaction) error
	GetTransaction(ctx context.Context, id string) (*PendingTransaction, error)
	GetTransactionsByWallet(ctx context.Context, walletID string) ([]PendingTransaction, error)
	GetCollectingTransactions(ctx context.Context) ([]PendingTransaction, error)
	Close()
}
