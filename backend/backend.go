package backend

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrConfirmTimeout    = errors.New("transaction confirmation timed out")
	ErrTransactionFailed = errors.New("transaction failed")
)

// Ledger is everything the harvest workflow needs from the chain. Backend
// is the RPC implementation.
type Ledger interface {
	// Payer is the authority that pays for and signs every transaction.
	Payer() solana.PublicKey
	// Account returns ErrAccountNotFound when the account does not exist.
	Account(ctx context.Context, pubkey solana.PublicKey) (*Account, error)
	// Accounts returns one entry per key, nil for accounts that do not exist.
	Accounts(ctx context.Context, pubkeys []solana.PublicKey) ([]*Account, error)
	// ProgramAccounts lists accounts owned by programID whose data starts
	// with prefix.Bytes at prefix.Offset.
	ProgramAccounts(ctx context.Context, programID solana.PublicKey, prefix Prefix) ([]*Account, error)
	Balance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
	// SendAndConfirm builds, signs and submits one transaction holding ins
	// and waits for it to reach the configured commitment.
	SendAndConfirm(ctx context.Context, ins []solana.Instruction) (solana.Signature, error)
	// SignAndConfirm signs a transaction built elsewhere, submits it and
	// waits for commitment.
	SignAndConfirm(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (solana.Signature, error)
}

type Options struct {
	Rpc            string
	Commitment     rpc.CommitmentType
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	SkipPreflight  bool
}

type Backend struct {
	logger         *zap.SugaredLogger
	rpcClient      *rpc.Client
	wallet         *Wallet
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
	skipPreflight  bool
}

func NewBackend(opt Options, wallet *Wallet, logger *zap.Logger) *Backend {
	backend := &Backend{
		logger:         logger.Named("backend").Sugar(),
		rpcClient:      rpc.New(opt.Rpc),
		wallet:         wallet,
		commitment:     opt.Commitment,
		confirmTimeout: opt.ConfirmTimeout,
		pollInterval:   opt.PollInterval,
		skipPreflight:  opt.SkipPreflight,
	}
	if backend.commitment == "" {
		backend.commitment = rpc.CommitmentConfirmed
	}
	if backend.confirmTimeout <= 0 {
		backend.confirmTimeout = 90 * time.Second
	}
	if backend.pollInterval <= 0 {
		backend.pollInterval = time.Second
	}
	return backend
}

func (backend *Backend) Payer() solana.PublicKey {
	return backend.wallet.PublicKey()
}

func (backend *Backend) Close() error {
	return backend.rpcClient.Close()
}
