package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func (backend *Backend) SendAndConfirm(ctx context.Context, ins []solana.Instruction) (solana.Signature, error) {
	if len(ins) == 0 {
		return solana.Signature{}, fmt.Errorf("send: no instructions")
	}
	latest, err := backend.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	trx, err := solana.NewTransaction(ins, latest.Value.Blockhash, solana.TransactionPayer(backend.Payer()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	return backend.SignAndConfirm(ctx, trx, backend.commitment)
}

func (backend *Backend) SignAndConfirm(ctx context.Context, trx *solana.Transaction, commitment rpc.CommitmentType) (solana.Signature, error) {
	if err := backend.wallet.Sign(trx); err != nil {
		return solana.Signature{}, err
	}
	signature, err := backend.rpcClient.SendTransactionWithOpts(ctx, trx, rpc.TransactionOpts{
		SkipPreflight:       backend.skipPreflight,
		PreflightCommitment: commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	backend.logger.Infof("sent transaction %s, waiting for %s", signature, commitment)
	if err := backend.confirm(ctx, signature, commitment); err != nil {
		return signature, err
	}
	return signature, nil
}

func (backend *Backend) confirm(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error {
	ctx, cancel := context.WithTimeout(ctx, backend.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(backend.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, signature, backend.confirmTimeout)
		case <-ticker.C:
		}
		result, err := backend.rpcClient.GetSignatureStatuses(ctx, false, signature)
		if err != nil {
			backend.logger.Warnf("get signature status %s: %v", signature, err)
			continue
		}
		if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
			continue
		}
		status := result.Value[0]
		if status.Err != nil {
			return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, signature, status.Err)
		}
		if reached(status.ConfirmationStatus, commitment) {
			backend.logger.Infof("transaction %s reached %s at slot %d", signature, status.ConfirmationStatus, status.Slot)
			return nil
		}
	}
}

func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch commitment {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentConfirmed:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	default:
		return status != ""
	}
}
