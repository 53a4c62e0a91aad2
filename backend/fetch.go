package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	MultipleAccountSliceSize = 100
)

type Account struct {
	PubKey   solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
	Height   uint64
}

// Prefix is a memcmp filter over account data.
type Prefix struct {
	Offset uint64
	Bytes  []byte
}

func newAccount(pubkey solana.PublicKey, height uint64, account *rpc.Account) *Account {
	if account == nil {
		return nil
	}
	a := &Account{
		PubKey:   pubkey,
		Owner:    account.Owner,
		Lamports: account.Lamports,
		Height:   height,
	}
	if account.Data != nil {
		a.Data = account.Data.GetBinary()
	}
	return a
}

func (backend *Backend) ProgramAccounts(ctx context.Context, programID solana.PublicKey, prefix Prefix) ([]*Account, error) {
	filters := make([]rpc.RPCFilter, 0, 1)
	if len(prefix.Bytes) > 0 {
		filters = append(filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: prefix.Offset,
				Bytes:  solana.Base58(prefix.Bytes),
			},
		})
	}
	result, err := backend.rpcClient.GetProgramAccountsWithOpts(ctx, programID,
		&rpc.GetProgramAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: backend.commitment,
			Filters:    filters,
		})
	if err != nil {
		return nil, fmt.Errorf("get program accounts of %s: %w", programID, err)
	}
	accounts := make([]*Account, 0, len(result))
	for _, keyed := range result {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		accounts = append(accounts, newAccount(keyed.Pubkey, 0, keyed.Account))
	}
	return accounts, nil
}

func (backend *Backend) Accounts(ctx context.Context, pubkeys []solana.PublicKey) ([]*Account, error) {
	accounts := make([]*Account, 0, len(pubkeys))
	index, end := 0, 0
	for index < len(pubkeys) {
		if end = index + MultipleAccountSliceSize; end > len(pubkeys) {
			end = len(pubkeys)
		}
		result, err := backend.rpcClient.GetMultipleAccountsWithOpts(ctx, pubkeys[index:end],
			&rpc.GetMultipleAccountsOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: backend.commitment,
			})
		if err != nil {
			return nil, fmt.Errorf("get multiple accounts: %w", err)
		}
		if len(result.Value) != end-index {
			return nil, fmt.Errorf("get multiple accounts: asked for %d, got %d", end-index, len(result.Value))
		}
		for i, account := range result.Value {
			accounts = append(accounts, newAccount(pubkeys[index+i], result.Context.Slot, account))
		}
		index = end
	}
	return accounts, nil
}

func (backend *Backend) Account(ctx context.Context, pubkey solana.PublicKey) (*Account, error) {
	result, err := backend.rpcClient.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: backend.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", pubkey, err)
	}
	if result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	return newAccount(pubkey, result.Context.Slot, result.Value), nil
}

func (backend *Backend) Balance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	result, err := backend.rpcClient.GetBalance(ctx, pubkey, backend.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance of %s: %w", pubkey, err)
	}
	return result.Value, nil
}
