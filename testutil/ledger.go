// Package testutil holds an in-memory ledger that understands the handful of
// instructions the harvester sends, so workflow tests can assert on state
// rather than on recorded calls.
package testutil

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/egaotan/token-fee-harvester/backend"
	"github.com/egaotan/token-fee-harvester/program"
	"github.com/egaotan/token-fee-harvester/token2022"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type Ledger struct {
	mu       sync.Mutex
	payer    solana.PublicKey
	accounts map[solana.PublicKey]*backend.Account
	nonce    uint64

	// Sent holds every instruction batch that was committed.
	Sent [][]solana.Instruction
	// Signed holds every externally built transaction that was committed.
	Signed []*solana.Transaction

	// FailSend, when set, is consulted before a batch is applied. A non-nil
	// error rejects the batch without changing state.
	FailSend func(ins []solana.Instruction) error
	// FailSign rejects externally built transactions.
	FailSign error
	// OnSign runs after an externally built transaction is accepted.
	OnSign func(l *Ledger, tx *solana.Transaction)
	// FailRead makes every read fail.
	FailRead error
}

func NewLedger(payer solana.PublicKey) *Ledger {
	return &Ledger{
		payer:    payer,
		accounts: make(map[solana.PublicKey]*backend.Account),
	}
}

func (l *Ledger) Payer() solana.PublicKey {
	return l.payer
}

// Put stores raw account data.
func (l *Ledger) Put(pubkey, owner solana.PublicKey, lamports uint64, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[pubkey] = &backend.Account{
		PubKey:   pubkey,
		Owner:    owner,
		Lamports: lamports,
		Data:     append([]byte(nil), data...),
	}
}

// PutMint stores a mint owned by tokenProgram; a nil fee config yields a
// mint without the transfer fee extension.
func (l *Ledger) PutMint(mint, tokenProgram solana.PublicKey, decimals uint8, fee *token2022.TransferFeeConfigLayout) {
	layout := token2022.MintLayout{Decimals: decimals, IsInitialized: 1}
	l.Put(mint, tokenProgram, 1_461_600, token2022.EncodeMint(layout, fee))
}

// PutTokenAccount stores a token account. withheld is only encoded when
// non-nil.
func (l *Ledger) PutTokenAccount(address, tokenProgram, mint, owner solana.PublicKey, amount uint64, withheld *uint64) {
	var fee *token2022.FeeAmount
	if withheld != nil {
		fee = &token2022.FeeAmount{Withheld: *withheld}
	}
	layout := token2022.AccountLayout{Mint: mint, Owner: owner, Amount: amount, State: 1}
	l.Put(address, tokenProgram, 2_074_080, token2022.EncodeAccount(layout, fee))
}

func (l *Ledger) SetLamports(pubkey solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[pubkey]
	if !ok {
		account = &backend.Account{PubKey: pubkey, Owner: program.System}
		l.accounts[pubkey] = account
	}
	account.Lamports = lamports
}

// TokenAccount decodes a stored token account, nil when absent.
func (l *Ledger) TokenAccount(pubkey solana.PublicKey) *token2022.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[pubkey]
	if !ok {
		return nil
	}
	decoded, err := token2022.DecodeAccount(account.Owner, account.Data)
	if err != nil {
		return nil
	}
	return decoded
}

func (l *Ledger) Lamports(pubkey solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if account, ok := l.accounts[pubkey]; ok {
		return account.Lamports
	}
	return 0
}

func (l *Ledger) copyOf(account *backend.Account) *backend.Account {
	c := *account
	c.Data = append([]byte(nil), account.Data...)
	return &c
}

func (l *Ledger) Account(ctx context.Context, pubkey solana.PublicKey) (*backend.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailRead != nil {
		return nil, l.FailRead
	}
	account, ok := l.accounts[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrAccountNotFound, pubkey)
	}
	return l.copyOf(account), nil
}

func (l *Ledger) Accounts(ctx context.Context, pubkeys []solana.PublicKey) ([]*backend.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailRead != nil {
		return nil, l.FailRead
	}
	out := make([]*backend.Account, 0, len(pubkeys))
	for _, pubkey := range pubkeys {
		if account, ok := l.accounts[pubkey]; ok {
			out = append(out, l.copyOf(account))
		} else {
			out = append(out, nil)
		}
	}
	return out, nil
}

func (l *Ledger) ProgramAccounts(ctx context.Context, programID solana.PublicKey, prefix backend.Prefix) ([]*backend.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailRead != nil {
		return nil, l.FailRead
	}
	out := make([]*backend.Account, 0)
	for _, account := range l.accounts {
		if !account.Owner.Equals(programID) {
			continue
		}
		end := int(prefix.Offset) + len(prefix.Bytes)
		if len(account.Data) < end || string(account.Data[prefix.Offset:end]) != string(prefix.Bytes) {
			continue
		}
		out = append(out, l.copyOf(account))
	}
	return out, nil
}

func (l *Ledger) Balance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailRead != nil {
		return 0, l.FailRead
	}
	if account, ok := l.accounts[pubkey]; ok {
		return account.Lamports, nil
	}
	return 0, nil
}

func (l *Ledger) SendAndConfirm(ctx context.Context, ins []solana.Instruction) (solana.Signature, error) {
	if l.FailSend != nil {
		if err := l.FailSend(ins); err != nil {
			return solana.Signature{}, err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// apply to a scratch copy so a failing instruction leaves no trace
	scratch := make(map[solana.PublicKey]*backend.Account, len(l.accounts))
	for key, account := range l.accounts {
		scratch[key] = l.copyOf(account)
	}
	for _, in := range ins {
		if err := apply(scratch, in); err != nil {
			return solana.Signature{}, fmt.Errorf("%w: %v", backend.ErrTransactionFailed, err)
		}
	}
	l.accounts = scratch
	l.Sent = append(l.Sent, ins)
	return l.signature(), nil
}

func (l *Ledger) SignAndConfirm(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (solana.Signature, error) {
	if l.FailSign != nil {
		return solana.Signature{}, l.FailSign
	}
	l.mu.Lock()
	l.Signed = append(l.Signed, tx)
	signature := l.signature()
	l.mu.Unlock()
	if l.OnSign != nil {
		l.OnSign(l, tx)
	}
	return signature, nil
}

func (l *Ledger) signature() solana.Signature {
	l.nonce++
	var signature solana.Signature
	binary.LittleEndian.PutUint64(signature[:], l.nonce)
	return signature
}

var errUnsupported = errors.New("instruction not supported by the in-memory ledger")

func apply(accounts map[solana.PublicKey]*backend.Account, in solana.Instruction) error {
	data, err := in.Data()
	if err != nil {
		return err
	}
	metas := in.Accounts()
	switch {
	case in.ProgramID().Equals(program.System):
		if len(data) != 12 || binary.LittleEndian.Uint32(data) != 2 {
			return errUnsupported
		}
		lamports := binary.LittleEndian.Uint64(data[4:])
		from, ok := accounts[metas[0].PublicKey]
		if !ok || from.Lamports < lamports {
			return fmt.Errorf("insufficient lamports in %s", metas[0].PublicKey)
		}
		to, ok := accounts[metas[1].PublicKey]
		if !ok {
			to = &backend.Account{PubKey: metas[1].PublicKey, Owner: program.System}
			accounts[metas[1].PublicKey] = to
		}
		from.Lamports -= lamports
		to.Lamports += lamports
		return nil
	case in.ProgramID().Equals(program.AssociatedToken):
		address, owner, mint, tokenProgram := metas[1].PublicKey, metas[2].PublicKey, metas[3].PublicKey, metas[5].PublicKey
		if _, ok := accounts[address]; ok {
			return nil
		}
		var fee *token2022.FeeAmount
		if tokenProgram.Equals(program.Token2022) {
			fee = &token2022.FeeAmount{}
		}
		accounts[address] = &backend.Account{
			PubKey:   address,
			Owner:    tokenProgram,
			Lamports: 2_074_080,
			Data:     token2022.EncodeAccount(token2022.AccountLayout{Mint: mint, Owner: owner, State: 1}, fee),
		}
		return nil
	case program.Classify(in.ProgramID()) != program.Unknown:
		return applyToken(accounts, data, metas)
	}
	return errUnsupported
}

func applyToken(accounts map[solana.PublicKey]*backend.Account, data []byte, metas []*solana.AccountMeta) error {
	load := func(key solana.PublicKey) (*backend.Account, *token2022.Account, error) {
		raw, ok := accounts[key]
		if !ok {
			return nil, nil, fmt.Errorf("account %s does not exist", key)
		}
		decoded, err := token2022.DecodeAccount(raw.Owner, raw.Data)
		if err != nil {
			return nil, nil, err
		}
		return raw, decoded, nil
	}
	store := func(raw *backend.Account, decoded *token2022.Account) {
		raw.Data = token2022.EncodeAccount(decoded.AccountLayout, decoded.Fee)
	}
	switch {
	case len(data) == 3 && data[0] == 26 && data[1] == 3:
		destRaw, dest, err := load(metas[1].PublicKey)
		if err != nil {
			return err
		}
		for _, meta := range metas[3:] {
			raw, source, err := load(meta.PublicKey)
			if err != nil {
				return err
			}
			if !source.Mint.Equals(metas[0].PublicKey) {
				return fmt.Errorf("source %s has mint %s", meta.PublicKey, source.Mint)
			}
			if source.Fee == nil {
				continue
			}
			dest.Amount += source.Fee.Withheld
			source.Fee.Withheld = 0
			store(raw, source)
		}
		store(destRaw, dest)
		return nil
	case len(data) == 10 && data[0] == 12:
		amount := binary.LittleEndian.Uint64(data[1:])
		sourceRaw, source, err := load(metas[0].PublicKey)
		if err != nil {
			return err
		}
		destRaw, dest, err := load(metas[2].PublicKey)
		if err != nil {
			return err
		}
		if source.Amount < amount {
			return fmt.Errorf("insufficient funds in %s", metas[0].PublicKey)
		}
		source.Amount -= amount
		dest.Amount += amount
		store(sourceRaw, source)
		store(destRaw, dest)
		return nil
	}
	return errUnsupported
}
