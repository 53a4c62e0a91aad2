package token2022

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/egaotan/token-fee-harvester/program"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrNotTokenAccount = errors.New("account is not owned by a token program")
	ErrMalformed       = errors.New("malformed token data")
)

// Account is a decoded token account. Fee is only ever set for FeeExtended
// accounts that carry the TransferFeeAmount extension.
type Account struct {
	Kind program.Kind
	AccountLayout
	Fee *FeeAmount
}

type FeeAmount struct {
	Withheld uint64
}

// Withheld returns the withheld fee and whether the account has fee state at all.
func (a *Account) Withheld() (uint64, bool) {
	if a.Kind != program.FeeExtended || a.Fee == nil {
		return 0, false
	}
	return a.Fee.Withheld, true
}

type Mint struct {
	Kind program.Kind
	MintLayout
	FeeConfig *TransferFeeConfig
}

type TransferFeeConfig struct {
	TransferFeeConfigLayout
}

// WithdrawAuthority returns the withheld withdraw authority, false when unset.
func (c *TransferFeeConfig) WithdrawAuthority() (solana.PublicKey, bool) {
	if c.WithdrawWithheldAuthority.IsZero() {
		return solana.PublicKey{}, false
	}
	return c.WithdrawWithheldAuthority, true
}

func (c *TransferFeeConfig) BasisPoints(epoch uint64) uint16 {
	if epoch >= c.NewerTransferFee.Epoch {
		return c.NewerTransferFee.TransferFeeBasisPoints
	}
	return c.OlderTransferFee.TransferFeeBasisPoints
}

func DecodeAccount(owner solana.PublicKey, data []byte) (*Account, error) {
	kind := program.Classify(owner)
	if kind == program.Unknown {
		return nil, fmt.Errorf("%w: owner %s", ErrNotTokenAccount, owner)
	}
	if len(data) < AccountLayoutSize {
		return nil, fmt.Errorf("%w: account data size %d, expected at least %d", ErrMalformed, len(data), AccountLayoutSize)
	}
	account := &Account{Kind: kind}
	if err := binary.Read(bytes.NewReader(data[:AccountLayoutSize]), binary.LittleEndian, &account.AccountLayout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if kind == program.Plain || len(data) == AccountLayoutSize {
		return account, nil
	}
	if data[accountTypeOffset] != AccountTypeAccount {
		return nil, fmt.Errorf("%w: account type %d", ErrMalformed, data[accountTypeOffset])
	}
	extensions, err := parseExtensions(data[extensionsOffset:])
	if err != nil {
		return nil, err
	}
	if value, ok := extensions[ExtensionTransferFeeAmount]; ok {
		if len(value) != transferFeeAmountSize {
			return nil, fmt.Errorf("%w: transfer fee amount size %d", ErrMalformed, len(value))
		}
		account.Fee = &FeeAmount{Withheld: binary.LittleEndian.Uint64(value)}
	}
	return account, nil
}

func DecodeMint(owner solana.PublicKey, data []byte) (*Mint, error) {
	kind := program.Classify(owner)
	if kind == program.Unknown {
		return nil, fmt.Errorf("%w: owner %s", ErrNotTokenAccount, owner)
	}
	if len(data) < MintLayoutSize {
		return nil, fmt.Errorf("%w: mint data size %d, expected at least %d", ErrMalformed, len(data), MintLayoutSize)
	}
	mint := &Mint{Kind: kind}
	if err := binary.Read(bytes.NewReader(data[:MintLayoutSize]), binary.LittleEndian, &mint.MintLayout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if kind == program.Plain || len(data) == MintLayoutSize {
		return mint, nil
	}
	if len(data) <= AccountLayoutSize || data[accountTypeOffset] != AccountTypeMint {
		return nil, fmt.Errorf("%w: extended mint without mint account type", ErrMalformed)
	}
	extensions, err := parseExtensions(data[extensionsOffset:])
	if err != nil {
		return nil, err
	}
	if value, ok := extensions[ExtensionTransferFeeConfig]; ok {
		if len(value) != transferFeeConfigSize {
			return nil, fmt.Errorf("%w: transfer fee config size %d", ErrMalformed, len(value))
		}
		config := &TransferFeeConfig{}
		if err := binary.Read(bytes.NewReader(value), binary.LittleEndian, &config.TransferFeeConfigLayout); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		mint.FeeConfig = config
	}
	return mint, nil
}

// parseExtensions walks the type-length-value area. An uninitialized type
// marks the end of the used space.
func parseExtensions(tlv []byte) (map[ExtensionType][]byte, error) {
	extensions := make(map[ExtensionType][]byte)
	offset := 0
	for offset+4 <= len(tlv) {
		typ := ExtensionType(binary.LittleEndian.Uint16(tlv[offset:]))
		length := int(binary.LittleEndian.Uint16(tlv[offset+2:]))
		if typ == ExtensionUninitialized {
			break
		}
		start := offset + 4
		if start+length > len(tlv) {
			return nil, fmt.Errorf("%w: extension %d overruns data (%d > %d)", ErrMalformed, typ, start+length, len(tlv))
		}
		extensions[typ] = tlv[start : start+length]
		offset = start + length
	}
	return extensions, nil
}
