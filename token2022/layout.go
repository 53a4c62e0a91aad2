package token2022

import (
	"github.com/gagliardetto/solana-go"
)

const (
	AccountLayoutSize = 165
	MintLayoutSize    = 82
	// extended accounts and mints store a one byte account type right
	// after the base account size, followed by the TLV extension area.
	accountTypeOffset = AccountLayoutSize
	extensionsOffset  = AccountLayoutSize + 1
)

const (
	AccountTypeUninitialized uint8 = 0
	AccountTypeMint          uint8 = 1
	AccountTypeAccount       uint8 = 2
)

type ExtensionType uint16

const (
	ExtensionUninitialized     ExtensionType = 0
	ExtensionTransferFeeConfig ExtensionType = 1
	ExtensionTransferFeeAmount ExtensionType = 2
)

const (
	transferFeeConfigSize = 108
	transferFeeAmountSize = 8
)

// AccountLayout is the base token account layout shared by both token programs.
type AccountLayout struct {
	Mint                 solana.PublicKey
	Owner                solana.PublicKey
	Amount               uint64
	DelegateOption       [4]byte
	Delegate             solana.PublicKey
	State                uint8
	IsNativeOption       [4]byte
	IsNative             uint64
	DelegatedAmount      uint64
	CloseAuthorityOption [4]byte
	CloseAuthority       solana.PublicKey
}

// MintLayout is the base mint layout shared by both token programs.
type MintLayout struct {
	MintAuthorityOption   [4]byte
	MintAuthority         solana.PublicKey
	Supply                uint64
	Decimals              byte
	IsInitialized         uint8
	FreezeAuthorityOption [4]byte
	FreezeAuthority       solana.PublicKey
}

type TransferFee struct {
	Epoch                  uint64
	MaximumFee             uint64
	TransferFeeBasisPoints uint16
}

type TransferFeeConfigLayout struct {
	TransferFeeConfigAuthority solana.PublicKey
	WithdrawWithheldAuthority  solana.PublicKey
	WithheldAmount             uint64
	OlderTransferFee           TransferFee
	NewerTransferFee           TransferFee
}
