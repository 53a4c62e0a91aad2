package program

import "github.com/gagliardetto/solana-go"

var (
	Token           = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022       = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedToken = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	System          = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	SysRent         = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

var (
	// SOL is the wrapped native mint, used as the swap output mint.
	SOL = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

const (
	SOLDecimals = 9
)
