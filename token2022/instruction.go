package token2022

import (
	"encoding/binary"
	"fmt"

	"github.com/egaotan/token-fee-harvester/program"
	"github.com/gagliardetto/solana-go"
)

const (
	instructionTransferChecked      = 12
	instructionTransferFeeExtension = 26

	transferFeeWithdrawFromAccounts = 3

	associatedCreateIdempotent = 1
)

// MaxWithdrawSources is the most source accounts a single withdraw
// instruction can encode.
const MaxWithdrawSources = 255

// InstructionWithdrawWithheldFromAccounts moves the withheld fees of every
// source account into destination. authority must be the mint's withdraw
// withheld authority.
func InstructionWithdrawWithheldFromAccounts(mint, destination, authority solana.PublicKey, sources []solana.PublicKey) (solana.Instruction, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("withdraw withheld: no source accounts")
	}
	if len(sources) > MaxWithdrawSources {
		return nil, fmt.Errorf("withdraw withheld: %d source accounts, max %d", len(sources), MaxWithdrawSources)
	}
	data := []byte{instructionTransferFeeExtension, transferFeeWithdrawFromAccounts, byte(len(sources))}
	accounts := []*solana.AccountMeta{
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: destination, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: false},
	}
	for _, source := range sources {
		accounts = append(accounts, &solana.AccountMeta{PublicKey: source, IsSigner: false, IsWritable: true})
	}
	return program.NewInstruction(program.Token2022, data, accounts...), nil
}

// InstructionTransferChecked works for both token programs; token-2022 mints
// with a transfer fee reject the unchecked variant.
func InstructionTransferChecked(tokenProgram, source, mint, destination, authority solana.PublicKey, amount uint64, decimals uint8) (solana.Instruction, error) {
	if amount == 0 {
		return nil, fmt.Errorf("transfer checked: zero amount")
	}
	data := make([]byte, 10)
	data[0] = instructionTransferChecked
	binary.LittleEndian.PutUint64(data[1:], amount)
	data[9] = decimals
	return program.NewInstruction(tokenProgram, data,
		&solana.AccountMeta{PublicKey: source, IsSigner: false, IsWritable: true},
		&solana.AccountMeta{PublicKey: mint, IsSigner: false, IsWritable: false},
		&solana.AccountMeta{PublicKey: destination, IsSigner: false, IsWritable: true},
		&solana.AccountMeta{PublicKey: authority, IsSigner: true, IsWritable: false},
	), nil
}

// AssociatedAddress derives the associated token account of owner for mint
// under the given token program.
func AssociatedAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress([][]byte{
		owner[:],
		tokenProgram[:],
		mint[:],
	}, program.AssociatedToken)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated account of %s for %s: %w", owner, mint, err)
	}
	return address, nil
}

// InstructionCreateAssociatedIdempotent creates the associated account of
// owner for mint, succeeding when it already exists.
func InstructionCreateAssociatedIdempotent(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	address, err := AssociatedAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	instruction := program.NewInstruction(program.AssociatedToken, []byte{associatedCreateIdempotent},
		&solana.AccountMeta{PublicKey: payer, IsSigner: true, IsWritable: true},
		&solana.AccountMeta{PublicKey: address, IsSigner: false, IsWritable: true},
		&solana.AccountMeta{PublicKey: owner, IsSigner: false, IsWritable: false},
		&solana.AccountMeta{PublicKey: mint, IsSigner: false, IsWritable: false},
		&solana.AccountMeta{PublicKey: program.System, IsSigner: false, IsWritable: false},
		&solana.AccountMeta{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
	)
	return instruction, address, nil
}
