package token2022

import (
	"encoding/binary"
	"testing"

	"github.com/egaotan/token-fee-harvester/program"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionWithdrawWithheldFromAccounts(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	destination := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	sources := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}

	in, err := InstructionWithdrawWithheldFromAccounts(mint, destination, authority, sources)
	require.NoError(t, err)
	assert.Equal(t, program.Token2022, in.ProgramID())
	data, _ := in.Data()
	assert.Equal(t, []byte{26, 3, 2}, data)

	accounts := in.Accounts()
	require.Len(t, accounts, 5)
	assert.Equal(t, mint, accounts[0].PublicKey)
	assert.True(t, accounts[1].IsWritable)
	assert.True(t, accounts[2].IsSigner)
	assert.Equal(t, sources[1], accounts[4].PublicKey)

	_, err = InstructionWithdrawWithheldFromAccounts(mint, destination, authority, nil)
	assert.Error(t, err)
}

func TestInstructionTransferChecked(t *testing.T) {
	in, err := InstructionTransferChecked(program.Token2022,
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1234, 6)
	require.NoError(t, err)
	data, _ := in.Data()
	require.Len(t, data, 10)
	assert.Equal(t, byte(12), data[0])
	assert.Equal(t, uint64(1234), binary.LittleEndian.Uint64(data[1:]))
	assert.Equal(t, byte(6), data[9])

	_, err = InstructionTransferChecked(program.Token2022, solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}, 0, 6)
	assert.Error(t, err)
}

func TestInstructionCreateAssociatedIdempotent(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	in, address, err := InstructionCreateAssociatedIdempotent(payer, owner, mint, program.Token2022)
	require.NoError(t, err)
	expected, err := AssociatedAddress(owner, mint, program.Token2022)
	require.NoError(t, err)
	assert.Equal(t, expected, address)
	assert.Equal(t, program.AssociatedToken, in.ProgramID())
	assert.Equal(t, address, in.Accounts()[1].PublicKey)

	legacy, err := AssociatedAddress(owner, mint, program.Token)
	require.NoError(t, err)
	assert.NotEqual(t, legacy, address)
}
