package system

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	systemprogram "github.com/gagliardetto/solana-go/programs/system"
)

// InstructionTransfer moves lamports between two system accounts.
func InstructionTransfer(from, to solana.PublicKey, lamports uint64) (solana.Instruction, error) {
	if lamports == 0 {
		return nil, fmt.Errorf("transfer: zero lamports")
	}
	if from.Equals(to) {
		return nil, fmt.Errorf("transfer: source and destination are both %s", from)
	}
	instruction, err := systemprogram.NewTransferInstruction(lamports, from, to).ValidateAndBuild()
	if err != nil {
		return nil, err
	}
	return instruction, nil
}
