package program

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, Plain, Classify(Token))
	assert.Equal(t, FeeExtended, Classify(Token2022))
	assert.Equal(t, Unknown, Classify(System))
	assert.Equal(t, Unknown, Classify(solana.NewWallet().PublicKey()))
}

func TestKindID(t *testing.T) {
	assert.Equal(t, Token, Plain.ID())
	assert.Equal(t, Token2022, FeeExtended.ID())
	assert.True(t, Unknown.ID().IsZero())
	assert.Equal(t, "token-2022", FeeExtended.String())
}
