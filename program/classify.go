package program

import "github.com/gagliardetto/solana-go"

// Kind tells which token program owns an account.
type Kind int

const (
	Unknown Kind = iota
	Plain
	FeeExtended
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "spl-token"
	case FeeExtended:
		return "token-2022"
	default:
		return "unknown"
	}
}

// Classify maps an account owner to a token program kind. Anything that is
// not owned by one of the two token programs is Unknown.
func Classify(owner solana.PublicKey) Kind {
	switch {
	case owner.Equals(Token):
		return Plain
	case owner.Equals(Token2022):
		return FeeExtended
	default:
		return Unknown
	}
}

// ID returns the program id for a kind. Unknown yields the zero key.
func (k Kind) ID() solana.PublicKey {
	switch k {
	case Plain:
		return Token
	case FeeExtended:
		return Token2022
	default:
		return solana.PublicKey{}
	}
}
