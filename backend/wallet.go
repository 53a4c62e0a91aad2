package backend

import (
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet holds the authority keypair. It is read-only after load.
type Wallet struct {
	pubkey solana.PublicKey
	prikey solana.PrivateKey
}

func NewWallet(prikey solana.PrivateKey) *Wallet {
	return &Wallet{
		pubkey: prikey.PublicKey(),
		prikey: prikey,
	}
}

// LoadWallet accepts either a path to a solana-keygen JSON file or a
// base58 encoded 64 byte secret key.
func LoadWallet(source string) (*Wallet, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("wallet: no keypair configured")
	}
	if _, err := os.Stat(source); err == nil {
		prikey, err := solana.PrivateKeyFromSolanaKeygenFile(source)
		if err != nil {
			return nil, fmt.Errorf("wallet: read keypair file %s: %w", source, err)
		}
		return NewWallet(prikey), nil
	}
	raw, err := base58.Decode(source)
	if err != nil {
		return nil, fmt.Errorf("wallet: keypair is neither a file nor base58: %w", err)
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("wallet: base58 secret key is %d bytes, expected 64", len(raw))
	}
	return NewWallet(solana.PrivateKey(raw)), nil
}

func (w *Wallet) PublicKey() solana.PublicKey {
	return w.pubkey
}

func (w *Wallet) getWallet(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(w.pubkey) {
		return &w.prikey
	}
	return nil
}

// Sign fills the wallet's signature slot in tx. Other signature slots are
// kept as they are, so transactions built by a third party can be signed
// in place.
func (w *Wallet) Sign(tx *solana.Transaction) error {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	signers := tx.Message.Signers()
	index := -1
	for i, signer := range signers {
		if signer.Equals(w.pubkey) {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("wallet %s is not a signer of the transaction", w.pubkey)
	}
	signature, err := w.getWallet(w.pubkey).Sign(message)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if len(tx.Signatures) < len(signers) {
		signatures := make([]solana.Signature, len(signers))
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[index] = signature
	return nil
}
