package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/egaotan/token-fee-harvester/backend"
	"github.com/egaotan/token-fee-harvester/program"
	"github.com/egaotan/token-fee-harvester/token2022"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	ErrMintNotFound = errors.New("mint not found")
	ErrNotTokenMint = errors.New("mint is not owned by a token program")
)

// mintOffset is where the mint address sits in every token account.
const mintOffset = 0

type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipNotToken   SkipReason = "not a token account"
	SkipDecode     SkipReason = "decode failed"
	SkipOtherMint  SkipReason = "belongs to another mint"
	SkipNoFeeState SkipReason = "no transfer fee state"
)

// Entry is one scanned account. Skipped entries keep the reason and, for
// decode failures, the error; they never contribute to the totals.
type Entry struct {
	Address     solana.PublicKey
	Owner       solana.PublicKey
	Balance     uint64
	Withheld    uint64
	HasFeeState bool
	Harvestable bool
	Skip        SkipReason
	Err         error
}

type Report struct {
	Mint             solana.PublicKey
	Kind             program.Kind
	Decimals         uint8
	Threshold        uint64
	TotalAccounts    int
	TotalBalance     uint64
	TotalWithheld    uint64
	HarvestableCount int
	HarvestableSum   uint64
	DecodeFailures   int
	Entries          []*Entry
}

// Harvestable lists the addresses of every harvestable entry, largest
// withheld amount first.
func (r *Report) Harvestable() []solana.PublicKey {
	entries := r.sorted()
	out := make([]solana.PublicKey, 0, r.HarvestableCount)
	for _, entry := range entries {
		if entry.Harvestable {
			out = append(out, entry.Address)
		}
	}
	return out
}

// Top returns the n entries holding the most withheld fees.
func (r *Report) Top(n int) []*Entry {
	entries := r.sorted()
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

func (r *Report) sorted() []*Entry {
	entries := make([]*Entry, 0, len(r.Entries))
	for _, entry := range r.Entries {
		if entry.Skip == SkipNone || entry.Skip == SkipNoFeeState {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Withheld > entries[j].Withheld
	})
	return entries
}

type Scanner struct {
	ledger backend.Ledger
	logger *zap.SugaredLogger
}

func NewScanner(ledger backend.Ledger, logger *zap.Logger) *Scanner {
	return &Scanner{
		ledger: ledger,
		logger: logger.Named("scanner").Sugar(),
	}
}

// Mint reads and decodes a mint account.
func (s *Scanner) Mint(ctx context.Context, mint solana.PublicKey) (*token2022.Mint, error) {
	account, err := s.ledger.Account(ctx, mint)
	if errors.Is(err, backend.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
	}
	if err != nil {
		return nil, err
	}
	decoded, err := token2022.DecodeMint(account.Owner, account.Data)
	if errors.Is(err, token2022.ErrNotTokenAccount) {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrNotTokenMint, mint, account.Owner)
	}
	if err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	return decoded, nil
}

// Scan enumerates every account of mint and marks the ones whose withheld
// fee is strictly greater than threshold.
func (s *Scanner) Scan(ctx context.Context, mint solana.PublicKey, threshold uint64) (*Report, error) {
	decodedMint, err := s.Mint(ctx, mint)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Mint:      mint,
		Kind:      decodedMint.Kind,
		Decimals:  decodedMint.Decimals,
		Threshold: threshold,
		Entries:   make([]*Entry, 0),
	}
	if decodedMint.Kind == program.Plain {
		s.logger.Infof("mint %s is owned by the spl token program, no transfer fees to scan", mint)
		return report, nil
	}
	accounts, err := s.ledger.ProgramAccounts(ctx, program.Token2022, backend.Prefix{
		Offset: mintOffset,
		Bytes:  mint.Bytes(),
	})
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		entry := s.entry(mint, threshold, account)
		report.Entries = append(report.Entries, entry)
		switch entry.Skip {
		case SkipNone, SkipNoFeeState:
		case SkipDecode:
			report.DecodeFailures++
			continue
		default:
			continue
		}
		report.TotalAccounts++
		report.TotalBalance += entry.Balance
		report.TotalWithheld += entry.Withheld
		if entry.Harvestable {
			report.HarvestableCount++
			report.HarvestableSum += entry.Withheld
		}
	}
	s.logger.Infof("scanned %d accounts of %s: withheld %d, harvestable %d (%d), decode failures %d",
		report.TotalAccounts, mint, report.TotalWithheld, report.HarvestableCount, report.HarvestableSum, report.DecodeFailures)
	return report, nil
}

func (s *Scanner) entry(mint solana.PublicKey, threshold uint64, account *backend.Account) *Entry {
	entry := &Entry{
		Address: account.PubKey,
		Owner:   account.Owner,
	}
	if program.Classify(account.Owner) == program.Unknown {
		entry.Skip = SkipNotToken
		return entry
	}
	decoded, err := token2022.DecodeAccount(account.Owner, account.Data)
	if err != nil {
		s.logger.Warnf("skip account %s: %v", account.PubKey, err)
		entry.Skip = SkipDecode
		entry.Err = err
		return entry
	}
	if !decoded.Mint.Equals(mint) {
		entry.Skip = SkipOtherMint
		return entry
	}
	entry.Balance = decoded.Amount
	withheld, ok := decoded.Withheld()
	if !ok {
		entry.Skip = SkipNoFeeState
		return entry
	}
	entry.HasFeeState = true
	entry.Withheld = withheld
	entry.Harvestable = withheld > threshold
	return entry
}
