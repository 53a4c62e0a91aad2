package harvester

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
	ErrMintNotFound         = errors.New("mint not found")
	ErrNoFeeMechanism       = errors.New("mint has no transfer fee mechanism")
	ErrNotWithdrawAuthority = errors.New("signer is not the withdraw withheld authority")
	ErrCustodyNotFound      = errors.New("custody account not found")
	ErrCustodyMintMismatch  = errors.New("custody account holds another mint")
	ErrWithdrawFailed       = errors.New("withdraw withheld fees failed")
)

// DefaultMaxAccounts keeps the withdraw instruction inside one transaction.
const DefaultMaxAccounts = 24

type Result struct {
	NothingToHarvest bool
	TotalHarvested   uint64
	AccountCount     int
	Sources          []solana.PublicKey
	// Deferred counts verified accounts left for the next cycle because of
	// the per transaction cap.
	Deferred  int
	Signature solana.Signature
}

type Harvester struct {
	ledger      backend.Ledger
	logger      *zap.SugaredLogger
	maxAccounts int
}

func NewHarvester(ledger backend.Ledger, maxAccounts int, logger *zap.Logger) *Harvester {
	if maxAccounts <= 0 || maxAccounts > token2022.MaxWithdrawSources {
		maxAccounts = DefaultMaxAccounts
	}
	return &Harvester{
		ledger:      ledger,
		logger:      logger.Named("harvester").Sugar(),
		maxAccounts: maxAccounts,
	}
}

// EnsureCustody returns the authority's associated token account for mint,
// creating it when it does not exist yet.
func (h *Harvester) EnsureCustody(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	in, custody, err := token2022.InstructionCreateAssociatedIdempotent(h.ledger.Payer(), h.ledger.Payer(), mint, program.Token2022)
	if err != nil {
		return solana.PublicKey{}, err
	}
	_, err = h.ledger.Account(ctx, custody)
	if err == nil {
		return custody, nil
	}
	if !errors.Is(err, backend.ErrAccountNotFound) {
		return solana.PublicKey{}, err
	}
	h.logger.Infof("custody account %s does not exist, creating it", custody)
	signature, err := h.ledger.SendAndConfirm(ctx, []solana.Instruction{in})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("create custody account %s: %w", custody, err)
	}
	h.logger.Infof("custody account %s created: %s", custody, signature)
	return custody, nil
}

// Harvest withdraws the withheld fees of candidates into custody. Every
// candidate is re-read first and only accounts that still hold a positive
// withheld amount end up in the instruction.
func (h *Harvester) Harvest(ctx context.Context, mint, custody solana.PublicKey, candidates []solana.PublicKey) (*Result, error) {
	if err := h.checkMint(ctx, mint); err != nil {
		return nil, err
	}
	if err := h.checkCustody(ctx, mint, custody); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		h.logger.Infof("nothing to harvest: no candidates")
		return &Result{NothingToHarvest: true}, nil
	}

	verified, err := h.verify(ctx, mint, custody, candidates)
	if err != nil {
		return nil, err
	}
	if len(verified) == 0 {
		h.logger.Infof("nothing to harvest: none of %d candidates still holds withheld fees", len(candidates))
		return &Result{NothingToHarvest: true}, nil
	}
	sort.SliceStable(verified, func(i, j int) bool {
		return verified[i].withheld > verified[j].withheld
	})
	result := &Result{}
	if len(verified) > h.maxAccounts {
		result.Deferred = len(verified) - h.maxAccounts
		verified = verified[:h.maxAccounts]
		h.logger.Infof("harvesting %d accounts now, %d left for the next cycle", h.maxAccounts, result.Deferred)
	}
	for _, source := range verified {
		result.Sources = append(result.Sources, source.address)
		result.TotalHarvested += source.withheld
	}
	result.AccountCount = len(result.Sources)

	in, err := token2022.InstructionWithdrawWithheldFromAccounts(mint, custody, h.ledger.Payer(), result.Sources)
	if err != nil {
		return nil, err
	}
	h.logger.Infof("withdrawing %d withheld from %d accounts into %s", result.TotalHarvested, result.AccountCount, custody)
	signature, err := h.ledger.SendAndConfirm(ctx, []solana.Instruction{in})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWithdrawFailed, err)
	}
	result.Signature = signature
	h.logger.Infof("harvested %d from %d accounts: %s", result.TotalHarvested, result.AccountCount, signature)
	return result, nil
}

func (h *Harvester) checkMint(ctx context.Context, mint solana.PublicKey) error {
	account, err := h.ledger.Account(ctx, mint)
	if errors.Is(err, backend.ErrAccountNotFound) {
		return fmt.Errorf("%w: %s", ErrMintNotFound, mint)
	}
	if err != nil {
		return err
	}
	decoded, err := token2022.DecodeMint(account.Owner, account.Data)
	if err != nil {
		return fmt.Errorf("decode mint %s: %w", mint, err)
	}
	if decoded.Kind != program.FeeExtended || decoded.FeeConfig == nil {
		return fmt.Errorf("%w: %s", ErrNoFeeMechanism, mint)
	}
	authority, ok := decoded.FeeConfig.WithdrawAuthority()
	if !ok || !authority.Equals(h.ledger.Payer()) {
		return fmt.Errorf("%w: mint %s expects %s, signer is %s", ErrNotWithdrawAuthority, mint, authority, h.ledger.Payer())
	}
	return nil
}

func (h *Harvester) checkCustody(ctx context.Context, mint, custody solana.PublicKey) error {
	account, err := h.ledger.Account(ctx, custody)
	if errors.Is(err, backend.ErrAccountNotFound) {
		return fmt.Errorf("%w: %s", ErrCustodyNotFound, custody)
	}
	if err != nil {
		return err
	}
	decoded, err := token2022.DecodeAccount(account.Owner, account.Data)
	if err != nil {
		return fmt.Errorf("decode custody %s: %w", custody, err)
	}
	if !decoded.Mint.Equals(mint) {
		return fmt.Errorf("%w: %s holds %s, expected %s", ErrCustodyMintMismatch, custody, decoded.Mint, mint)
	}
	return nil
}

type source struct {
	address  solana.PublicKey
	withheld uint64
}

func (h *Harvester) verify(ctx context.Context, mint, custody solana.PublicKey, candidates []solana.PublicKey) ([]source, error) {
	unique := make([]solana.PublicKey, 0, len(candidates))
	seen := make(map[solana.PublicKey]bool, len(candidates))
	for _, candidate := range candidates {
		if seen[candidate] || candidate.Equals(custody) {
			continue
		}
		seen[candidate] = true
		unique = append(unique, candidate)
	}
	accounts, err := h.ledger.Accounts(ctx, unique)
	if err != nil {
		return nil, err
	}
	verified := make([]source, 0, len(accounts))
	for i, account := range accounts {
		address := unique[i]
		if account == nil {
			h.logger.Debugf("skip %s: account no longer exists", address)
			continue
		}
		switch program.Classify(account.Owner) {
		case program.Unknown:
			h.logger.Debugf("skip %s: owned by %s", address, account.Owner)
			continue
		case program.Plain:
			h.logger.Debugf("skip %s: spl token accounts carry no withheld fees", address)
			continue
		case program.FeeExtended:
		}
		decoded, err := token2022.DecodeAccount(account.Owner, account.Data)
		if err != nil {
			h.logger.Warnf("skip %s: %v", address, err)
			continue
		}
		if !decoded.Mint.Equals(mint) {
			h.logger.Warnf("skip %s: holds mint %s", address, decoded.Mint)
			continue
		}
		withheld, ok := decoded.Withheld()
		if !ok || withheld == 0 {
			h.logger.Debugf("skip %s: no withheld fees at withdraw time", address)
			continue
		}
		verified = append(verified, source{address: address, withheld: withheld})
	}
	return verified, nil
}
