package distributor

import (
	"context"
	"errors"
	"fmt"

	"github.com/egaotan/token-fee-harvester/backend"
	"github.com/egaotan/token-fee-harvester/program"
	"github.com/egaotan/token-fee-harvester/system"
	"github.com/egaotan/token-fee-harvester/token2022"
	"github.com/egaotan/token-fee-harvester/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoRecipients = errors.New("no recipients")
	ErrMintNotFound = errors.New("distribution mint not found")

	hundred        = decimal.NewFromInt(100)
	percentEpsilon = decimal.New(1, -6)
)

type Recipient struct {
	Label   string
	Address solana.PublicKey
	Percent decimal.Decimal
}

func (r Recipient) String() string {
	if r.Label == "" {
		return r.Address.String()
	}
	return fmt.Sprintf("%s(%s)", r.Label, r.Address)
}

type Payment struct {
	Recipient Recipient
	Amount    uint64
	Signature solana.Signature
}

type Failure struct {
	Recipient Recipient
	Amount    uint64
	Err       error
}

type Result struct {
	Success bool
	Paid    []Payment
	Skipped []Recipient
	Failed  []Failure
}

// PaidTotal sums the base units that reached recipients.
func (r *Result) PaidTotal() uint64 {
	total := uint64(0)
	for _, p := range r.Paid {
		total += p.Amount
	}
	return total
}

type Distributor struct {
	ledger backend.Ledger
	logger *zap.SugaredLogger
}

func NewDistributor(ledger backend.Ledger, logger *zap.Logger) *Distributor {
	return &Distributor{
		ledger: ledger,
		logger: logger.Named("distributor").Sugar(),
	}
}

// DistributeNative pays total SOL out of the authority wallet.
func (d *Distributor) DistributeNative(ctx context.Context, total decimal.Decimal, recipients []Recipient) (*Result, error) {
	payer := d.ledger.Payer()
	return d.distribute(ctx, total, program.SOLDecimals, recipients, func(recipient Recipient, amount uint64) ([]solana.Instruction, error) {
		in, err := system.InstructionTransfer(payer, recipient.Address, amount)
		if err != nil {
			return nil, err
		}
		return []solana.Instruction{in}, nil
	})
}

// DistributeToken pays total tokens of mint out of the authority's
// associated account. Missing recipient accounts are created in the same
// transaction as their transfer.
func (d *Distributor) DistributeToken(ctx context.Context, mint solana.PublicKey, total decimal.Decimal, recipients []Recipient) (*Result, error) {
	account, err := d.ledger.Account(ctx, mint)
	if errors.Is(err, backend.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
	}
	if err != nil {
		return nil, err
	}
	decoded, err := token2022.DecodeMint(account.Owner, account.Data)
	if err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	tokenProgram := decoded.Kind.ID()
	payer := d.ledger.Payer()
	source, err := token2022.AssociatedAddress(payer, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	return d.distribute(ctx, total, decoded.Decimals, recipients, func(recipient Recipient, amount uint64) ([]solana.Instruction, error) {
		create, destination, err := token2022.InstructionCreateAssociatedIdempotent(payer, recipient.Address, mint, tokenProgram)
		if err != nil {
			return nil, err
		}
		ins := make([]solana.Instruction, 0, 2)
		if _, err := d.ledger.Account(ctx, destination); errors.Is(err, backend.ErrAccountNotFound) {
			d.logger.Infof("creating token account %s for %s", destination, recipient)
			ins = append(ins, create)
		} else if err != nil {
			return nil, err
		}
		transfer, err := token2022.InstructionTransferChecked(tokenProgram, source, mint, destination, payer, amount, decoded.Decimals)
		if err != nil {
			return nil, err
		}
		return append(ins, transfer), nil
	})
}

// PercentsComplete reports whether a percentage sum is 100 within 1e-6.
func PercentsComplete(sum decimal.Decimal) bool {
	return sum.Sub(hundred).Abs().LessThanOrEqual(percentEpsilon)
}

type transferBuilder func(recipient Recipient, amount uint64) ([]solana.Instruction, error)

func (d *Distributor) distribute(ctx context.Context, total decimal.Decimal, decimals uint8, recipients []Recipient, build transferBuilder) (*Result, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if total.Sign() <= 0 {
		return nil, fmt.Errorf("distribution total must be positive, got %s", total)
	}
	sum := decimal.Zero
	for _, recipient := range recipients {
		sum = sum.Add(recipient.Percent)
	}
	if !PercentsComplete(sum) {
		d.logger.Warnf("recipient percentages sum to %s, not 100; paying the literal shares", sum)
	}

	result := &Result{}
	for _, recipient := range recipients {
		share := total.Mul(recipient.Percent).Div(hundred)
		amount, ok := utils.ToBaseUnits(share, decimals)
		if !ok {
			err := fmt.Errorf("share %s does not fit in base units", share)
			d.logger.Errorf("skip %s: %v", recipient, err)
			result.Failed = append(result.Failed, Failure{Recipient: recipient, Err: err})
			continue
		}
		if amount == 0 {
			d.logger.Infof("skip %s: share %s is below one unit", recipient, share)
			result.Skipped = append(result.Skipped, recipient)
			continue
		}
		signature, err := d.pay(ctx, recipient, amount, build)
		if err != nil {
			d.logger.Errorf("pay %d to %s failed: %v", amount, recipient, err)
			result.Failed = append(result.Failed, Failure{Recipient: recipient, Amount: amount, Err: err})
			continue
		}
		d.logger.Infof("paid %s (%s%%) to %s: %s", utils.AmountUi(amount, decimals), recipient.Percent, recipient, signature)
		result.Paid = append(result.Paid, Payment{Recipient: recipient, Amount: amount, Signature: signature})
	}
	result.Success = len(result.Paid) > 0
	return result, nil
}

func (d *Distributor) pay(ctx context.Context, recipient Recipient, amount uint64, build transferBuilder) (solana.Signature, error) {
	ins, err := build(recipient, amount)
	if err != nil {
		return solana.Signature{}, err
	}
	return d.ledger.SendAndConfirm(ctx, ins)
}
