package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/egaotan/token-fee-harvester/config"
	"github.com/egaotan/token-fee-harvester/distributor"
	"github.com/egaotan/token-fee-harvester/jupiter"
	"github.com/egaotan/token-fee-harvester/program"
	"github.com/egaotan/token-fee-harvester/swapper"
	"github.com/egaotan/token-fee-harvester/system"
	"github.com/egaotan/token-fee-harvester/testutil"
	"github.com/egaotan/token-fee-harvester/token2022"
	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	walletLamports = uint64(10_000_000_000)
	quotedLamports = uint64(1_234_567_891)
)

type fakeAggregator struct {
	payer    solana.PublicKey
	quoteErr error
	amounts  []uint64
	// out overrides the quoted lamports when set
	out uint64
}

func (f *fakeAggregator) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16) (*jupiter.Quote, error) {
	f.amounts = append(f.amounts, amount)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	out := quotedLamports
	if f.out != 0 {
		out = f.out
	}
	return &jupiter.Quote{InAmount: amount, OutAmount: out}, nil
}

func (f *fakeAggregator) SwapTransaction(ctx context.Context, quote *jupiter.Quote, user solana.PublicKey, priorityFeeLamports uint64) ([]byte, error) {
	in, err := system.InstructionTransfer(user, solana.NewWallet().PublicKey(), 1)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction([]solana.Instruction{in}, solana.Hash{}, solana.TransactionPayer(user))
	if err != nil {
		return nil, err
	}
	return tx.MarshalBinary()
}

func u64(v uint64) *uint64 { return &v }

func newKey() solana.PublicKey { return solana.NewWallet().PublicKey() }

type fixture struct {
	ledger     *testutil.Ledger
	aggregator *fakeAggregator
	mint       solana.PublicKey
	source     solana.PublicKey
	a, b       solana.PublicKey
	opt        *Options
}

func newFixture(t *testing.T) *fixture {
	ledger := testutil.NewLedger(newKey())
	ledger.SetLamports(ledger.Payer(), walletLamports)
	// the swap pays the quoted lamports into the wallet
	ledger.OnSign = func(l *testutil.Ledger, tx *solana.Transaction) {
		l.SetLamports(l.Payer(), l.Lamports(l.Payer())+quotedLamports)
	}
	mint := newKey()
	ledger.PutMint(mint, program.Token2022, 6, &token2022.TransferFeeConfigLayout{
		WithdrawWithheldAuthority: ledger.Payer(),
		NewerTransferFee:          token2022.TransferFee{TransferFeeBasisPoints: 500, MaximumFee: 1 << 40},
	})
	source := newKey()
	ledger.PutTokenAccount(source, program.Token2022, mint, newKey(), 50_000_000, u64(1_000_000))
	a, b := newKey(), newKey()
	return &fixture{
		ledger:     ledger,
		aggregator: &fakeAggregator{payer: ledger.Payer()},
		mint:       mint,
		source:     source,
		a:          a,
		b:          b,
		opt: &Options{
			Mint:            mint,
			Threshold:       0,
			Interval:        time.Minute,
			SlippageBps:     100,
			Swap:            true,
			Distribute:      true,
			DistributeAsset: config.AssetNative,
			Recipients: []distributor.Recipient{
				{Label: "a", Address: a, Percent: decimal.RequireFromString("2.5")},
				{Label: "b", Address: b, Percent: decimal.RequireFromString("2.5")},
			},
		},
	}
}

func (f *fixture) keeper() *Keeper {
	return NewKeeper(f.opt, f.ledger, f.aggregator, nil, clockwork.NewFakeClock(), zap.NewNop())
}

func TestRunCycle_EndToEnd(t *testing.T) {
	f := newFixture(t)
	keeper := f.keeper()

	report := keeper.RunCycle(context.Background())
	require.NoError(t, report.Err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, Distributing, report.State)

	require.NotNil(t, report.Harvest)
	assert.Equal(t, uint64(1_000_000), report.Harvest.TotalHarvested)
	assert.Equal(t, 1, report.Harvest.AccountCount)
	assert.Equal(t, []uint64{1_000_000}, f.aggregator.amounts)
	assert.Equal(t, quotedLamports, report.Swap.AmountReceived)

	share := uint64(30_864_197) // floor(1234567891 * 0.025)
	require.Len(t, report.Distribution.Paid, 2)
	assert.Equal(t, share, f.ledger.Lamports(f.a))
	assert.Equal(t, share, f.ledger.Lamports(f.b))
	assert.Equal(t, walletLamports+quotedLamports-2*share, f.ledger.Lamports(f.ledger.Payer()))

	// a fresh scan reads the ledger again and finds the fees gone
	scan, err := keeper.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, scan.TotalWithheld)
	assert.Zero(t, scan.HarvestableCount)
	assert.Same(t, report, keeper.Last())

	second := keeper.RunCycle(context.Background())
	assert.Equal(t, OutcomeIdle, second.Outcome)
	assert.Equal(t, uint64(2), keeper.Cycles())
}

func TestRunCycle_SwapFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.aggregator.quoteErr = errors.New("status 503")

	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.Equal(t, Swapping, report.State)
	var swapErr *swapper.Error
	require.ErrorAs(t, report.Err, &swapErr)
	assert.Equal(t, swapper.StepQuote, swapErr.Step)

	custody, err := token2022.AssociatedAddress(f.ledger.Payer(), f.mint, program.Token2022)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), f.ledger.TokenAccount(custody).Amount)
	assert.Nil(t, report.Distribution)
}

func TestRunCycle_SweepCustodySwapsWholeBalance(t *testing.T) {
	f := newFixture(t)
	f.opt.SweepCustody = true
	custody, err := token2022.AssociatedAddress(f.ledger.Payer(), f.mint, program.Token2022)
	require.NoError(t, err)
	// left over from an earlier cycle whose swap failed
	f.ledger.PutTokenAccount(custody, program.Token2022, f.mint, f.ledger.Payer(), 250_000, u64(0))

	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, []uint64{1_250_000}, f.aggregator.amounts)
}

func TestRunCycle_HarvestFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailSend = func(ins []solana.Instruction) error {
		if ins[0].ProgramID().Equals(program.Token2022) {
			return errors.New("confirmation timed out")
		}
		return nil
	}
	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomeFailure, report.Outcome)
	assert.Equal(t, Harvesting, report.State)
	assert.Empty(t, f.aggregator.amounts)
	withheld, _ := f.ledger.TokenAccount(f.source).Withheld()
	assert.Equal(t, uint64(1_000_000), withheld)
}

func TestRunCycle_EarlyExits(t *testing.T) {
	t.Run("check only", func(t *testing.T) {
		f := newFixture(t)
		f.opt.CheckOnly = true
		report := f.keeper().RunCycle(context.Background())
		assert.Equal(t, OutcomeIdle, report.Outcome)
		assert.Equal(t, 1, report.Scan.HarvestableCount)
		assert.Empty(t, f.ledger.Sent)
	})
	t.Run("plain mint", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.PutMint(f.mint, program.Token, 6, nil)
		report := f.keeper().RunCycle(context.Background())
		assert.Equal(t, OutcomeIdle, report.Outcome)
		assert.Equal(t, Scanning, report.State)
		assert.Empty(t, f.ledger.Sent)
	})
	t.Run("below threshold", func(t *testing.T) {
		f := newFixture(t)
		f.opt.Threshold = 1_000_000
		report := f.keeper().RunCycle(context.Background())
		assert.Equal(t, OutcomeIdle, report.Outcome)
		assert.Empty(t, f.ledger.Sent)
	})
	t.Run("missing mint", func(t *testing.T) {
		f := newFixture(t)
		f.opt.Mint = newKey()
		report := f.keeper().RunCycle(context.Background())
		assert.Equal(t, OutcomeFailure, report.Outcome)
		assert.Error(t, report.Err)
	})
	t.Run("harvest only", func(t *testing.T) {
		f := newFixture(t)
		f.opt.Swap = false
		report := f.keeper().RunCycle(context.Background())
		assert.Equal(t, OutcomeSuccess, report.Outcome)
		assert.Equal(t, Harvesting, report.State)
		assert.Empty(t, f.aggregator.amounts)
	})
}

func TestRunCycle_TestDistribution(t *testing.T) {
	f := newFixture(t)
	f.opt.Threshold = 1_000_000
	f.opt.TestDistribution = true
	f.opt.TestAmount = decimal.RequireFromString("0.002")

	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.True(t, report.TestDistribution)
	assert.Equal(t, uint64(50_000), f.ledger.Lamports(f.a))
	assert.Equal(t, uint64(50_000), f.ledger.Lamports(f.b))
	assert.Nil(t, report.Harvest)
}

func TestRunCycle_TokenDistribution(t *testing.T) {
	f := newFixture(t)
	f.opt.DistributeAsset = config.AssetToken
	f.opt.Recipients[0].Percent = decimal.NewFromInt(60)
	f.opt.Recipients[1].Percent = decimal.NewFromInt(40)

	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Nil(t, report.Swap)
	assert.Empty(t, f.aggregator.amounts)

	ataA, err := token2022.AssociatedAddress(f.a, f.mint, program.Token2022)
	require.NoError(t, err)
	ataB, err := token2022.AssociatedAddress(f.b, f.mint, program.Token2022)
	require.NoError(t, err)
	assert.Equal(t, uint64(600_000), f.ledger.TokenAccount(ataA).Amount)
	assert.Equal(t, uint64(400_000), f.ledger.TokenAccount(ataB).Amount)
}

func TestRunCycle_DistributionFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailSend = func(ins []solana.Instruction) error {
		for _, meta := range ins[0].Accounts() {
			if meta.PublicKey.Equals(f.a) {
				return errors.New("account in use")
			}
		}
		return nil
	}
	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomePartial, report.Outcome)
	require.Len(t, report.Distribution.Paid, 1)
	assert.Equal(t, f.b, report.Distribution.Paid[0].Recipient.Address)
	assert.Contains(t, report.Summary(), "1 paid, 0 skipped, 1 failed")
}

func TestRunCycle_LowBalanceWarning(t *testing.T) {
	f := newFixture(t)
	f.opt.CheckOnly = true
	f.opt.MinBalance = walletLamports + 1

	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomeIdle, report.Outcome)
	assert.True(t, report.LowBalance)
	assert.Equal(t, walletLamports, report.Balance)
	assert.Contains(t, report.Summary(), "low balance: 10 SOL")

	f.opt.MinBalance = walletLamports
	assert.False(t, f.keeper().RunCycle(context.Background()).LowBalance)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Mint = newKey()
	cfg.MinBalance = decimal.RequireFromString("0.05")
	cfg.Recipients = []*config.Recipient{{Label: "team", Address: newKey(), Percent: decimal.NewFromInt(100)}}
	opt := OptionsFromConfig(cfg)
	assert.Equal(t, uint64(50_000_000), opt.MinBalance)
	assert.Equal(t, cfg.Interval.Duration, opt.Interval)
	require.Len(t, opt.Recipients, 1)
	assert.Equal(t, "team", opt.Recipients[0].Label)
}

func TestRunCycle_NoShareReachesOneUnit(t *testing.T) {
	f := newFixture(t)
	f.aggregator.out = 20 // 2.5% of 20 lamports is half a lamport

	report := f.keeper().RunCycle(context.Background())
	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.Equal(t, Distributing, report.State)
	require.NotNil(t, report.Distribution)
	assert.False(t, report.Distribution.Success)
	assert.Empty(t, report.Distribution.Paid)
	assert.Len(t, report.Distribution.Skipped, 2)
	assert.ErrorContains(t, report.Err, "no recipient share reached one unit")
	assert.Zero(t, f.ledger.Lamports(f.a))
	assert.Zero(t, f.ledger.Lamports(f.b))
}
