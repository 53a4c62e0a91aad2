package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/egaotan/token-fee-harvester/backend"
	"github.com/egaotan/token-fee-harvester/config"
	"github.com/egaotan/token-fee-harvester/distributor"
	"github.com/egaotan/token-fee-harvester/harvester"
	"github.com/egaotan/token-fee-harvester/metrics"
	"github.com/egaotan/token-fee-harvester/program"
	"github.com/egaotan/token-fee-harvester/scanner"
	"github.com/egaotan/token-fee-harvester/swapper"
	"github.com/egaotan/token-fee-harvester/token2022"
	"github.com/egaotan/token-fee-harvester/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Options struct {
	Mint                solana.PublicKey
	Threshold           uint64
	Interval            time.Duration
	SlippageBps         uint16
	PriorityFeeLamports uint64
	MaxHarvestAccounts  int
	// MinBalance is the wallet balance in lamports below which every cycle
	// raises a low balance warning.
	MinBalance uint64

	CheckOnly        bool
	TestDistribution bool
	// TestAmount is in SOL.
	TestAmount      decimal.Decimal
	Swap            bool
	Distribute      bool
	DistributeAsset string
	SweepCustody    bool

	Recipients []distributor.Recipient
}

func OptionsFromConfig(cfg *config.Config) *Options {
	opt := &Options{
		Mint:                cfg.Mint,
		Threshold:           cfg.Threshold,
		Interval:            cfg.Interval.Duration,
		SlippageBps:         cfg.SlippageBps,
		PriorityFeeLamports: cfg.PriorityFeeLamports,
		MaxHarvestAccounts:  cfg.MaxHarvestAccounts,
		CheckOnly:           cfg.CheckOnly,
		TestDistribution:    cfg.TestDistribution,
		TestAmount:          cfg.TestAmount,
		Swap:                cfg.Swap,
		Distribute:          cfg.Distribute,
		DistributeAsset:     cfg.DistributeAsset,
		SweepCustody:        cfg.SweepCustody,
	}
	if minBalance, ok := utils.ToBaseUnits(cfg.MinBalance, program.SOLDecimals); ok {
		opt.MinBalance = minBalance
	}
	for _, r := range cfg.Recipients {
		opt.Recipients = append(opt.Recipients, distributor.Recipient{
			Label:   r.Label,
			Address: r.Address,
			Percent: r.Percent,
		})
	}
	return opt
}

// Keeper runs harvest cycles one at a time. It keeps no state between
// cycles apart from the last report, which is only used for status output.
type Keeper struct {
	opt         *Options
	ledger      backend.Ledger
	scanner     *scanner.Scanner
	harvester   *harvester.Harvester
	swapper     *swapper.Swapper
	distributor *distributor.Distributor
	notify      *Notify
	clock       clockwork.Clock
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	cycles uint64
	last   *CycleReport
}

func NewKeeper(opt *Options, ledger backend.Ledger, aggregator swapper.Aggregator, notify *Notify, clock clockwork.Clock, logger *zap.Logger) *Keeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Keeper{
		opt:         opt,
		ledger:      ledger,
		scanner:     scanner.NewScanner(ledger, logger),
		harvester:   harvester.NewHarvester(ledger, opt.MaxHarvestAccounts, logger),
		swapper:     swapper.NewSwapper(ledger, aggregator, opt.PriorityFeeLamports, logger),
		distributor: distributor.NewDistributor(ledger, logger),
		notify:      notify,
		clock:       clock,
		logger:      logger.Named("keeper").Sugar(),
	}
}

// Scan runs a read only scan of the configured mint.
func (k *Keeper) Scan(ctx context.Context) (*scanner.Report, error) {
	return k.scanner.Scan(ctx, k.opt.Mint, k.opt.Threshold)
}

func (k *Keeper) Last() *CycleReport {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.last
}

func (k *Keeper) Cycles() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cycles
}

// RunCycle walks Idle, Scanning, Harvesting, Swapping, Distributing and
// back to Idle, stopping early whenever a stage leaves nothing to do or
// fails. It never panics past this call.
func (k *Keeper) RunCycle(ctx context.Context) (report *CycleReport) {
	k.mu.Lock()
	k.cycles++
	id := k.cycles
	k.mu.Unlock()

	report = &CycleReport{Id: id, StartedAt: k.clock.Now(), State: Idle}
	defer func() {
		if r := recover(); r != nil {
			report.Outcome = OutcomeFailure
			report.Err = fmt.Errorf("cycle panicked: %v", r)
		}
		report.FinishedAt = k.clock.Now()
		k.finish(report)
	}()

	k.cycle(ctx, report)
	return report
}

func (k *Keeper) cycle(ctx context.Context, report *CycleReport) {
	k.checkBalance(ctx, report)
	report.State = Scanning
	scan, err := k.scanner.Scan(ctx, k.opt.Mint, k.opt.Threshold)
	if err != nil {
		k.fail(report, err)
		return
	}
	report.Scan = scan
	k.logScan(scan)
	if k.opt.CheckOnly {
		report.Outcome = OutcomeIdle
		return
	}
	candidates := scan.Harvestable()
	if scan.Kind != program.FeeExtended || len(candidates) == 0 {
		k.logger.Infof("no harvestable accounts for %s", k.opt.Mint)
		k.testDistribution(ctx, report)
		return
	}

	report.State = Harvesting
	custody, err := k.harvester.EnsureCustody(ctx, k.opt.Mint)
	if err != nil {
		k.fail(report, err)
		return
	}
	harvest, err := k.harvester.Harvest(ctx, k.opt.Mint, custody, candidates)
	if err != nil {
		k.fail(report, err)
		return
	}
	report.Harvest = harvest
	if harvest.NothingToHarvest {
		report.Outcome = OutcomeIdle
		return
	}

	amount := harvest.TotalHarvested
	if k.opt.SweepCustody {
		if balance, err := k.custodyBalance(ctx, custody); err != nil {
			k.logger.Warnf("read custody balance failed, using harvested amount: %v", err)
		} else {
			amount = balance
		}
	}

	if k.opt.DistributeAsset == config.AssetToken {
		if !k.opt.Distribute {
			report.Outcome = OutcomeSuccess
			return
		}
		report.State = Distributing
		total := utils.AmountUi(amount, scan.Decimals)
		result, err := k.distributor.DistributeToken(ctx, k.opt.Mint, total, k.opt.Recipients)
		k.distributed(report, result, err)
		return
	}

	if !k.opt.Swap {
		report.Outcome = OutcomeSuccess
		return
	}
	report.State = Swapping
	swap, err := k.swapper.SwapToNative(ctx, k.opt.Mint, amount, k.opt.SlippageBps)
	if err != nil {
		// harvested fees stay in custody
		report.Outcome = OutcomePartial
		report.Err = err
		k.stepError(report.State)
		return
	}
	report.Swap = swap
	if !k.opt.Distribute {
		report.Outcome = OutcomeSuccess
		return
	}

	report.State = Distributing
	total := utils.AmountUi(swap.AmountReceived, program.SOLDecimals)
	result, err := k.distributor.DistributeNative(ctx, total, k.opt.Recipients)
	k.distributed(report, result, err)
}

func (k *Keeper) checkBalance(ctx context.Context, report *CycleReport) {
	balance, err := k.ledger.Balance(ctx, k.ledger.Payer())
	if err != nil {
		k.logger.Warnf("read authority balance: %v", err)
		return
	}
	report.Balance = balance
	metrics.WalletBalance.Set(float64(balance))
	if balance < k.opt.MinBalance {
		report.LowBalance = true
		k.logger.Warnf("authority balance %s SOL is below %s SOL",
			utils.AmountUi(balance, program.SOLDecimals), utils.AmountUi(k.opt.MinBalance, program.SOLDecimals))
	}
}

func (k *Keeper) testDistribution(ctx context.Context, report *CycleReport) {
	if !k.opt.TestDistribution {
		report.Outcome = OutcomeIdle
		return
	}
	k.logger.Infof("test distribution of %s SOL", k.opt.TestAmount)
	report.State = Distributing
	report.TestDistribution = true
	result, err := k.distributor.DistributeNative(ctx, k.opt.TestAmount, k.opt.Recipients)
	if err != nil {
		k.fail(report, err)
		return
	}
	report.Distribution = result
	switch {
	case result.Success && len(result.Failed) == 0:
		report.Outcome = OutcomeSuccess
	case result.Success:
		report.Outcome = OutcomePartial
	default:
		report.Outcome = OutcomeFailure
	}
}

// distributed settles a cycle whose harvest already succeeded, so the
// worst outcome left is partial.
func (k *Keeper) distributed(report *CycleReport, result *distributor.Result, err error) {
	if err != nil {
		report.Outcome = OutcomePartial
		report.Err = err
		k.stepError(report.State)
		return
	}
	report.Distribution = result
	if result.Success && len(result.Failed) == 0 {
		report.Outcome = OutcomeSuccess
		return
	}
	report.Outcome = OutcomePartial
	if len(result.Failed) > 0 {
		report.Err = fmt.Errorf("%d of %d transfers failed", len(result.Failed), len(k.opt.Recipients))
	} else {
		report.Err = errors.New("no recipient share reached one unit")
	}
}

func (k *Keeper) fail(report *CycleReport, err error) {
	report.Outcome = OutcomeFailure
	report.Err = err
	k.stepError(report.State)
}

func (k *Keeper) stepError(state State) {
	metrics.StepErrorsTotal.WithLabelValues(string(state)).Inc()
}

func (k *Keeper) custodyBalance(ctx context.Context, custody solana.PublicKey) (uint64, error) {
	account, err := k.ledger.Account(ctx, custody)
	if err != nil {
		return 0, err
	}
	decoded, err := token2022.DecodeAccount(account.Owner, account.Data)
	if err != nil {
		return 0, err
	}
	return decoded.Amount, nil
}

func (k *Keeper) logScan(scan *scanner.Report) {
	metrics.HarvestableAccounts.Set(float64(scan.HarvestableCount))
	metrics.WithheldTotal.Set(float64(scan.TotalWithheld))
	k.logger.Infof("scan %s (%s): %d accounts, balance %s, withheld %s, %d harvestable above %d holding %s, %d undecodable",
		scan.Mint, scan.Kind, scan.TotalAccounts,
		utils.AmountUi(scan.TotalBalance, scan.Decimals), utils.AmountUi(scan.TotalWithheld, scan.Decimals),
		scan.HarvestableCount, scan.Threshold, utils.AmountUi(scan.HarvestableSum, scan.Decimals), scan.DecodeFailures)
	for i, entry := range scan.Top(5) {
		k.logger.Infof("top %d: %s withheld %s balance %s", i+1, entry.Address,
			utils.AmountUi(entry.Withheld, scan.Decimals), utils.AmountUi(entry.Balance, scan.Decimals))
	}
}

func (k *Keeper) finish(report *CycleReport) {
	metrics.CyclesTotal.WithLabelValues(string(report.Outcome)).Inc()
	metrics.CycleDuration.Observe(report.Duration().Seconds())
	if report.Harvest != nil {
		metrics.HarvestedTotal.Add(float64(report.Harvest.TotalHarvested))
	}
	if report.Swap != nil {
		metrics.SwappedLamportsTotal.Add(float64(report.Swap.AmountReceived))
	}
	if report.Distribution != nil {
		metrics.TransfersTotal.WithLabelValues("paid").Add(float64(len(report.Distribution.Paid)))
		metrics.TransfersTotal.WithLabelValues("skipped").Add(float64(len(report.Distribution.Skipped)))
		metrics.TransfersTotal.WithLabelValues("failed").Add(float64(len(report.Distribution.Failed)))
	}

	switch report.Outcome {
	case OutcomeFailure:
		k.logger.Errorf("cycle %d failed in %s: %v", report.Id, report.State, report.Err)
	case OutcomePartial:
		k.logger.Warnf("cycle %d partially done in %s: %v", report.Id, report.State, report.Err)
	default:
		k.logger.Infof("cycle %d finished: %s", report.Id, report.Outcome)
	}

	k.mu.Lock()
	k.last = report
	k.mu.Unlock()
	if k.notify != nil && (report.Outcome != OutcomeIdle || report.LowBalance) {
		k.notify.Commit(report)
	}
}
