package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/egaotan/token-fee-harvester/distributor"
	"github.com/egaotan/token-fee-harvester/harvester"
	"github.com/egaotan/token-fee-harvester/program"
	"github.com/egaotan/token-fee-harvester/scanner"
	"github.com/egaotan/token-fee-harvester/swapper"
	"github.com/egaotan/token-fee-harvester/utils"
)

type State string

const (
	Idle         State = "idle"
	Scanning     State = "scanning"
	Harvesting   State = "harvesting"
	Swapping     State = "swapping"
	Distributing State = "distributing"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
	// OutcomeIdle means the cycle found nothing to do.
	OutcomeIdle Outcome = "idle"
)

// CycleReport is the outcome of one scan, harvest, swap and distribute run.
// State is the furthest state the cycle reached.
type CycleReport struct {
	Id           uint64
	StartedAt    time.Time
	FinishedAt   time.Time
	State        State
	Outcome      Outcome
	Scan         *scanner.Report
	Harvest      *harvester.Result
	Swap         *swapper.Result
	Distribution *distributor.Result
	// TestDistribution is set when the distribution used the configured
	// test amount instead of harvested fees.
	TestDistribution bool
	// Balance is the authority wallet balance in lamports when the cycle
	// started.
	Balance    uint64
	LowBalance bool
	Err        error
}

func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders the report as a few lines of text for logs and webhooks.
func (r *CycleReport) Summary() string {
	items := make([]string, 0, 8)
	items = append(items, fmt.Sprintf("harvest cycle %d: %s;", r.Id, r.Outcome))
	items = append(items, fmt.Sprintf("time: %s (%s);", r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration().Round(time.Millisecond)))
	items = append(items, fmt.Sprintf("reached: %s;", r.State))
	if r.LowBalance {
		items = append(items, fmt.Sprintf("low balance: %s SOL;", utils.AmountUi(r.Balance, program.SOLDecimals)))
	}
	if r.Scan != nil {
		items = append(items, fmt.Sprintf("scan: %d accounts, %d harvestable, withheld %s;",
			r.Scan.TotalAccounts, r.Scan.HarvestableCount, utils.AmountUi(r.Scan.TotalWithheld, r.Scan.Decimals)))
	}
	if r.Harvest != nil && !r.Harvest.NothingToHarvest {
		decimals := uint8(0)
		if r.Scan != nil {
			decimals = r.Scan.Decimals
		}
		items = append(items, fmt.Sprintf("harvest: %s from %d accounts (%s);",
			utils.AmountUi(r.Harvest.TotalHarvested, decimals), r.Harvest.AccountCount, r.Harvest.Signature))
	}
	if r.Swap != nil {
		items = append(items, fmt.Sprintf("swap: ~%s SOL (%s);", utils.AmountUi(r.Swap.AmountReceived, program.SOLDecimals), r.Swap.Signature))
	}
	if r.Distribution != nil {
		items = append(items, fmt.Sprintf("distribution: %d paid, %d skipped, %d failed;",
			len(r.Distribution.Paid), len(r.Distribution.Skipped), len(r.Distribution.Failed)))
	}
	if r.Err != nil {
		items = append(items, fmt.Sprintf("error: %v;", r.Err))
	}
	return strings.Join(items, "\n")
}
