package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "token_fee_harvester_build_info",
			Help: "Build information of the token fee harvester",
		},
		[]string{"version", "commit", "date"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_fee_harvester_cycles_total",
			Help: "Total number of harvest cycles by outcome",
		},
		[]string{"outcome"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "token_fee_harvester_cycle_duration_seconds",
			Help:    "Duration of harvest cycles",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4.3 minutes
		},
	)

	HarvestableAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "token_fee_harvester_harvestable_accounts",
			Help: "Harvestable accounts found by the last scan",
		},
	)

	WithheldTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "token_fee_harvester_withheld_base_units",
			Help: "Withheld fees across all token accounts at the last scan",
		},
	)

	WalletBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "token_fee_harvester_wallet_balance_lamports",
			Help: "Authority wallet balance at the start of the last cycle",
		},
	)

	HarvestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_fee_harvester_harvested_base_units_total",
			Help: "Withheld fees moved into custody",
		},
	)

	SwappedLamportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_fee_harvester_swapped_lamports_total",
			Help: "Quoted lamports received from swaps",
		},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_fee_harvester_distribution_transfers_total",
			Help: "Distribution transfers by status",
		},
		[]string{"status"},
	)

	StepErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_fee_harvester_step_errors_total",
			Help: "Cycle step failures",
		},
		[]string{"step"},
	)
)
