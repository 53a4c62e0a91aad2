package app

import (
	"context"
	"fmt"

	"github.com/egaotan/token-fee-harvester/backend"
	"github.com/egaotan/token-fee-harvester/config"
	"github.com/egaotan/token-fee-harvester/distributor"
	"github.com/egaotan/token-fee-harvester/jupiter"
	"github.com/egaotan/token-fee-harvester/networkdetect"
	"github.com/egaotan/token-fee-harvester/notify"
	"github.com/egaotan/token-fee-harvester/program"
	"github.com/egaotan/token-fee-harvester/utils"
	"go.uber.org/zap"
)

// App owns every long lived component of the process.
type App struct {
	ctx     context.Context
	config  *config.Config
	logger  *zap.SugaredLogger
	backend *backend.Backend
	keeper  *Keeper
	notify  *Notify
	server  *Server
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	rpc := cfg.Rpc
	if rpc == "" {
		nodes := make([]string, 0, len(cfg.Nodes))
		for _, node := range cfg.Nodes {
			if node.Usable {
				nodes = append(nodes, node.Rpc)
			}
		}
		best, rtt, err := networkdetect.NewDetector(logger).Fastest(ctx, nodes)
		if err != nil {
			return nil, err
		}
		logger.Sugar().Infof("using rpc node %s, rtt %s", best, rtt)
		rpc = best
	}
	wallet, err := backend.LoadWallet(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	b := backend.NewBackend(backend.Options{
		Rpc:            rpc,
		ConfirmTimeout: cfg.ConfirmTimeout.Duration,
	}, wallet, logger)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotifyUrl != "" {
		notifier = notify.NewWebhook(cfg.NotifyUrl)
	}
	n := NewNotify(ctx, notifier, logger)
	keeper := NewKeeper(OptionsFromConfig(cfg), b, jupiter.NewClient(cfg.JupiterUrl, 0), n, nil, logger)
	app := &App{
		ctx:     ctx,
		config:  cfg,
		logger:  logger.Named("app").Sugar(),
		backend: b,
		keeper:  keeper,
		notify:  n,
	}
	if cfg.Listen != "" {
		app.server = NewServer(keeper, cfg.Listen, logger)
	}
	return app, nil
}

// Service runs until ctx is done.
func (app *App) Service() error {
	app.Start()
	err := app.keeper.Run(app.ctx)
	app.Stop()
	return err
}

func (app *App) Start() {
	balance, err := app.backend.Balance(app.ctx, app.backend.Payer())
	if err != nil {
		app.logger.Warnf("read authority balance: %v", err)
	} else {
		app.logger.Infof("authority %s holds %s SOL", app.backend.Payer(), utils.AmountUi(balance, program.SOLDecimals))
	}
	app.logger.Infof("mint %s, threshold %d, interval %s, check_only %v, swap %v, distribute %v (%s), %d recipients",
		app.config.Mint, app.config.Threshold, app.config.Interval.Duration, app.config.CheckOnly,
		app.config.Swap, app.config.Distribute, app.config.DistributeAsset, len(app.config.Recipients))
	if sum := app.config.PercentSum(); len(app.config.Recipients) > 0 && !distributor.PercentsComplete(sum) {
		app.logger.Warnf("recipient percentages sum to %s", sum)
	}
	app.notify.Start()
	if app.server != nil {
		app.server.Start()
	}
	app.logger.Infof("harvester has started......")
}

func (app *App) Stop() {
	if app.server != nil {
		app.server.Stop()
	}
	app.notify.Stop()
	if err := app.backend.Close(); err != nil {
		app.logger.Warnf("close backend: %v", err)
	}
	app.logger.Infof("harvester has stopped......")
}

// Once runs a single cycle with the full start and stop sequence.
func (app *App) Once() error {
	app.Start()
	report := app.keeper.RunCycle(context.WithoutCancel(app.ctx))
	app.Stop()
	if report.Outcome == OutcomeFailure {
		return report.Err
	}
	return nil
}
