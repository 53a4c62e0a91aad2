package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/egaotan/token-fee-harvester/scanner"
	"github.com/egaotan/token-fee-harvester/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Account struct {
	Address  string `json:"address"`
	Balance  string `json:"balance"`
	Withheld string `json:"withheld"`
}

type ScanInfo struct {
	Mint             string     `json:"mint"`
	Program          string     `json:"program"`
	Threshold        uint64     `json:"threshold"`
	TotalAccounts    int        `json:"total_accounts"`
	TotalBalance     string     `json:"total_balance"`
	TotalWithheld    string     `json:"total_withheld"`
	HarvestableCount int        `json:"harvestable_count"`
	HarvestableSum   string     `json:"harvestable_sum"`
	DecodeFailures   int        `json:"decode_failures"`
	Top              []*Account `json:"top"`
}

type CycleInfo struct {
	Id           uint64    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	State        State     `json:"state"`
	Outcome      Outcome   `json:"outcome"`
	Harvested    uint64    `json:"harvested"`
	Accounts     int       `json:"accounts"`
	SwapOut      uint64    `json:"swap_out"`
	Paid         int       `json:"paid"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	Error        string    `json:"error,omitempty"`
	Summary      string    `json:"summary"`
	TestTransfer bool      `json:"test_distribution"`
}

type StatusInfo struct {
	Payer  string     `json:"payer"`
	Mint   string     `json:"mint"`
	Cycles uint64     `json:"cycles"`
	Last   *CycleInfo `json:"last"`
}

func buildScanInfo(report *scanner.Report) *ScanInfo {
	info := &ScanInfo{
		Mint:             report.Mint.String(),
		Program:          report.Kind.String(),
		Threshold:        report.Threshold,
		TotalAccounts:    report.TotalAccounts,
		TotalBalance:     utils.AmountUi(report.TotalBalance, report.Decimals).String(),
		TotalWithheld:    utils.AmountUi(report.TotalWithheld, report.Decimals).String(),
		HarvestableCount: report.HarvestableCount,
		HarvestableSum:   utils.AmountUi(report.HarvestableSum, report.Decimals).String(),
		DecodeFailures:   report.DecodeFailures,
		Top:              make([]*Account, 0, 5),
	}
	for _, entry := range report.Top(5) {
		info.Top = append(info.Top, &Account{
			Address:  entry.Address.String(),
			Balance:  utils.AmountUi(entry.Balance, report.Decimals).String(),
			Withheld: utils.AmountUi(entry.Withheld, report.Decimals).String(),
		})
	}
	return info
}

func buildCycleInfo(report *CycleReport) *CycleInfo {
	if report == nil {
		return nil
	}
	info := &CycleInfo{
		Id:           report.Id,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		State:        report.State,
		Outcome:      report.Outcome,
		Summary:      report.Summary(),
		TestTransfer: report.TestDistribution,
	}
	if report.Harvest != nil {
		info.Harvested = report.Harvest.TotalHarvested
		info.Accounts = report.Harvest.AccountCount
	}
	if report.Swap != nil {
		info.SwapOut = report.Swap.AmountReceived
	}
	if report.Distribution != nil {
		info.Paid = len(report.Distribution.Paid)
		info.Failed = len(report.Distribution.Failed)
		info.Skipped = len(report.Distribution.Skipped)
	}
	if report.Err != nil {
		info.Error = report.Err.Error()
	}
	return info
}

// Server exposes the keeper status over HTTP.
type Server struct {
	keeper     *Keeper
	listen     string
	httpServer *http.Server
	logger     *zap.SugaredLogger
}

func NewServer(keeper *Keeper, listen string, logger *zap.Logger) *Server {
	return &Server{
		keeper: keeper,
		listen: listen,
		logger: logger.Named("rpc").Sugar(),
	}
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	g := router.Group("/api")
	g.GET("/status", s.getStatus)
	g.GET("/scan", s.getScan)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:    s.listen,
		Handler: s.Handler(),
	}
	s.logger.Infof("start rpc server on %s......", s.listen)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("ListenAndServe: %v", err)
		}
	}()
}

func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warnf("rpc server shutdown: %v", err)
	}
	s.logger.Infof("rpc server has stopped......")
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, &StatusInfo{
		Payer:  s.keeper.ledger.Payer().String(),
		Mint:   s.keeper.opt.Mint.String(),
		Cycles: s.keeper.Cycles(),
		Last:   buildCycleInfo(s.keeper.Last()),
	})
}

func (s *Server) getScan(c *gin.Context) {
	report, err := s.keeper.Scan(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, buildScanInfo(report))
}
