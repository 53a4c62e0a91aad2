package app

import (
	"context"
	"sync"
	"time"

	"github.com/egaotan/token-fee-harvester/notify"
	"go.uber.org/zap"
)

// Notify delivers cycle summaries in the background so a slow webhook
// never delays the next cycle.
type Notify struct {
	ctx      context.Context
	wg       sync.WaitGroup
	data     chan *CycleReport
	notifier notify.Notifier
	logger   *zap.SugaredLogger
}

func NewNotify(ctx context.Context, notifier notify.Notifier, logger *zap.Logger) *Notify {
	return &Notify{
		ctx:      ctx,
		data:     make(chan *CycleReport, 32),
		notifier: notifier,
		logger:   logger.Named("notify").Sugar(),
	}
}

func (n *Notify) Start() {
	n.wg.Add(1)
	go n.listen()
}

// Stop delivers what is already queued and waits for the listener.
func (n *Notify) Stop() {
	close(n.data)
	n.wg.Wait()
}

// Commit queues report; it drops the report when the queue is full.
func (n *Notify) Commit(report *CycleReport) {
	select {
	case n.data <- report:
	default:
		n.logger.Warnf("notify queue is full, dropping cycle %d", report.Id)
	}
}

func (n *Notify) listen() {
	defer n.wg.Done()
	for report := range n.data {
		n.tryNotify(report)
	}
}

func (n *Notify) tryNotify(report *CycleReport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(n.ctx), 15*time.Second)
	defer cancel()
	if err := n.notifier.Notify(ctx, report.Summary()); err != nil {
		n.logger.Warnf("notify cycle %d: %v", report.Id, err)
	}
}
