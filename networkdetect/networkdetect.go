package networkdetect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-ping/ping"
	"go.uber.org/zap"
)

var ErrNoReachableNode = errors.New("no reachable rpc node")

// Probe returns the average round trip to host.
type Probe func(ctx context.Context, host string) (time.Duration, error)

type Detector struct {
	probe  Probe
	logger *zap.SugaredLogger
}

func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		probe:  PingProbe(3, 5*time.Second),
		logger: logger.Named("network").Sugar(),
	}
}

func NewDetectorWithProbe(probe Probe, logger *zap.Logger) *Detector {
	return &Detector{
		probe:  probe,
		logger: logger.Named("network").Sugar(),
	}
}

// PingProbe sends count ICMP echoes and reports the average rtt.
func PingProbe(count int, timeout time.Duration) Probe {
	return func(ctx context.Context, host string) (time.Duration, error) {
		pinger, err := ping.NewPinger(host)
		if err != nil {
			return 0, err
		}
		pinger.Count = count
		pinger.Timeout = timeout
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				pinger.Stop()
			case <-done:
			}
		}()
		if err := pinger.Run(); err != nil {
			return 0, err
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return 0, fmt.Errorf("%s: no reply", host)
		}
		return stats.AvgRtt, nil
	}
}

// Host extracts the bare host name of an rpc url.
func Host(rpc string) (string, error) {
	u, err := url.Parse(rpc)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("rpc url %q has no host", rpc)
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		host = h
	}
	return host, nil
}

// Fastest probes every rpc and returns the one with the lowest rtt.
// Nodes that cannot be probed are skipped.
func (d *Detector) Fastest(ctx context.Context, rpcs []string) (string, time.Duration, error) {
	best, bestRtt := "", time.Duration(0)
	for _, rpc := range rpcs {
		host, err := Host(rpc)
		if err != nil {
			d.logger.Warnf("skip node %s: %v", rpc, err)
			continue
		}
		rtt, err := d.probe(ctx, host)
		if err != nil {
			d.logger.Warnf("ping %s failed: %v", host, err)
			continue
		}
		d.logger.Infof("ping %s: %s", host, rtt)
		if best == "" || rtt < bestRtt {
			best, bestRtt = rpc, rtt
		}
	}
	if best == "" {
		return "", 0, ErrNoReachableNode
	}
	return best, bestRtt, nil
}
