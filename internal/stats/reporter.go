// Package stats reports kernel-side statistics for a bound UDP port, read
// from /proc/net/udp. Queue lengths and drop counts are the only visibility
// into datagrams the kernel discarded before the socket could receive them.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"
)

const defaultInterval = 30 * time.Second

type Reporter struct {
	fs       procfs.FS
	port     uint16
	interval time.Duration
}

// NewReporter creates a reporter for the UDP socket bound to port. Interval
// zero means the default of 30 seconds.
func NewReporter(port uint16, interval time.Duration) (*Reporter, error) {
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Reporter{
		fs:       fs,
		port:     port,
		interval: interval,
	}, nil
}

// Run reports statistics once per interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		if err := r.report(); err != nil {
			return fmt.Errorf("reporting socket statistics: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.interval):
		}
	}
}

func (r *Reporter) report() error {
	sockets, err := r.fs.NetUDP()
	if err != nil {
		return fmt.Errorf("reading /proc/net/udp: %w", err)
	}

	for _, line := range sockets {
		if uint16(line.LocalPort) != r.port {
			continue
		}

		entry := log.WithFields(log.Fields{
			"port":     r.port,
			"rx_queue": line.RxQueue,
			"tx_queue": line.TxQueue,
		})
		if line.Drops != nil {
			entry = entry.WithField("drops", *line.Drops)
		}
		entry.Info("UDP socket statistics")
	}
	return nil
}
