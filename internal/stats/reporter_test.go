package stats

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReportReadsKernelStatistics(t *testing.T) {
	if _, err := os.Stat("/proc/net/udp"); err != nil {
		t.Skipf("procfs not available: %v", err)
	}

	// Bind a port so the kernel table has a line to match.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	reporter, err := NewReporter(port, time.Second)
	require.NoError(t, err)

	require.NoError(t, reporter.report())
}

func TestRunStopsWhenContextDone(t *testing.T) {
	if _, err := os.Stat("/proc/net/udp"); err != nil {
		t.Skipf("procfs not available: %v", err)
	}

	reporter, err := NewReporter(1, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Run reports once, then observes the cancelled context instead of
	// waiting out the interval.
	start := time.Now()
	require.NoError(t, reporter.Run(ctx))
	require.Less(t, time.Since(start), time.Second)
}
