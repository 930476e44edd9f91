package socket

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// multicastTTL keeps multicast traffic on the local network segment.
	multicastTTL = 1
	// multicastLoopback lets sockets on the sending host receive their own
	// multicast datagrams, which discovery on a single machine relies on.
	multicastLoopback = 1
)

// enableReuse allows the process to rebind the address quickly after a
// restart.
func enableReuse(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	return nil
}

// setReceiveTimeout bounds how long a blocking receive on fd may wait. The
// timeout is a property of the descriptor and stays in effect until changed.
func setReceiveTimeout(fd int, timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set SO_RCVTIMEO to %v: %w", timeout, err)
	}
	return nil
}

// makeMulticast configures the descriptor for multicast transmission.
func makeMulticast(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, multicastTTL); err != nil {
		return fmt.Errorf("set IP_MULTICAST_TTL: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, multicastLoopback); err != nil {
		return fmt.Errorf("set IP_MULTICAST_LOOP: %w", err)
	}
	return nil
}

// joinMulticastGroup subscribes the bound descriptor to the given group.
// The local interface is left as INADDR_ANY, so the kernel picks it from the
// routing table.
func joinMulticastGroup(fd int, group string) error {
	ip := net.ParseIP(group)
	if ip == nil {
		return fmt.Errorf("could not parse multicast group %q", group)
	}
	ip4 := ip.To4()
	if ip4 == nil || !ip4.IsMulticast() {
		return fmt.Errorf("%q is not an IPv4 multicast group", group)
	}

	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], ip4)
	if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
		return fmt.Errorf("join group %s: %w", group, err)
	}
	return nil
}
