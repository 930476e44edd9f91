package socket

import (
	"fmt"
	"net"
	"syscall"
)

// An Endpoint describes one end of a datagram exchange: an IPv4 address and
// a port, together with the raw sockaddr handed to the kernel. The raw form
// is kept consistent with Address and Port at all times.
type Endpoint struct {
	Address string
	Port    uint16

	raw syscall.SockaddrInet4
}

// NewEndpoint builds an endpoint from an IPv4 address string and a port.
func NewEndpoint(address string, port uint16) (*Endpoint, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("could not parse address %q", address)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("address %q is not IPv4", address)
	}

	endpoint := &Endpoint{
		Address: address,
		Port:    port,
	}
	endpoint.raw.Port = int(port)
	copy(endpoint.raw.Addr[:], ip4)
	return endpoint, nil
}

// Sockaddr returns the cached kernel representation of the endpoint.
func (e *Endpoint) Sockaddr() *syscall.SockaddrInet4 {
	return &e.raw
}

// Update refreshes the endpoint from a sockaddr reported by the kernel,
// typically the sender of a just-received datagram.
func (e *Endpoint) Update(sa syscall.Sockaddr) error {
	inet4, ok := sa.(*syscall.SockaddrInet4)
	if !ok {
		return fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	e.raw = *inet4
	e.Address = net.IP(inet4.Addr[:]).String()
	e.Port = uint16(inet4.Port)
	return nil
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Address, e.Port)
}
