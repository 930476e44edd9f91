package socket

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpoint(t *testing.T) {
	endpoint, err := NewEndpoint("192.168.1.20", 4242)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20:4242", endpoint.String())

	sa := endpoint.Sockaddr()
	assert.Equal(t, 4242, sa.Port)
	assert.Equal(t, [4]byte{192, 168, 1, 20}, sa.Addr)
}

func TestNewEndpointRejectsInvalidAddresses(t *testing.T) {
	_, err := NewEndpoint("not-an-address", 1)
	require.Error(t, err)

	_, err = NewEndpoint("2001:db8::1", 1)
	require.Error(t, err)
}

func TestEndpointUpdate(t *testing.T) {
	endpoint := &Endpoint{}

	err := endpoint.Update(&syscall.SockaddrInet4{
		Port: 9000,
		Addr: [4]byte{127, 0, 0, 1},
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", endpoint.Address)
	assert.Equal(t, uint16(9000), endpoint.Port)
	assert.Equal(t, 9000, endpoint.Sockaddr().Port)
}

func TestEndpointUpdateRejectsOtherFamilies(t *testing.T) {
	endpoint := &Endpoint{}

	require.Error(t, endpoint.Update(nil))
	require.Error(t, endpoint.Update(&syscall.SockaddrInet6{}))
}
