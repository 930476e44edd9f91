// Package socket implements a UDP/IPv4 datagram socket that can act as a
// client, a server, or both. A socket owns exactly one descriptor for its
// lifetime; Send and Receive operate on the calling goroutine, while
// StartReceiving hands the descriptor to a background worker that dispatches
// incoming datagrams to a callback and sends the callback's optional reply
// back to the sender.
//
// The receive timeout is a property of the shared descriptor: Send sets it
// to its ResponseTimeout even when no response is awaited. A foreground
// Send-with-wait racing an active receive loop will therefore fight over the
// timeout — serialize such sends against the loop, or use separate socket
// instances for the client and server roles.
package socket

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/edgelink-net/udplink/pkg/worker"
	"github.com/sirupsen/logrus"
)

// DefaultResponseTimeout applies when a SendConfig does not set one.
const DefaultResponseTimeout = 500 * time.Millisecond

// receiveBackoff is how long the server loop sleeps after a failed receive
// before trying again, so a persistently failing descriptor does not busy
// spin.
const receiveBackoff = time.Millisecond

// A Reply is the tagged result of a ReceiveCallback: either nothing, or a
// payload to send back to the datagram's origin. A present-but-empty payload
// is sent as a zero-byte datagram.
type Reply struct {
	send    bool
	payload []byte
}

// NoReply indicates that the server should not answer the datagram.
func NoReply() Reply {
	return Reply{}
}

// ReplyWith indicates that payload should be sent back to the origin.
func ReplyWith(payload []byte) Reply {
	return Reply{send: true, payload: payload}
}

// Payload returns the reply payload and whether one is present.
func (r Reply) Payload() ([]byte, bool) {
	return r.payload, r.send
}

// A ReceiveCallback handles one datagram received by the server loop. It
// runs on the worker goroutine and must not block indefinitely.
type ReceiveCallback func(data []byte, sender Endpoint) Reply

// A ResponseCallback is handed the response received after a Send that
// waited for one. It runs synchronously on the sending goroutine.
type ResponseCallback func(data []byte)

type Config struct {
	// LogLevel controls the verbosity of the socket's diagnostics.
	LogLevel logrus.Level
}

type ReceiveConfig struct {
	// Port to bind to.
	Port uint16
	// BufferSize is the maximum datagram size the server loop receives.
	BufferSize int
	// IsMulticastEndpoint enables multicast reception.
	IsMulticastEndpoint bool
	// MulticastGroup is the group to join; required if IsMulticastEndpoint.
	MulticastGroup string
	// OnReceive handles each received datagram.
	OnReceive ReceiveCallback
}

type SendConfig struct {
	// IPAddress and Port identify the destination.
	IPAddress string
	Port      uint16
	// IsMulticastEndpoint configures the descriptor for multicast
	// transmission before sending.
	IsMulticastEndpoint bool
	// WaitForResponse blocks until one datagram arrives back, or the
	// response timeout elapses. For a multicast destination only the first
	// reply is collected.
	WaitForResponse bool
	// ResponseSize is the maximum response size to accept. Waiting with
	// ResponseSize zero is a logged misconfiguration; the send still
	// succeeds and no wait happens.
	ResponseSize int
	// OnResponse, if set, is handed the response data.
	OnResponse ResponseCallback
	// ResponseTimeout bounds the wait; zero means DefaultResponseTimeout.
	ResponseTimeout time.Duration
}

// A UDPSocket owns one UDP descriptor, created at construction and closed
// exactly once by Close. The zero value is not usable; use NewUDPSocket.
type UDPSocket struct {
	fd  int
	log *logrus.Entry

	mu           sync.Mutex // guards serverWorker and onReceive
	serverWorker *worker.Worker
	onReceive    ReceiveCallback
}

// NewUDPSocket allocates the UDP descriptor and enables address reuse.
func NewUDPSocket(config Config) (*UDPSocket, error) {
	logger := logrus.New()
	logger.SetLevel(config.LogLevel)
	log := logger.WithField("component", "udpsocket")

	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_DGRAM, syscall.IPPROTO_IP)
	if err != nil {
		log.WithError(err).Error("Cannot create socket")
		return nil, fmt.Errorf("%w: %v", ErrSocketCreation, err)
	}
	if err := enableReuse(fd); err != nil {
		log.WithError(err).Error("Cannot enable reuse")
		syscall.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrSocketOption, err)
	}

	return &UDPSocket{
		fd:  fd,
		log: log,
	}, nil
}

func (s *UDPSocket) valid() bool {
	return s.fd >= 0
}

// Close shuts the descriptor down in both directions, stops the server
// worker if one is running, and closes the descriptor. It is idempotent.
func (s *UDPSocket) Close() error {
	if !s.valid() {
		return nil
	}

	// Shutdown first: it forces a receive blocked on the descriptor to
	// return, so the worker can observe its cancelled context and exit.
	if err := syscall.Shutdown(s.fd, syscall.SHUT_RDWR); err != nil {
		s.log.WithError(err).Debug("Shutdown failed")
	}

	s.mu.Lock()
	w := s.serverWorker
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}

	if err := syscall.Close(s.fd); err != nil {
		s.log.WithError(err).Error("Closing descriptor")
		s.fd = -1
		return fmt.Errorf("close socket: %w", err)
	}
	s.fd = -1
	s.log.Info("Closed socket")
	return nil
}

// LocalPort returns the port the descriptor is bound to. After an unbound
// socket's first send, this is the ephemeral port the kernel assigned.
func (s *UDPSocket) LocalPort() (uint16, error) {
	if !s.valid() {
		return 0, ErrSocketInvalid
	}
	sa, err := syscall.Getsockname(s.fd)
	if err != nil {
		return 0, fmt.Errorf("%w: getsockname: %v", ErrSocketOption, err)
	}
	inet4, ok := sa.(*syscall.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected sockaddr type %T", ErrSocketOption, sa)
	}
	return uint16(inet4.Port), nil
}

// Send transmits data to the endpoint in config as one datagram. A zero-byte
// payload is forwarded as-is. If config requests a response, Send blocks
// until the first response datagram arrives or the response timeout elapses;
// a transmission failure reports ErrSend, a missed response ErrReceive.
//
// Note that the response timeout is configured on the descriptor before
// sending, whether or not a response is awaited, and remains in effect
// afterwards.
func (s *UDPSocket) Send(data []byte, config SendConfig) error {
	if !s.valid() {
		s.log.Error("Socket invalid, cannot send")
		return ErrSocketInvalid
	}

	if config.IsMulticastEndpoint {
		if err := makeMulticast(s.fd); err != nil {
			s.log.WithError(err).Error("Cannot make multicast")
			return fmt.Errorf("%w: %v", ErrMulticastConfig, err)
		}
	}

	timeout := config.ResponseTimeout
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	if err := setReceiveTimeout(s.fd, timeout); err != nil {
		s.log.WithError(err).Errorf("Could not set receive timeout to %v", timeout)
		return fmt.Errorf("%w: %v", ErrTimeoutConfig, err)
	}

	destination, err := NewEndpoint(config.IPAddress, config.Port)
	if err != nil {
		s.log.WithError(err).Error("Resolving destination")
		return fmt.Errorf("%w: %v", ErrSend, err)
	}

	s.log.WithField("destination", destination.String()).Infof("Sending %d bytes", len(data))
	if err := syscall.Sendto(s.fd, data, 0, destination.Sockaddr()); err != nil {
		s.log.WithError(err).Error("Error occurred during sending")
		return fmt.Errorf("%w: sendto %s: %v", ErrSend, destination, err)
	}

	if !config.WaitForResponse {
		return nil
	}
	if config.ResponseSize == 0 {
		s.log.Warn("Response requested, but ResponseSize is 0, not waiting for response")
		return nil
	}

	s.log.Debug("Waiting for response")
	response, _, err := s.Receive(config.ResponseSize)
	if err != nil {
		s.log.WithError(err).Warn("Could not get response")
		return err
	}
	s.log.Debugf("Got %d bytes of response", len(response))
	if config.OnResponse != nil {
		config.OnResponse(response)
	}
	return nil
}

// Receive performs exactly one blocking receive of at most maxBytes,
// subject to whatever receive timeout was last configured on the
// descriptor. It returns the received bytes, truncated to the length the OS
// reported, and the sender's endpoint.
//
// The buffer is allocated per call so that worst-case memory use follows
// the caller's size choice instead of a high-water mark.
func (s *UDPSocket) Receive(maxBytes int) ([]byte, *Endpoint, error) {
	if !s.valid() {
		s.log.Error("Socket invalid, cannot receive")
		return nil, nil, ErrSocketInvalid
	}

	buffer := make([]byte, maxBytes)
	s.log.Debugf("Receiving up to %d bytes", maxBytes)
	n, from, err := syscall.Recvfrom(s.fd, buffer, 0)
	if err != nil {
		s.log.WithError(err).Error("Receive failed")
		return nil, nil, fmt.Errorf("%w: %v", ErrReceive, err)
	}

	sender := &Endpoint{}
	if err := sender.Update(from); err != nil {
		// A nil sockaddr means the descriptor was shut down under us.
		s.log.WithError(err).Error("Reading sender address")
		return nil, nil, fmt.Errorf("%w: %v", ErrReceive, err)
	}

	s.log.Debugf("Received %d bytes from %s", n, sender)
	return buffer[:n], sender, nil
}

// StartReceiving binds the socket to the wildcard address on the configured
// port, optionally joins a multicast group, and launches a background
// worker that dispatches every received datagram to the configured
// callback. At most one receive configuration may be active per socket; the
// worker runs until the socket is closed.
//
// After a multicast configuration failure the socket remains bound but
// partially configured; recreate the socket instead of retrying.
func (s *UDPSocket) StartReceiving(config ReceiveConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serverWorker != nil && s.serverWorker.IsStarted() {
		s.log.Error("Server is already receiving")
		return ErrAlreadyReceiving
	}
	if !s.valid() {
		s.log.Error("Socket invalid, cannot start receiving")
		return ErrSocketInvalid
	}

	s.onReceive = config.OnReceive

	if err := syscall.Bind(s.fd, &syscall.SockaddrInet4{Port: int(config.Port)}); err != nil {
		s.log.WithError(err).Errorf("Unable to bind to port %d", config.Port)
		return fmt.Errorf("%w: port %d: %v", ErrBind, config.Port, err)
	}

	if config.IsMulticastEndpoint {
		if err := makeMulticast(s.fd); err != nil {
			s.log.WithError(err).Error("Unable to make bound socket multicast")
			return fmt.Errorf("%w: %v", ErrMulticastConfig, err)
		}
		if err := joinMulticastGroup(s.fd, config.MulticastGroup); err != nil {
			s.log.WithError(err).Error("Unable to add multicast group to bound socket")
			return fmt.Errorf("%w: %v", ErrMulticastConfig, err)
		}
	}

	bufferSize := config.BufferSize
	s.serverWorker = worker.New(worker.Config{
		Name: "udp-server",
		Callback: func(ctx context.Context) {
			s.serveOnce(ctx, bufferSize)
		},
	})
	if err := s.serverWorker.Start(); err != nil {
		return fmt.Errorf("starting server worker: %w", err)
	}
	return nil
}

// serveOnce is one iteration of the server loop: receive, dispatch, and
// optionally reply. Receive failures only cause a brief backoff — the
// server keeps running, including after a failed reply.
func (s *UDPSocket) serveOnce(ctx context.Context, bufferSize int) {
	data, sender, err := s.Receive(bufferSize)
	if err != nil {
		worker.Sleep(ctx, receiveBackoff)
		return
	}

	if s.onReceive == nil {
		s.log.Error("Server receive callback is not set")
		return
	}

	reply := s.onReceive(data, *sender)
	payload, ok := reply.Payload()
	if !ok {
		return
	}

	s.log.Infof("Responding to %s with %d bytes", sender, len(payload))
	if err := syscall.Sendto(s.fd, payload, 0, sender.Sockaddr()); err != nil {
		s.log.WithError(err).Error("Error occurred responding")
	}
}
