// Package discovery implements multicast peer discovery on top of the
// datagram socket. A Responder joins the discovery group and answers probe
// datagrams with an announcement carrying its identity; a Prober multicasts
// a probe and records whoever answers first.
package discovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgelink-net/udplink/pkg/socket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultGroup is the multicast group probes are sent to.
	DefaultGroup = "239.255.60.60"
	// DefaultPort is the port responders listen on.
	DefaultPort = 5660

	probePayload   = "ULNK?"
	announcePrefix = "ULNK!"

	// maxDatagramSize bounds both probes and announcements.
	maxDatagramSize = 256
)

type Config struct {
	// Group is the multicast group to use; DefaultGroup if empty.
	Group string
	// Port is the discovery port; DefaultPort if zero.
	Port uint16
	// LogLevel controls the verbosity of the underlying sockets.
	LogLevel logrus.Level
}

func (c Config) withDefaults() Config {
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	return c
}

// A Responder answers probes on the discovery group until closed.
type Responder struct {
	identity  Identity
	advertise string
	sock      *socket.UDPSocket
	log       *logrus.Entry
}

// NewResponder joins the discovery group and starts answering probes.
// advertise is the endpoint announced to probers, which may differ from the
// discovery source address when the node serves on another port.
func NewResponder(identity Identity, advertise string, config Config) (*Responder, error) {
	config = config.withDefaults()

	sock, err := socket.NewUDPSocket(socket.Config{LogLevel: config.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("creating discovery socket: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(config.LogLevel)

	responder := &Responder{
		identity:  identity,
		advertise: advertise,
		sock:      sock,
		log:       logger.WithField("component", "discovery"),
	}

	err = sock.StartReceiving(socket.ReceiveConfig{
		Port:                config.Port,
		BufferSize:          maxDatagramSize,
		IsMulticastEndpoint: true,
		MulticastGroup:      config.Group,
		OnReceive:           responder.handleProbe,
	})
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("listening on discovery group: %w", err)
	}
	return responder, nil
}

func (r *Responder) handleProbe(data []byte, sender socket.Endpoint) socket.Reply {
	if string(data) != probePayload {
		return socket.NoReply()
	}
	r.log.WithField("sender", sender.String()).Debug("Answering probe")
	return socket.ReplyWith(formatAnnouncement(r.identity, r.advertise))
}

func (r *Responder) Close() error {
	return r.sock.Close()
}

// A Prober multicasts probes and collects announcements.
type Prober struct {
	sock   *socket.UDPSocket
	store  *PeerStore
	config Config
	log    *logrus.Entry
}

func NewProber(config Config) (*Prober, error) {
	config = config.withDefaults()

	sock, err := socket.NewUDPSocket(socket.Config{LogLevel: config.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("creating discovery socket: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(config.LogLevel)

	return &Prober{
		sock:   sock,
		store:  NewPeerStore(),
		config: config,
		log:    logger.WithField("component", "discovery"),
	}, nil
}

// Probe multicasts one probe and waits up to timeout for the first
// announcement. Later announcements from other group members are not
// collected by this call. The answering peer is recorded in the store.
func (p *Prober) Probe(timeout time.Duration) (Peer, error) {
	// Send configures the descriptor's receive timeout as a side effect,
	// so the explicit Receive below is bounded by timeout. Receiving
	// directly, instead of waiting inside Send, keeps the announcement's
	// source address available.
	err := p.sock.Send([]byte(probePayload), socket.SendConfig{
		IPAddress:           p.config.Group,
		Port:                p.config.Port,
		IsMulticastEndpoint: true,
		ResponseTimeout:     timeout,
	})
	if err != nil {
		return Peer{}, fmt.Errorf("sending probe: %w", err)
	}

	data, sender, err := p.sock.Receive(maxDatagramSize)
	if err != nil {
		return Peer{}, fmt.Errorf("waiting for announcement: %w", err)
	}

	identity, advertise, err := parseAnnouncement(data)
	if err != nil {
		return Peer{}, fmt.Errorf("parsing announcement from %s: %w", sender, err)
	}

	peer := Peer{
		Identity:  identity,
		Advertise: advertise,
		Source:    sender.String(),
		LastSeen:  time.Now(),
	}
	p.store.Record(peer)
	p.log.WithField("peer", peer.Identity.Name).Info("Discovered peer")
	return peer, nil
}

// Store returns the prober's peer store.
func (p *Prober) Store() *PeerStore {
	return p.store
}

func (p *Prober) Close() error {
	return p.sock.Close()
}

func formatAnnouncement(identity Identity, advertise string) []byte {
	return []byte(fmt.Sprintf("%s%s %s %s", announcePrefix, identity.ID, advertise, identity.Name))
}

func parseAnnouncement(data []byte) (Identity, string, error) {
	message, ok := strings.CutPrefix(string(data), announcePrefix)
	if !ok {
		return Identity{}, "", fmt.Errorf("not an announcement: %q", data)
	}

	idField, rest, ok := strings.Cut(message, " ")
	if !ok {
		return Identity{}, "", fmt.Errorf("announcement without advertise endpoint: %q", data)
	}
	id, err := uuid.Parse(idField)
	if err != nil {
		return Identity{}, "", fmt.Errorf("parsing announcement ID: %w", err)
	}

	// The name is the final field and may contain spaces.
	advertise, name, ok := strings.Cut(rest, " ")
	if !ok {
		return Identity{}, "", fmt.Errorf("announcement without name: %q", data)
	}

	return Identity{ID: id, Name: name}, advertise, nil
}
