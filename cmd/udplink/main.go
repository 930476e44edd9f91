package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgelink-net/udplink/internal/stats"
	"github.com/edgelink-net/udplink/pkg/discovery"
	"github.com/edgelink-net/udplink/pkg/socket"
	log "github.com/sirupsen/logrus"
)

// serveBufferSize is the largest datagram the echo server accepts and the
// largest response the client waits for.
const serveBufferSize = 2048

func main() {
	args := parseArgs()
	log.SetLevel(args.LogLevel)

	log.Info("Starting...")

	if err := run(args); err != nil {
		log.WithError(err).Fatal("failed to run")
	}
	log.Info("Quitting...")
}

func run(args arguments) error {
	switch args.Mode {
	case "serve":
		return runServe(args)
	case "send":
		return runSend(args)
	case "discover":
		return runDiscover(args)
	case "announce":
		return runAnnounce(args)
	default:
		return fmt.Errorf("unknown mode %q", args.Mode)
	}
}

// runServe echoes every datagram back to its sender and periodically logs
// the kernel's statistics for the bound port.
func runServe(args arguments) error {
	sock, err := socket.NewUDPSocket(socket.Config{LogLevel: args.LogLevel})
	if err != nil {
		return fmt.Errorf("creating socket: %w", err)
	}
	defer sock.Close()

	err = sock.StartReceiving(socket.ReceiveConfig{
		Port:       uint16(args.Port),
		BufferSize: serveBufferSize,
		OnReceive: func(data []byte, sender socket.Endpoint) socket.Reply {
			log.WithField("sender", sender.String()).Infof("Echoing %d bytes", len(data))
			return socket.ReplyWith(data)
		},
	})
	if err != nil {
		return fmt.Errorf("starting receive loop: %w", err)
	}

	reporter, err := stats.NewReporter(uint16(args.Port), args.StatsInterval)
	if err != nil {
		return fmt.Errorf("creating stats reporter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errorChannel := make(chan error, 1)
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := reporter.Run(ctx); err != nil {
			errorChannel <- err
		}
	}()

	select {
	case <-signalChannel:
	case err := <-errorChannel:
		return fmt.Errorf("stats reporter: %w", err)
	}

	return nil
}

// runSend transmits one datagram and prints the response.
func runSend(args arguments) error {
	sock, err := socket.NewUDPSocket(socket.Config{LogLevel: args.LogLevel})
	if err != nil {
		return fmt.Errorf("creating socket: %w", err)
	}
	defer sock.Close()

	err = sock.Send([]byte(args.Message), socket.SendConfig{
		IPAddress:       args.Target,
		Port:            uint16(args.Port),
		WaitForResponse: true,
		ResponseSize:    serveBufferSize,
		ResponseTimeout: args.Timeout,
		OnResponse: func(data []byte) {
			fmt.Printf("%s\n", data)
		},
	})
	if err != nil {
		return fmt.Errorf("sending to %s:%d: %w", args.Target, args.Port, err)
	}
	return nil
}

// runDiscover multicasts one probe and prints the first peer that answers.
func runDiscover(args arguments) error {
	prober, err := discovery.NewProber(discovery.Config{
		Group:    args.Group,
		LogLevel: args.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("creating prober: %w", err)
	}
	defer prober.Close()

	peer, err := prober.Probe(args.Timeout)
	if err != nil {
		return fmt.Errorf("probing: %w", err)
	}

	fmt.Printf("%s %s at %s (answered from %s)\n",
		peer.Identity.ID, peer.Identity.Name, peer.Advertise, peer.Source)
	return nil
}

// runAnnounce answers discovery probes until interrupted.
func runAnnounce(args arguments) error {
	identity, err := discovery.LoadOrCreateIdentity(args.IdentityPath, args.Name)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	advertiseIP, err := defaultAdvertiseIP()
	if err != nil {
		log.WithError(err).Warn("Could not determine advertise address, falling back to 127.0.0.1")
		advertiseIP = "127.0.0.1"
	}
	advertise := fmt.Sprintf("%s:%d", advertiseIP, args.Port)

	responder, err := discovery.NewResponder(identity, advertise, discovery.Config{
		Group:    args.Group,
		LogLevel: args.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("starting responder: %w", err)
	}
	defer responder.Close()

	log.WithField("name", identity.Name).Infof("Announcing %s", advertise)

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)
	<-signalChannel

	return nil
}
