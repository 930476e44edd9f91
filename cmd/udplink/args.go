package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/edgelink-net/udplink/pkg/discovery"
	"github.com/edgelink-net/udplink/pkg/socket"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

type arguments struct {
	Mode          string
	Port          uint
	Target        string
	Message       string
	Group         string
	Name          string
	IdentityPath  string
	Timeout       time.Duration
	StatsInterval time.Duration
	LogLevel      logrus.Level
}

func parseArgs() arguments {
	var result arguments
	var loglevel string

	flag.StringVar(&result.Mode, "mode", "serve", "one of serve, send, discover, announce")
	flag.UintVar(&result.Port, "port", 5000, "port to serve on or send to")
	flag.StringVar(&result.Target, "target", "127.0.0.1", "address to send to")
	flag.StringVar(&result.Message, "message", "PING", "payload to send")
	flag.StringVar(&result.Group, "group", discovery.DefaultGroup, "multicast group used for discovery")
	flag.StringVar(&result.Name, "name", "", "node name announced to probers, defaults to the hostname")
	flag.StringVar(&result.IdentityPath, "identity", "udplink.id", "path of the identity store file")
	flag.DurationVar(&result.Timeout, "timeout", socket.DefaultResponseTimeout, "how long to wait for a response")
	flag.DurationVar(&result.StatsInterval, "statsInterval", 30*time.Second, "how often to log socket statistics")
	flag.StringVar(&loglevel, "loglevel", "info", "log level to use. See https://github.com/sirupsen/logrus#level-logging for available levels.")
	flag.Parse()

	if result.Port == 0 || result.Port >= 0x10000 {
		fmt.Fprintf(os.Stderr, "Port out of range: %v\n", result.Port)
		flag.Usage()
		os.Exit(1)
	}

	if result.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "udplink-node"
		}
		result.Name = hostname
	}

	logrusLevel, err := logrus.ParseLevel(loglevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid loglevel: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	result.LogLevel = logrusLevel

	return result
}

// defaultAdvertiseIP returns the source address of the default route, which
// is the address peers are most likely able to reach this node on.
func defaultAdvertiseIP() (string, error) {
	routes, err := netlink.RouteGet(net.ParseIP("1.1.1.1"))
	if err != nil {
		return "", fmt.Errorf("getting route to 1.1.1.1: %w", err)
	}

	if len(routes) == 0 {
		return "", fmt.Errorf("no default route found")
	}

	return routes[0].Src.String(), nil
}
