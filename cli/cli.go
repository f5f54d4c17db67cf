// Package cli contains helpers to interpret command line arguments.
package cli

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
)

// ParseTCPAddrArg resolves a [host][:port] argument. Missing parts are filled with the given defaults.
func ParseTCPAddrArg(arg string, defaultHost string, defaultPort int) (*net.TCPAddr, error) {
	host, port := splitHostPort(arg)
	if host == "" {
		host = defaultHost
	}
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}

	return net.ResolveTCPAddr("tcp", net.JoinHostPort(host, port))
}

func splitHostPort(hostport string) (host, port string) {
	host = hostport

	colon := strings.LastIndexByte(host, ':')
	if colon != -1 && validOptionalPort(host[colon:]) {
		host, port = host[:colon], host[colon+1:]
	}

	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	return
}

func validOptionalPort(port string) bool {
	if port == "" {
		return true
	}
	if port[0] != ':' {
		return false
	}
	for _, b := range port[1:] {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}

// ParseFrequency parses a frequency in Hz with an optional k/M/G multiplier suffix.
func ParseFrequency(arg string) (int64, error) {
	value := strings.TrimSpace(arg)
	value = strings.TrimSuffix(strings.TrimSuffix(value, "Hz"), "hz")
	multiplier := 1.0
	switch {
	case strings.HasSuffix(value, "k"):
		multiplier = 1e3
	case strings.HasSuffix(value, "M"):
		multiplier = 1e6
	case strings.HasSuffix(value, "G"):
		multiplier = 1e9
	}
	if multiplier != 1 {
		value = value[:len(value)-1]
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", arg, err)
	}
	return int64(math.Round(f * multiplier)), nil
}
