package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Scheme selects the RAC transport
type Scheme string

const (
	SchemeRAC  Scheme = "rac"  // One TCP connection per request
	SchemeWRAC Scheme = "wrac" // One WebSocket for the whole session
)

const (
	DefaultRACPort  = "42666"
	DefaultWRACPort = "52666"
)

// ErrInvalidAddress is returned for anything that is not rac:// or wrac://
var ErrInvalidAddress = errors.New("invalid address")

// Address is a validated server address
type Address struct {
	Scheme Scheme
	Host   string
	Port   string
}

// HostPort returns host:port suitable for net.Dial
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, a.Port)
}

// String returns the canonical form, scheme included
func (a Address) String() string {
	return fmt.Sprintf("%s://%s", a.Scheme, a.HostPort())
}

// ParseAddress validates "<scheme>://<host>[:<port>]". Only the lower-case
// rac and wrac schemes are accepted and the port must be 1-65535; everything
// else fails without touching the network.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("%w: server address is empty", ErrInvalidAddress)
	}

	scheme, rest, ok := strings.Cut(trimmed, "://")
	if !ok {
		return Address{}, fmt.Errorf("%w: %q has no scheme (expected rac:// or wrac://)", ErrInvalidAddress, raw)
	}

	var defaultPort string
	switch Scheme(scheme) {
	case SchemeRAC:
		defaultPort = DefaultRACPort
	case SchemeWRAC:
		defaultPort = DefaultWRACPort
	default:
		return Address{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, scheme)
	}

	if strings.ContainsAny(rest, "/?#@") {
		return Address{}, fmt.Errorf("%w: %q must be host[:port] only", ErrInvalidAddress, raw)
	}

	host, port, err := splitHostPortWithDefault(rest, defaultPort)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	return Address{
		Scheme: Scheme(scheme),
		Host:   host,
		Port:   port,
	}, nil
}

func splitHostPortWithDefault(hostPort, defaultPort string) (string, string, error) {
	hostPort = strings.TrimSpace(hostPort)
	if hostPort == "" {
		return "", "", errors.New("missing host in server address")
	}

	host, port, err := net.SplitHostPort(hostPort)
	if err == nil {
		if host == "" {
			return "", "", errors.New("missing host in server address")
		}
		if port == "" {
			port = defaultPort
		}
		if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
			return "", "", fmt.Errorf("invalid port %q", port)
		}
		return host, port, nil
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) && strings.Contains(strings.ToLower(addrErr.Err), "missing port") {
		host = hostPort
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
		}
		return host, defaultPort, nil
	}

	return "", "", err
}
