package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseListenAddress splits a listen address into host and port.
// Accepts ":3000", "3000", "0.0.0.0:3000" and "localhost:3000".
func ParseListenAddress(listen string) (host string, port int, err error) {
	if listen == "" {
		return "", 0, fmt.Errorf("listen address is empty")
	}

	if !strings.Contains(listen, ":") {
		p, err := strconv.Atoi(listen)
		if err != nil {
			return "", 0, fmt.Errorf("invalid listen address format: %s", listen)
		}
		return "", p, nil
	}

	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address format: %s: %w", listen, err)
	}

	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in listen address: %s", portStr)
	}

	return host, port, nil
}

// ValidateListenAddress checks format and port range
func ValidateListenAddress(listen string) error {
	_, port, err := ParseListenAddress(listen)
	if err != nil {
		return err
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return nil
}

// GetPortFromListen extracts just the port number from a listen address.
func GetPortFromListen(listen string) (int, error) {
	_, port, err := ParseListenAddress(listen)
	return port, err
}

// NormalizeListen returns the address in host:port form, keeping an empty host as ":port".
func NormalizeListen(listen string) (string, error) {
	host, port, err := ParseListenAddress(listen)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// WithPort replaces the port of a listen address, keeping its host.
// Used for the PORT environment override.
func WithPort(listen string, port string) (string, error) {
	p, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", port, err)
	}

	host := ""
	if listen != "" {
		if h, _, err := ParseListenAddress(listen); err == nil {
			host = h
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(p)), nil
}
