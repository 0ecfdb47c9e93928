// Package origin derives the canonical origin key used for every
// origin-scoped lookup (capability grants, block list, activity log).
// All callers must go through Resolve so the permission model has a
// single notion of identity.
package origin

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidAddress is returned when a page address has no usable scheme or host
var ErrInvalidAddress = errors.New("invalid page address")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// Resolve normalizes a page address into its canonical origin:
// lower-cased scheme and host, default port dropped, path, query,
// fragment and userinfo stripped. Resolve(Resolve(x)) == Resolve(x).
func Resolve(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrInvalidAddress
	}

	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if scheme == "" || host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	host = strings.TrimSuffix(host, ".")

	port := u.Port()
	if def, ok := defaultPorts[scheme]; ok && port == def {
		port = ""
	}

	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		// bare IPv6 literal
		host = "[" + host + "]"
	}

	return scheme + "://" + host, nil
}

// MustResolve is Resolve for addresses known to be valid, such as test
// fixtures and configuration constants.
func MustResolve(address string) string {
	o, err := Resolve(address)
	if err != nil {
		panic(err)
	}
	return o
}
