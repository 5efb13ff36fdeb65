package coordinator

import (
	"fmt"
	"net"
	"strconv"
)

// PortAllocator finds a free local port for the callback listener.
type PortAllocator interface {
	Allocate() (int, error)
}

// PortAllocatorFunc adapts a function to PortAllocator.
type PortAllocatorFunc func() (int, error)

// Allocate calls f.
func (f PortAllocatorFunc) Allocate() (int, error) { return f() }

// EphemeralPorts asks the OS for an ephemeral port on Host, then releases it
// so the real listener can claim it.
type EphemeralPorts struct {
	Host string
}

// Allocate implements PortAllocator. There is no retry; callers surface the
// error and let the user try again.
func (p EphemeralPorts) Allocate() (int, error) {
	host := p.Host
	if host == "" {
		host = "localhost"
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_, portStr, splitErr := net.SplitHostPort(ln.Addr().String())
		if splitErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrResourceUnavailable, splitErr)
		}
		port, convErr := strconv.Atoi(portStr)
		if convErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrResourceUnavailable, convErr)
		}
		return port, nil
	}
	return addr.Port, nil
}
