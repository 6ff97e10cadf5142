package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// listen opens the configured listening socket. Binding, listening, and
// socket-option tuning live here rather than in package fcgi, which only
// ever receives an already-listening net.Listener.
//
// For a unix-domain socket it first removes any stale socket file left
// behind by a prior, uncleanly terminated process, then sets
// SO_REUSEADDR via a net.ListenConfig.Control hook so a fast restart
// does not fail with "address already in use" while the kernel is still
// tearing down the previous listener's backlog.
func listen(network, address string) (net.Listener, error) {
	switch network {
	case "unix":
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
	case "tcp":
	default:
		return nil, fmt.Errorf("fcgiserver: unsupported network %q", network)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}

	return lc.Listen(context.Background(), network, address)
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fcgiserver: stat %q: %w", path, err)
	}
	if _, err := net.Dial("unix", path); err == nil {
		return fmt.Errorf("fcgiserver: %q is already in use by a running instance", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("fcgiserver: removing stale socket %q: %w", path, err)
	}
	return nil
}
