//go:build !unix

package socks5

import (
	"log/slog"
	"net"
)

// listenBacklog falls back to net.ListenTCP on platforms without
// golang.org/x/sys/unix socket primitives. The requested backlog is
// only advisory here; the platform default applies.
func listenBacklog(addr *net.TCPAddr, backlog int) (net.Listener, error) {
	if backlog > 0 {
		slog.Default().Warn("listen backlog is not configurable on this platform", "requested", backlog)
	}
	return net.ListenTCP("tcp", addr)
}
