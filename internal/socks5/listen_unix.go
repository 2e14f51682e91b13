//go:build unix

package socks5

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenBacklog binds and listens on addr with an explicit backlog.
// net.Listen accepts whatever backlog the kernel derives from
// net.core.somaxconn and exposes no way to override it; dropping to
// golang.org/x/sys/unix for the raw socket(2)/bind(2)/listen(2)
// sequence is the only way to honor an operator-configured backlog.
func listenBacklog(addr *net.TCPAddr, backlog int) (net.Listener, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	var sockaddr unix.Sockaddr
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], addr.IP.To16())
		sockaddr = sa
	} else {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], addr.IP.To4())
		sockaddr = sa
	}

	if err := unix.Bind(fd, sockaddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}

	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	// os.NewFile takes the fd; net.FileListener dup()s it internally
	// and returns a *net.TCPListener wrapper, so the os.File is closed
	// once handed off.
	file := os.NewFile(uintptr(fd), fmt.Sprintf("socks5-listener-%s", addr))
	defer file.Close()

	return net.FileListener(file)
}
