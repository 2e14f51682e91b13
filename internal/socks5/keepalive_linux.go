//go:build linux

package socks5

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// enableKeepAlive turns on TCP keepalive and tunes idle time, probe
// interval, and probe count. net.TCPConn only exposes a single idle-time
// knob (SetKeepAlivePeriod); the interval and probe count this proxy
// also wants to control are only reachable through setsockopt, the
// same approach the corpus uses for outbound dial-time socket tuning.
func enableKeepAlive(conn net.Conn, idle time.Duration) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok || idle <= 0 {
		return
	}
	tcpConn.SetKeepAlive(true)
	tcpConn.SetKeepAlivePeriod(idle)

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return
	}

	idleSecs := int(idle.Seconds())
	if idleSecs <= 0 {
		idleSecs = 1
	}
	rawConn.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, idleSecs)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 10)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 3)
	})
}
