//go:build !linux

package socks5

import (
	"net"
	"time"
)

// enableKeepAlive turns on TCP keepalive using only what net.TCPConn
// exposes portably. Fine-grained probe interval/count tuning is
// Linux-specific (see keepalive_linux.go).
func enableKeepAlive(conn net.Conn, idle time.Duration) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok || idle <= 0 {
		return
	}
	tcpConn.SetKeepAlive(true)
	tcpConn.SetKeepAlivePeriod(idle)
}
