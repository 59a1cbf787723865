// Package socket opens the local listeners used by the ICE mux
// and the monitoring server.
package socket

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"syscall"
)

const (
	listenAttempts = 42
	udpBufferSize  = 16 * 1024 * 1024
)

var ErrNoPorts = errors.New("socket: no available ports")

// ListenUDP opens a UDP socket with enlarged buffers.
// The zero port means any free port.
func ListenUDP(port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadBuffer(udpBufferSize)
	_ = conn.SetWriteBuffer(udpBufferSize)
	return conn, nil
}

// ListenUDPRoll tries the next ports when the given one is busy.
func ListenUDPRoll(port int) (*net.UDPConn, error) {
	return roll(port, ListenUDP)
}

// ListenTCPRoll opens a TCP listener on the port or on the next free one.
func ListenTCPRoll(port int) (net.Listener, error) {
	return roll(port, func(p int) (net.Listener, error) { return net.Listen("tcp", fmt.Sprintf(":%d", p)) })
}

func roll[T any](port int, listen func(int) (T, error)) (l T, err error) {
	if l, err = listen(port); err == nil || !IsPortBusyError(err) || port == 0 {
		return l, err
	}
	for i := port + 1; i < port+listenAttempts; i++ {
		if l, err = listen(i); err == nil {
			return l, nil
		}
	}
	return l, ErrNoPorts
}

// IsPortBusyError tests if the given error is one of
// the port busy errors.
func IsPortBusyError(err error) bool {
	if err == nil {
		return false
	}
	var eOsSyscall *os.SyscallError
	if !errors.As(err, &eOsSyscall) {
		return false
	}
	var errErrno syscall.Errno
	if !errors.As(eOsSyscall, &errErrno) {
		return false
	}
	if errErrno == syscall.EADDRINUSE {
		return true
	}
	const WSAEADDRINUSE = 10048
	if runtime.GOOS == "windows" && errErrno == WSAEADDRINUSE {
		return true
	}
	return false
}
