package reactor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sockaddrFromTCPAddr builds a raw sockaddr plus the socket family for
// addr, picking IPv4 or IPv6 based on whether the resolved IP has a
// 4-byte form.
func sockaddrFromTCPAddr(addr *net.TCPAddr) (unix.Sockaddr, int, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], ip4)
		sa.Port = addr.Port
		return &sa, unix.AF_INET, nil
	}
	ip16 := addr.IP.To16()
	if ip16 == nil {
		return nil, 0, fmt.Errorf("reactor: invalid tcp address %v", addr)
	}
	var sa unix.SockaddrInet6
	copy(sa.Addr[:], ip16)
	sa.Port = addr.Port
	return &sa, unix.AF_INET6, nil
}

func sockaddrFromUDPAddr(addr *net.UDPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], ip4)
		sa.Port = addr.Port
		return &sa, nil
	}
	ip16 := addr.IP.To16()
	if ip16 == nil {
		return nil, fmt.Errorf("reactor: invalid udp address %v", addr)
	}
	var sa unix.SockaddrInet6
	copy(sa.Addr[:], ip16)
	sa.Port = addr.Port
	return &sa, nil
}

func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port)
	default:
		return ""
	}
}

func udpAddrFromSockaddr(sa unix.Sockaddr) *net.UDPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	default:
		return &net.UDPAddr{}
	}
}

// rawListen creates a non-blocking listening TCP socket bound to addr
// with SO_REUSEADDR set, mirroring socket_server.c's listen path.
func rawListen(addr *net.TCPAddr) (int, error) {
	sa, family, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// rawConnect starts a non-blocking connect, reporting inProgress=true
// when the caller must wait for writability before the connect
// completes (the common case for a TCP handshake over a real network).
func rawConnect(addr *net.TCPAddr) (fd int, inProgress bool, err error) {
	sa, family, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		return -1, false, err
	}
	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, false, err
	}
	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, false, nil
	}
	if err == unix.EINPROGRESS {
		return fd, true, nil
	}
	unix.Close(fd)
	return -1, false, err
}

// unixGetsockname returns the local address a listening or bound socket
// was assigned, formatted as a host:port string suitable for Connect /
// ResolveUDPAddr — used in tests where Listen/UDPListen bind to port 0
// and the caller needs the OS-assigned ephemeral port back.
func unixGetsockname(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port), nil
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port), nil
	default:
		return "", fmt.Errorf("reactor: unsupported sockaddr type %T", sa)
	}
}

// rawUDP creates a non-blocking UDP socket, optionally bound to addr; a
// nil addr leaves it unbound for outbound-only use (the associate-peer
// command then supplies a default destination).
func rawUDP(addr *net.UDPAddr) (int, error) {
	family := unix.AF_INET
	if addr != nil && addr.IP.To4() == nil {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if addr != nil {
		sa, err := sockaddrFromUDPAddr(addr)
		if err != nil {
			unix.Close(fd)
			return -1, err
		}
		if err := unix.Bind(fd, sa); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}
	return fd, nil
}
