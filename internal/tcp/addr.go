package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Addr is an IPv4 socket address.
type Addr struct {
	IP   net.IP
	Port int
}

// String renders the address as ip:port.
func (a Addr) String() string {
	ip := "0.0.0.0"
	if a.IP != nil {
		ip = a.IP.String()
	}
	return net.JoinHostPort(ip, strconv.Itoa(a.Port))
}

func (a Addr) sockaddr() *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: a.Port}
	if ip4 := a.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	return sa
}

func addrFromSockaddr(sa unix.Sockaddr) Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, v.Addr[:])
		return Addr{IP: ip, Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, v.Addr[:])
		return Addr{IP: ip, Port: v.Port}
	}
	return Addr{}
}

// Resolve turns host and port into an IPv4 address. Numeric addresses are
// parsed directly, names go through the system resolver and the first IPv4
// answer wins. An empty host means the wildcard address.
func Resolve(host string, port int) (Addr, error) {
	if port < 0 || port > 65535 {
		return Addr{}, &ResolveError{Host: host, Err: fmt.Errorf("port %d out of range", port)}
	}

	if host == "" {
		return Addr{IP: net.IPv4zero.To4(), Port: port}, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return Addr{}, &ResolveError{Host: host, Err: errors.New("not an IPv4 address")}
		}
		return Addr{IP: ip4, Port: port}, nil
	}

	ips, err := net.DefaultResolver.LookupIP(context.Background(), "ip4", host)
	if err != nil {
		return Addr{}, &ResolveError{Host: host, Err: err}
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return Addr{IP: ip4, Port: port}, nil
		}
	}
	return Addr{}, &ResolveError{Host: host, Err: errors.New("no IPv4 address found")}
}

// ParseAddr resolves a "host:port" string.
func ParseAddr(hostport string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Addr{}, &ResolveError{Host: hostport, Err: err}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Addr{}, &ResolveError{Host: hostport, Err: fmt.Errorf("invalid port %q", portStr)}
	}
	return Resolve(host, port)
}
