package imcnet

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const udpScheme = "imc+udp"

// ServiceURL formats the announced UDP service for host and port.
func ServiceURL(host string, port int) string {
	return fmt.Sprintf("%s://%s/", udpScheme, net.JoinHostPort(host, fmt.Sprint(port)))
}

// UDPEndpoint returns the host:port of the first imc+udp service among
// services, or "" when none is advertised.
func UDPEndpoint(services []string) string {
	for _, s := range services {
		u, err := url.Parse(strings.TrimSpace(s))
		if err != nil || u.Scheme != udpScheme || u.Port() == "" {
			continue
		}
		return u.Host
	}
	return ""
}

// advertiseHost picks the address other systems should use to reach us.
func advertiseHost(configured string, bound *net.UDPAddr) string {
	if configured != "" {
		return configured
	}
	if bound != nil && bound.IP != nil && !bound.IP.IsUnspecified() {
		return bound.IP.String()
	}
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "127.0.0.1"
}
