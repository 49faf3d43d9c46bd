package lan

import (
	"errors"
	"net"
)

var ErrNoIface = errors.New("no suitable IPv4 interface found")

// PickInterface returns the name of the interface holding an IPv4 address
// inside the given CIDR. Hosts with several networks use it to aim the
// beacon listener at the right one.
func PickInterface(subnet string) (string, error) {
	_, target, err := net.ParseCIDR(subnet)
	if err != nil {
		return "", err
	}

	ifaces, _ := net.Interfaces()
	for i := range ifaces {
		addrs, _ := ifaces[i].Addrs()
		for _, a := range addrs {
			if ip, ok := ipv4Of(a); ok && target.Contains(ip) {
				return ifaces[i].Name, nil
			}
		}
	}
	return "", ErrNoIface
}

func ipv4Of(a net.Addr) (net.IP, bool) {
	switch v := a.(type) {
	case *net.IPNet:
		if ip := v.IP.To4(); ip != nil {
			return ip, true
		}
	case *net.IPAddr:
		if ip := v.IP.To4(); ip != nil {
			return ip, true
		}
	}
	return nil, false
}
