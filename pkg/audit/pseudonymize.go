package audit

import (
	"fmt"
	"net/netip"
	"strings"
)

// PseudonymizeIP masks the host part of an address: the last IPv4 octet, or
// every IPv6 group after the fourth. Zones are dropped. Anything that does
// not parse as an IP is returned unchanged.
func PseudonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ip
	}
	addr = addr.WithZone("").Unmap()
	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.xxx", b[0], b[1], b[2])
	}
	b := addr.As16()
	groups := make([]string, 4)
	for i := range groups {
		groups[i] = fmt.Sprintf("%x", uint16(b[2*i])<<8|uint16(b[2*i+1]))
	}
	return strings.Join(groups, ":") + "::xxxx"
}
