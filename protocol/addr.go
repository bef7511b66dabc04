package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// ParseAddressList parses the client CLI's address grammar: a single IPv4
// address, an inclusive "A-B" range, or a comma-separated list of either,
// into a de-duplicated, order-preserving slice of addresses.
//
// Examples: "192.168.1.1", "192.168.1.1-192.168.1.10",
// "192.168.1.1,192.168.1.5-192.168.1.8,192.168.1.20".
func ParseAddressList(s string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		addrs, err := parseAddressPart(part)
		if err != nil {
			return nil, err
		}

		for _, addr := range addrs {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("empty address list")
	}

	return out, nil
}

func parseAddressPart(part string) ([]string, error) {
	if idx := strings.IndexByte(part, '-'); idx >= 0 {
		lo := strings.TrimSpace(part[:idx])
		hi := strings.TrimSpace(part[idx+1:])

		loIP, err := parseIPv4(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q: %w", lo, err)
		}
		hiIP, err := parseIPv4(hi)
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q: %w", hi, err)
		}

		loN := binary.BigEndian.Uint32(loIP)
		hiN := binary.BigEndian.Uint32(hiIP)
		if hiN < loN {
			return nil, fmt.Errorf("range %q is backwards", part)
		}

		addrs := make([]string, 0, hiN-loN+1)
		for n := loN; n <= hiN; n++ {
			ip := make(net.IP, 4)
			binary.BigEndian.PutUint32(ip, n)
			addrs = append(addrs, ip.String())
			if n == hiN {
				break
			}
		}

		return addrs, nil
	}

	ip, err := parseIPv4(part)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", part, err)
	}

	return []string{ip.String()}, nil
}

func parseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("not an IP address")
	}

	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("not an IPv4 address")
	}

	return v4, nil
}
