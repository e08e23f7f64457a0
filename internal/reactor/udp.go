package reactor

import (
	"encoding/binary"
	"fmt"
	"net"
)

// UDP peer-address protocol tags.
const (
	udpTagV4 byte = 1
	udpTagV6 byte = 2
)

// encodeUDPAddr packs addr as [1 byte protocol tag | 2 bytes port (network
// order) | 4 or 16 bytes IP], the fixed binary peer-address
// format carried in UDP event payloads.
func encodeUDPAddr(addr *net.UDPAddr) []byte {
	ip4 := addr.IP.To4()
	if ip4 != nil {
		out := make([]byte, 1+2+4)
		out[0] = udpTagV4
		binary.BigEndian.PutUint16(out[1:3], uint16(addr.Port))
		copy(out[3:], ip4)
		return out
	}
	ip16 := addr.IP.To16()
	out := make([]byte, 1+2+16)
	out[0] = udpTagV6
	binary.BigEndian.PutUint16(out[1:3], uint16(addr.Port))
	copy(out[3:], ip16)
	return out
}

// decodeUDPAddr reverses encodeUDPAddr, reporting the number of bytes
// consumed from b so the caller can slice off the trailing datagram.
func decodeUDPAddr(b []byte) (*net.UDPAddr, int, error) {
	if len(b) < 3 {
		return nil, 0, fmt.Errorf("reactor: truncated udp address")
	}
	tag := b[0]
	port := int(binary.BigEndian.Uint16(b[1:3]))
	switch tag {
	case udpTagV4:
		if len(b) < 3+4 {
			return nil, 0, fmt.Errorf("reactor: truncated ipv4 udp address")
		}
		ip := net.IP(append([]byte(nil), b[3:7]...))
		return &net.UDPAddr{IP: ip, Port: port}, 7, nil
	case udpTagV6:
		if len(b) < 3+16 {
			return nil, 0, fmt.Errorf("reactor: truncated ipv6 udp address")
		}
		ip := net.IP(append([]byte(nil), b[3:19]...))
		return &net.UDPAddr{IP: ip, Port: port}, 19, nil
	default:
		return nil, 0, fmt.Errorf("reactor: unknown udp protocol tag %d", tag)
	}
}

// appendUDPAddr appends addr's encoding to the tail of a UDP read buffer,
// matching "the decoded address is appended to the data buffer" — here
// used in reverse, for encoding a fresh read's source address onto the
// payload the reactor hands to Deliver.
func appendUDPAddr(data []byte, addr *net.UDPAddr) []byte {
	return append(data, encodeUDPAddr(addr)...)
}

// SplitUDPEvent reverses appendUDPAddr for Deliver callbacks outside this
// package: raw is an EventUDP payload (after DecodeEnvelope strips the
// kind/id header), trailing a fixed-length peer-address encoding whose
// length is implied by its own leading tag byte (7 bytes for IPv4, 19 for
// IPv6). Datagram content can't itself be told apart from the address
// encoding except by this tag-byte probe, so a datagram whose own last 7
// or 19 bytes happen to start with a valid tag byte would be misparsed;
// this is an inherent ambiguity of appending rather than prefixing the
// address, accepted here since it only affects diagnostic reference
// modules, not the wire format within internal/reactor itself.
func SplitUDPEvent(raw []byte) (data []byte, addr *net.UDPAddr, err error) {
	if len(raw) >= 7 {
		if a, n, derr := decodeUDPAddr(raw[len(raw)-7:]); derr == nil && n == 7 {
			return raw[:len(raw)-7], a, nil
		}
	}
	if len(raw) >= 19 {
		if a, n, derr := decodeUDPAddr(raw[len(raw)-19:]); derr == nil && n == 19 {
			return raw[:len(raw)-19], a, nil
		}
	}
	return nil, nil, fmt.Errorf("reactor: malformed udp event payload")
}
