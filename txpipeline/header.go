// Package txpipeline builds the per-packet wire image for one producer
// session: it walks a frame buffer into line/slice/packet work units per
// spec.md §4.2, renders the Ethernet/IPv4/UDP/RTP header template with
// gopacket, and aligns the RTP timestamp to the session's epoch.
package txpipeline

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// HeaderTemplate is the L2/L3/L4 prefix shared by every packet of one
// session; only the RTP fields and payload change packet to packet. It is
// built once at session creation with gopacket's layer serializer and
// reused as a byte template the builder patches in place, matching the
// zero-allocation hot path the original fixed-header render implies.
type HeaderTemplate struct {
	bytes   []byte
	rtpOff  int
	udpOff  int
	ipv4Off int
}

// EthernetHeaderSize/UDPHeaderSize/IPv4HeaderSize are the fixed-size prefix
// lengths gopacket renders ahead of the RTP header.
const (
	EthernetHeaderSize = 14
	IPv4HeaderSize      = 20
	UDPHeaderSize       = 8
)

// BuildHeaderTemplate renders the static L2-L4 prefix for one session's
// flow using gopacket/layers, leaving the UDP/IP length and checksum
// fields to be patched per packet once the RTP payload size is known.
func BuildHeaderTemplate(srcMAC, dstMAC net.HardwareAddr, flow session.FlowTuple, dualLine bool) (*HeaderTemplate, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    flow.SrcIP.To4(),
		DstIP:    flow.DstIP.To4(),
		TOS:      (flow.DSCP << 2) | flow.ECN,
		Id:       1,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(flow.SrcPort),
		DstPort: layers.UDPPort(flow.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip4); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	rtpHeaderSize := rtp.SingleLineHeaderSize
	if dualLine {
		rtpHeaderSize = rtp.DualLineHeaderSize
	}
	placeholder := gopacket.Payload(make([]byte, rtpHeaderSize))
	if err := gopacket.SerializeLayers(buf, opts, eth, ip4, udp, placeholder); err != nil {
		return nil, err
	}

	out := append([]byte(nil), buf.Bytes()...)
	return &HeaderTemplate{
		bytes:   out,
		ipv4Off: EthernetHeaderSize,
		udpOff:  EthernetHeaderSize + IPv4HeaderSize,
		rtpOff:  EthernetHeaderSize + IPv4HeaderSize + UDPHeaderSize,
	}, nil
}

// Size is the total L2 header length the template occupies ahead of the
// RTP payload.
func (h *HeaderTemplate) Size() int {
	return len(h.bytes)
}

// RTPOffset is the byte offset of the RTP header within the rendered
// template, the builder's patch point for per-packet fields.
func (h *HeaderTemplate) RTPOffset() int {
	return h.rtpOff
}

// Clone copies the template into a fresh buffer for one packet to patch.
func (h *HeaderTemplate) Clone() []byte {
	out := make([]byte, len(h.bytes))
	copy(out, h.bytes)
	return out
}

// PatchLengths rewrites the IPv4 total-length and UDP length fields for a
// packet whose RTP header+payload is payloadLen bytes, and recomputes the
// IPv4 header checksum. UDP checksum is left zeroed (optional over IPv4,
// per spec.md §6's "checksum offload" note on the out-of-scope NIC driver).
func PatchLengths(b []byte, rtpHeaderLen, payloadLen int) {
	udpLen := UDPHeaderSize + rtpHeaderLen + payloadLen
	ipTotalLen := IPv4HeaderSize + udpLen

	b[16] = byte(ipTotalLen >> 8)
	b[17] = byte(ipTotalLen)
	b[EthernetHeaderSize+24] = byte(udpLen >> 8)
	b[EthernetHeaderSize+25] = byte(udpLen)
	b[EthernetHeaderSize+26], b[EthernetHeaderSize+27] = 0, 0

	b[24], b[25] = 0, 0
	sum := ipv4Checksum(b[EthernetHeaderSize : EthernetHeaderSize+IPv4HeaderSize])
	b[24] = byte(sum >> 8)
	b[25] = byte(sum)
}

func ipv4Checksum(header []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(header); i += 2 {
		sum += uint32(header[i])<<8 | uint32(header[i+1])
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
