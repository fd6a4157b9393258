package session

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

// DriverFamily distinguishes NIC driver quirks that affect flow-rule
// installation; only i40e needs special handling today (spec.md §4.1).
type DriverFamily uint8

// Supported driver families.
const (
	DriverGeneric DriverFamily = iota
	DriverI40E
)

// FlowRule is the hardware classification rule a consumer session installs
// so matching packets land on its dedicated RX queue. Installing it is the
// out-of-scope NIC driver's job; this package only computes its contents.
type FlowRule struct {
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	MaskIPProto      bool // i40e quirk: must be masked off when paired with an explicit UDP pattern
	Queue            int
}

// FlowInstaller is implemented by the out-of-scope NIC driver layer. The
// core only ever calls it from BindIPAddr; it never retries (spec.md §7).
type FlowInstaller interface {
	InstallFlowRule(rule FlowRule) error
}

// multicastLow and multicastHigh bound the first octet of the IPv4
// multicast range 224.0.0.0/4.
const multicastLow = 224
const multicastHigh = 239

// IsMulticast reports whether ip falls in 224.0.0.0/4.
func IsMulticast(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return v4[0] >= multicastLow && v4[0] <= multicastHigh
}

// MulticastMAC synthesises the destination MAC for a multicast IPv4
// address: 01:00:5e:xx:xx:xx with the low 23 bits of the IP (spec.md §4.1).
func MulticastMAC(ip net.IP) (net.HardwareAddr, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("session: %s is not an IPv4 address", ip)
	}
	return net.HardwareAddr{
		0x01, 0x00, 0x5e,
		v4[1] & 0x7f,
		v4[2],
		v4[3],
	}, nil
}

// BindIPAddr implements the bind_ip_addr operation from spec.md §4.1: it
// resolves the destination MAC (multicast synthesis, or the device's
// last-known ARP entry for unicast — scheduling a request if absent) and,
// for consumer sessions, computes the hardware flow rule that directs the
// matching 5-tuple to a dedicated RX queue. The resolved MAC is neither
// stored nor returned.
func BindIPAddr(d *Device, s *Session, flow FlowTuple, nicPort int, driver DriverFamily, installer FlowInstaller) error {
	s.Flow = flow

	var mac net.HardwareAddr
	if IsMulticast(flow.DstIP) {
		var err error
		mac, err = MulticastMAC(flow.DstIP)
		if err != nil {
			return fmt.Errorf("session: %w: %v", ErrBindFailed, err)
		}
		d.JoinMulticast(flow.DstIP.String())
	} else if s.Direction == DirectionProducer {
		if resolved, ok := d.ARP().Lookup(flow.DstIP); ok {
			mac = resolved
		} else {
			if !d.ARP().MarkPending(flow.DstIP) {
				return fmt.Errorf("session: %w: ARP retries exhausted for %s", ErrBindFailed, flow.DstIP)
			}
			log.Debugf("session: scheduling ARP request for %s", flow.DstIP)
		}
	}

	if s.Direction == DirectionConsumer && installer != nil {
		rule := FlowRule{
			SrcIP: flow.SrcIP, DstIP: flow.DstIP,
			SrcPort: flow.SrcPort, DstPort: flow.DstPort,
			Queue: s.Timeslot,
		}
		if driver == DriverI40E {
			// Later i40e firmware rejects an explicit IP-protocol filter
			// field alongside an explicit UDP pattern; mask it off.
			rule.MaskIPProto = true
		}
		if err := installer.InstallFlowRule(rule); err != nil {
			return fmt.Errorf("session: %w: %v", ErrBindFailed, err)
		}
	}

	_ = mac // not stored or returned; see the doc comment above
	return nil
}
