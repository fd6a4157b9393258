package session

import (
	"fmt"
	"net"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/net/ipv4"
)

// ResolveNeighbor queries the kernel neighbour (ARP) table for ip via
// rtnetlink instead of issuing our own ARP request, and caches a hit in
// the device's ARPTable. It returns (nil, nil) when the
// kernel has no entry yet — the caller falls back to MarkPending.
func ResolveNeighbor(d *Device, ifaceIndex uint32, ip net.IP) (net.HardwareAddr, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("session: rtnetlink dial: %w", err)
	}
	defer conn.Close()

	neighbors, err := conn.Neigh.List()
	if err != nil {
		return nil, fmt.Errorf("session: rtnetlink neigh list: %w", err)
	}
	v4 := ip.To4()
	for _, n := range neighbors {
		if n.Index != ifaceIndex {
			continue
		}
		if !n.Attributes.Dst.Equal(v4) && !n.Attributes.Dst.Equal(ip) {
			continue
		}
		mac := net.HardwareAddr(n.Attributes.LLAddr)
		if len(mac) == 6 {
			d.ARP().Resolve(ip, mac)
			return mac, nil
		}
	}
	return nil, nil
}

// ConfigureSocket applies the flow tuple's DSCP/ECN marking to conn and,
// for a multicast destination, joins the group on ifaceName. This
// validates a flow before it is ever handed to the (out-of-scope) NIC
// driver — the production data path itself never touches this socket.
func ConfigureSocket(conn net.PacketConn, flow FlowTuple, ifaceName string) error {
	p := ipv4.NewPacketConn(conn)
	tos := int(flow.DSCP)<<2 | int(flow.ECN)
	if err := p.SetTOS(tos); err != nil {
		return fmt.Errorf("session: set TOS: %w", err)
	}
	if IsMulticast(flow.DstIP) {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return fmt.Errorf("session: resolve iface %s: %w", ifaceName, err)
		}
		if err := p.JoinGroup(iface, &net.UDPAddr{IP: flow.DstIP}); err != nil {
			return fmt.Errorf("session: join multicast group %s: %w", flow.DstIP, err)
		}
	}
	return nil
}
