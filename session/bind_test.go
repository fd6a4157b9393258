package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulticastMACSynthesis(t *testing.T) {
	mac, err := MulticastMAC(net.ParseIP("239.1.2.3"))
	require.NoError(t, err)
	require.Equal(t, "01:00:5e:01:02:03", mac.String())

	mac, err = MulticastMAC(net.ParseIP("224.200.100.50"))
	require.NoError(t, err)
	require.Equal(t, "01:00:5e:48:64:32", mac.String())
}

func TestIsMulticast(t *testing.T) {
	require.True(t, IsMulticast(net.ParseIP("224.0.0.1")))
	require.True(t, IsMulticast(net.ParseIP("239.255.255.255")))
	require.False(t, IsMulticast(net.ParseIP("192.168.0.1")))
}

type fakeInstaller struct {
	rules []FlowRule
}

func (f *fakeInstaller) InstallFlowRule(r FlowRule) error {
	f.rules = append(f.rules, r)
	return nil
}

func TestBindIPAddrConsumerInstallsFlowRuleWithI40EQuirk(t *testing.T) {
	d, err := CreateDevice(DeviceRecv, "eth0", 10, 29.97)
	require.NoError(t, err)
	s, err := d.CreateSession(DirectionConsumer, EssenceVideo, testFormat(t))
	require.NoError(t, err)

	inst := &fakeInstaller{}
	flow := FlowTuple{SrcIP: net.ParseIP("192.168.0.1"), DstIP: net.ParseIP("192.168.0.2"), SrcPort: 10000, DstPort: 10000}
	require.NoError(t, BindIPAddr(d, s, flow, 0, DriverI40E, inst))
	require.Len(t, inst.rules, 1)
	require.True(t, inst.rules[0].MaskIPProto)
}

func TestBindIPAddrUnicastSchedulesARPWhenAbsent(t *testing.T) {
	d, err := CreateDevice(DeviceSend, "eth0", 10, 29.97)
	require.NoError(t, err)
	s, err := d.CreateSession(DirectionProducer, EssenceVideo, testFormat(t))
	require.NoError(t, err)

	flow := FlowTuple{SrcIP: net.ParseIP("192.168.0.1"), DstIP: net.ParseIP("192.168.0.2"), SrcPort: 10000, DstPort: 10000}
	require.NoError(t, BindIPAddr(d, s, flow, 0, DriverGeneric, nil))
	_, ok := d.ARP().Lookup(flow.DstIP)
	require.False(t, ok)
}
