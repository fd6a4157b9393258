package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
dst_mac: "aa:bb:cc:dd:ee:ff"
dst_ip: "239.1.1.1"
src_ip: "192.168.0.1"
udp_base_port: 20000
format_index: 1
interlaced: false
rate_fps: 25
sessions: 4
ptp_master_id: "aa:bb:cc:ff:fe:dd:ee:ff"
ptp_addr_mode: "m"
ptp_step_mode: "t"
ebu_check: true
log_level: "info"
buffer_format: "yuv10be"
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesValidConfig(t *testing.T) {
	path := writeTemp(t, "st2110d.yaml", validYAML)
	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "239.1.1.1", s.DstIP.String())
	require.Equal(t, "192.168.0.1", s.SrcIP.String())
	require.Equal(t, 4, s.Sessions)
	require.Equal(t, AddrModeMulticast, s.PTPAddrMode)
	require.Equal(t, StepModeTwoStep, s.PTPStepMode)
	require.Equal(t, BufferFormatYUV10BE, s.BufferFmt)
}

func TestLoadRejectsUnsupportedRate(t *testing.T) {
	path := writeTemp(t, "bad.yaml", `
dst_ip: "239.1.1.1"
src_ip: "192.168.0.1"
format_index: 0
rate_fps: 24
sessions: 1
ptp_addr_mode: "u"
ptp_step_mode: "o"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadDstIP(t *testing.T) {
	path := writeTemp(t, "bad2.yaml", `
dst_ip: "not-an-ip"
src_ip: "192.168.0.1"
format_index: 0
rate_fps: 25
sessions: 1
ptp_addr_mode: "u"
ptp_step_mode: "o"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadPCIPortsReadsEachSection(t *testing.T) {
	path := writeTemp(t, "ports.ini", `
[port0]
pci_addr = 0000:3b:00.0
numa = 0

[port1]
pci_addr = 0000:3b:00.1
numa = 0
`)
	ports, err := LoadPCIPorts(path)
	require.NoError(t, err)
	require.Len(t, ports, 2)
	require.Equal(t, "0000:3b:00.0", ports[0].PCIAddr)
}
