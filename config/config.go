// Package config reads the CLI-facing configuration surface the core
// consumes (spec.md §6 "CLI"): static, restart-only options from a YAML
// file, and the PCI port table from an INI file the way legacy NIC
// inventories are commonly kept.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/go-ini/ini"
	yaml "gopkg.in/yaml.v2"
)

// AddrMode is the PTP address mode CLI surface, `{u,m}`.
type AddrMode string

const (
	AddrModeUnicast   AddrMode = "u"
	AddrModeMulticast AddrMode = "m"
)

// StepMode is the PTP step mode CLI surface, `{o,t}`.
type StepMode string

const (
	StepModeOneStep StepMode = "o"
	StepModeTwoStep StepMode = "t"
)

// BufferFormat is the consumer/producer frame buffer format CLI surface.
type BufferFormat string

const (
	BufferFormatRGBA   BufferFormat = "rgba"
	BufferFormatYUV10BE BufferFormat = "yuv10be"
)

// Static is the set of options that require a process restart to change:
// destination MAC/IPv4, source IPv4, UDP base port, format index,
// interlace flag, rate, session count, PTP master clock id/address
// mode/step mode, EBU-check flag, log level and buffer format (spec.md
// §6 "CLI").
type Static struct {
	DstMAC      string       `yaml:"dst_mac"`
	DstIP       net.IP       `yaml:"-"`
	DstIPStr    string       `yaml:"dst_ip"`
	SrcIP       net.IP       `yaml:"-"`
	SrcIPStr    string       `yaml:"src_ip"`
	UDPBasePort int          `yaml:"udp_base_port"`
	FormatIndex int          `yaml:"format_index"` // 0..5 = 720p/1080p/2160p x intel/all prefix
	Interlaced  bool         `yaml:"interlaced"`
	RateFPS     int          `yaml:"rate_fps"` // {25, 29, 50, 59}
	Sessions    int          `yaml:"sessions"`
	PTPMasterID string       `yaml:"ptp_master_id"`
	PTPAddrMode AddrMode     `yaml:"ptp_addr_mode"`
	PTPStepMode StepMode     `yaml:"ptp_step_mode"`
	EBUCheck    bool         `yaml:"ebu_check"`
	LogLevel    string       `yaml:"log_level"`
	BufferFmt   BufferFormat `yaml:"buffer_format"`
}

// Load reads and validates a Static config from a YAML file at path.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var s Static
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	s.DstIP = net.ParseIP(s.DstIPStr)
	s.SrcIP = net.ParseIP(s.SrcIPStr)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Static) validate() error {
	if s.DstIP == nil {
		return fmt.Errorf("config: invalid dst_ip %q", s.DstIPStr)
	}
	if s.SrcIP == nil {
		return fmt.Errorf("config: invalid src_ip %q", s.SrcIPStr)
	}
	if s.FormatIndex < 0 || s.FormatIndex > 5 {
		return fmt.Errorf("config: format_index %d out of range 0..5", s.FormatIndex)
	}
	switch s.RateFPS {
	case 25, 29, 50, 59:
	default:
		return fmt.Errorf("config: unsupported rate_fps %d", s.RateFPS)
	}
	if s.Sessions <= 0 {
		return fmt.Errorf("config: sessions must be positive, got %d", s.Sessions)
	}
	if s.PTPAddrMode != AddrModeUnicast && s.PTPAddrMode != AddrModeMulticast {
		return fmt.Errorf("config: unknown ptp_addr_mode %q", s.PTPAddrMode)
	}
	if s.PTPStepMode != StepModeOneStep && s.PTPStepMode != StepModeTwoStep {
		return fmt.Errorf("config: unknown ptp_step_mode %q", s.PTPStepMode)
	}
	return nil
}

// PCIPort is one NIC port entry from the PCI port table.
type PCIPort struct {
	Name    string
	PCIAddr string
	NUMA    int
}

// LoadPCIPorts reads the PCI port identifier table (one INI section per
// port) from an INI file, the format legacy NIC inventories ship in.
func LoadPCIPorts(path string) ([]PCIPort, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load PCI port table %s: %w", path, err)
	}
	var ports []PCIPort
	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		ports = append(ports, PCIPort{
			Name:    sec.Name(),
			PCIAddr: sec.Key("pci_addr").String(),
			NUMA:    sec.Key("numa").MustInt(0),
		})
	}
	return ports, nil
}
