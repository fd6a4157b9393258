package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/config"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/ebu"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/housekeeping"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/metrics"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/phc"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/ptpengine"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rxpipeline"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/scheduler"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/stats"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/txpipeline"
)

// schedulerTickInterval is how often the TPRS scheduler's RunTick drains
// every session ring, independent of the host's own NIC rate-limiter
// tick (spec.md §4.3).
const schedulerTickInterval = time.Millisecond

// formatPreset is one of the six format_index choices spec.md §6's CLI
// surface names: 720p/1080p/2160p crossed with the Intel dual-line and
// plain RFC 4175 single-line framings.
type formatPreset struct {
	vscan  rtp.Vscan
	pktFmt rtp.PktFmt
}

var formatPresets = [6]formatPreset{
	{rtp.Vscan720p, rtp.PktFmtIntelDualLine},
	{rtp.Vscan720p, rtp.PktFmtOtherSingleLine},
	{rtp.Vscan1080p, rtp.PktFmtIntelDualLine},
	{rtp.Vscan1080p, rtp.PktFmtOtherSingleLine},
	{rtp.Vscan2160p, rtp.PktFmtIntelDualLine},
	{rtp.Vscan2160p, rtp.PktFmtOtherSingleLine},
}

// interlacedVariant maps a progressive Vscan to its interlaced twin, used
// when the config's interlaced flag is set.
func interlacedVariant(v rtp.Vscan) rtp.Vscan {
	switch v {
	case rtp.Vscan720p:
		return rtp.Vscan720i
	case rtp.Vscan1080p:
		return rtp.Vscan1080i
	case rtp.Vscan2160p:
		return rtp.Vscan2160i
	default:
		return v
	}
}

// rateFraction maps the CLI's rate_fps shorthand to an exact rate
// num/den, the fractional frame rates being NTSC-family (29.97/59.94).
func rateFraction(fps int) (num, den int, err error) {
	switch fps {
	case 25:
		return 25, 1, nil
	case 29:
		return 30000, 1001, nil
	case 50:
		return 50, 1, nil
	case 59:
		return 60000, 1001, nil
	default:
		return 0, 0, fmt.Errorf("st2110d: unsupported rate_fps %d", fps)
	}
}

func run(cfgPath, portsPath, ifaceName, metricsAddr, mode string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	ConfigureVerbosity(cfg.LogLevel)

	if portsPath != "" {
		ports, err := config.LoadPCIPorts(portsPath)
		if err != nil {
			return err
		}
		log.Infof("st2110d: loaded %d PCI port table entries", len(ports))
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return fmt.Errorf("st2110d: resolve interface %s: %w", ifaceName, err)
	}

	preset := formatPresets[cfg.FormatIndex]
	vscan := preset.vscan
	if cfg.Interlaced {
		vscan = interlacedVariant(vscan)
	}
	rateNum, rateDen, err := rateFraction(cfg.RateFPS)
	if err != nil {
		return err
	}
	const linkGbps = 10.0
	videoFmt, err := session.StandardVideoFormat(vscan, preset.pktFmt, rateNum, rateDen, linkGbps)
	if err != nil {
		return fmt.Errorf("st2110d: build video format: %w", err)
	}

	deviceKind := session.DeviceSend
	if mode == "recv" {
		deviceKind = session.DeviceRecv
	}
	device, err := session.CreateDevice(deviceKind, ifaceName, linkGbps, float64(rateNum)/float64(rateDen))
	if err != nil {
		return fmt.Errorf("st2110d: create device: %w", err)
	}

	dir := session.DirectionProducer
	if mode == "recv" {
		dir = session.DirectionConsumer
	}
	sessions := make([]*session.Session, 0, cfg.Sessions)
	for i := 0; i < cfg.Sessions; i++ {
		s, err := device.CreateSession(dir, session.EssenceVideo, videoFmt)
		if err != nil {
			return fmt.Errorf("st2110d: create session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}
	log.Infof("st2110d: %s device on %s running %d session(s) at %dx%d@%d/%d", mode, ifaceName, len(sessions), videoFmt.Width, videoFmt.Height, rateNum, rateDen)

	metricsReg := metrics.NewRegistry()
	go func() {
		if err := metricsReg.Serve(metricsAddr); err != nil {
			log.Errorf("st2110d: metrics server stopped: %v", err)
		}
	}()

	dstMAC, err := net.ParseMAC(cfg.DstMAC)
	if err != nil {
		return fmt.Errorf("st2110d: parse dst_mac: %w", err)
	}
	ourIdentity, err := ptpengine.PortIdentity(iface.HardwareAddr)
	if err != nil {
		return fmt.Errorf("st2110d: derive PTP port identity: %w", err)
	}

	addrMode := ptpengine.AddrModeMulticast
	if cfg.PTPAddrMode == config.AddrModeUnicast {
		addrMode = ptpengine.AddrModeUnicast
	}
	stepMode := ptpengine.StepModeOneStep
	if cfg.PTPStepMode == config.StepModeTwoStep {
		stepMode = ptpengine.StepModeTwoStep
	}

	var hpetTicks uint64
	engine := ptpengine.NewEngine(ptpengine.Config{
		Our:        ourIdentity,
		Addr:       addrMode,
		Step:       stepMode,
		ChooseMode: ptpengine.MasterChooseFirstKnown,
		TXDelayReq: func(_ uint16) (time.Time, error) {
			// Wire protocol I/O for the Delay-Req transmit lives at the
			// out-of-scope NIC driver boundary (spec.md §1); this core
			// only times the back-off and records the send timestamp.
			return time.Now(), nil
		},
		HPETTicks: func() uint64 { return atomic.AddUint64(&hpetTicks, 1) },
		HWNow:     phcNow(ifaceName),
	})
	defer engine.Close()
	if err := engine.SetClockSource(ptpengine.ClockSourceHW); err != nil {
		log.Debugf("st2110d: no PHC on %s, staying on RTC clock source: %v", ifaceName, err)
	}

	gateway := ebu.GatewayNarrow
	monitors := make(map[int]*ebu.Monitor, len(sessions))
	if cfg.EBUCheck {
		for _, s := range sessions {
			trOffset := time.Duration(s.Format.TrOffsetNs())
			m := ebu.NewMonitor(s.ID, gateway, trOffset)
			sid := s.ID
			m.SetOnWindow(func(snaps map[string]ebu.Snapshot) {
				for cluster, snap := range snaps {
					metricsReg.SetEBUMax(sid, cluster, snap.Max)
				}
			})
			monitors[s.ID] = m
		}
	}

	var pendingIPs []net.IP
	if addrMode == ptpengine.AddrModeUnicast && cfg.DstIP != nil {
		pendingIPs = []net.IP{cfg.DstIP}
	}
	hk := housekeeping.NewThread(device, ifaceName, func() []net.IP { return pendingIPs }, func(ps housekeeping.ProcessStats) {
		log.Debugf("st2110d: housekeeping: cpu=%.1f%% rss=%d threads=%d fds=%d", ps.CPUPercent, ps.RSSBytes, ps.NumThreads, ps.NumFDs)
	})
	go hk.Run()
	defer hk.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metricsReg.SetPTPState(int(engine.State()))
			}
		}
	}()

	flows := make(map[int]session.FlowTuple, len(sessions))
	for i, s := range sessions {
		port := uint16(cfg.UDPBasePort + i)
		flows[s.ID] = session.FlowTuple{SrcIP: cfg.SrcIP, DstIP: cfg.DstIP, SrcPort: port, DstPort: port}
	}

	switch mode {
	case "send":
		go runSender(ctx, sessions, videoFmt, dstMAC, iface.HardwareAddr, flows, monitors, metricsReg)
	case "recv":
		go runReceiver(ctx, sessions, videoFmt, flows, monitors, metricsReg)
	default:
		return fmt.Errorf("st2110d: unknown mode %q, want send or recv", mode)
	}

	if supported, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("st2110d: sd_notify failed: %v", err)
	} else if !supported {
		log.Debug("st2110d: sd_notify not supported (NOTIFY_SOCKET unset)")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	s := <-sigCh
	log.Infof("st2110d: received %v, shutting down", s)
	cancel()

	printShutdownSummary(sessions)
	stats.WriteTable(os.Stdout, stats.Collect(sessions))
	return nil
}

var (
	okString   = color.GreenString("[ OK ]")
	failString = color.RedString("[FAIL]")
)

// phcNow returns a clock-source reader backed by iface's PTP Hardware
// Clock device (/dev/ptpN), the way a real NIC's timesync register would
// be read; on hosts with no PHC (the common case for a loopback nic.Sim)
// the first failed read logs at Debug and every failed read returns the
// zero time.
func phcNow(iface string) func() time.Time {
	var warned atomic.Bool
	return func() time.Time {
		t, err := phc.Time(iface, phc.MethodSyscallClockGettime)
		if err != nil {
			if !warned.Swap(true) {
				log.Debugf("st2110d: reading PHC on %s: %v", iface, err)
			}
			return time.Time{}
		}
		return t
	}
}

// printShutdownSummary prints one colorized PASS/FAIL line per session
// ahead of the full drop-counter table, the way sa53fw reports its
// per-step results; colors are suppressed when stdout isn't a terminal.
func printShutdownSummary(sessions []*session.Session) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
	for _, s := range sessions {
		var total uint64
		for _, v := range s.Drops.Snapshot() {
			total += v
		}
		status := okString
		if total > 0 {
			status = failString
		}
		fmt.Printf("%s session %d: %d drops\n", status, s.ID, total)
	}
}

// runSender paces every session's synthesized frames through the TPRS
// scheduler onto a loopback nic.Sim, the stand-in for the out-of-scope
// kernel-bypass driver (spec.md §1).
func runSender(ctx context.Context, sessions []*session.Session, f session.Format, dstMAC, srcMAC net.HardwareAddr, flows map[int]session.FlowTuple, monitors map[int]*ebu.Monitor, reg *metrics.Registry) {
	sim := nic.NewSim()
	rings := make(map[int]*scheduler.Ring, len(sessions))
	budgets := make(map[int]*scheduler.Budget, len(sessions))
	builders := make(map[int]*txpipeline.Builder, len(sessions))

	bytesPerSec := int64(f.LinkGbps * 1e9 / 8)
	pacers := make(map[int]*ebu.PacingTracker, len(sessions))
	for _, s := range sessions {
		tmpl, err := txpipeline.BuildHeaderTemplate(srcMAC, dstMAC, flows[s.ID], f.PktFmt.DualLine())
		if err != nil {
			log.Errorf("st2110d: session %d: build header template: %v", s.ID, err)
			continue
		}
		builders[s.ID] = txpipeline.NewBuilder(s, tmpl, uint32(s.ID))
		rings[s.ID] = scheduler.NewRing(1 << 10)
		budgets[s.ID] = scheduler.NewBudget(bytesPerSec, int64(time.Second/schedulerTickInterval))
		pacers[s.ID] = ebu.NewPacingTracker(f.TPRSNs())
	}

	lcore := &scheduler.Lcore{ID: 0, Rings: rings, Budget: budgets, Rotor: scheduler.NewRotor([6]byte{srcMAC[0], srcMAC[1], srcMAC[2], srcMAC[3], srcMAC[4], srcMAC[5]}, len(sessions))}
	sched := scheduler.NewScheduler(sim, 0, []*scheduler.Lcore{lcore})

	frameTick := time.NewTicker(time.Duration(f.FrameTimeNs))
	schedTick := time.NewTicker(schedulerTickInterval)
	defer frameTick.Stop()
	defer schedTick.Stop()

	frameBuf := make([]byte, f.Height*f.LineSize())
	lastEpoch := make(map[int]int64, len(sessions))
	for _, s := range sessions {
		lastEpoch[s.ID] = -1
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-schedTick.C:
			if err := sched.RunTick(ctx, time.Now()); err != nil {
				log.Errorf("st2110d: scheduler tick failed: %v", err)
			}
		case now := <-frameTick.C:
			for _, s := range sessions {
				ts, epoch, outcome := txpipeline.FrameTimestamp(now, f, lastEpoch[s.ID])
				boundary := time.Unix(0, epoch*f.FrameTimeNs+f.TrOffsetNs())
				switch outcome {
				case txpipeline.EpochAdvanced:
					txpipeline.SleepUntilTROffset(boundary, func() bool {
						select {
						case <-ctx.Done():
							return true
						default:
							return false
						}
					})
				case txpipeline.EpochLate:
					log.Debugf("st2110d: session %d: epoch %d already past tr_offset, sending without waiting", s.ID, epoch)
				}
				lastEpoch[s.ID] = epoch

				s.WithLock(func() {
					s.ProdBuf = frameBuf
					s.FrameSize = len(frameBuf)
				})
				b := builders[s.ID]
				if b == nil {
					continue
				}
				pkts, err := b.BuildFrame(ts)
				if err != nil {
					log.Errorf("st2110d: session %d: build frame: %v", s.ID, err)
					continue
				}
				sendStart := time.Now()
				ring := rings[s.ID]
				for _, p := range pkts {
					p.TxTime = boundary.UnixNano()
					if !ring.Enqueue(p) {
						reg.IncDrop(s.ID, "no_frame_buffer")
					}
					if m, ok := monitors[s.ID]; ok {
						cinst, vrx := pacers[s.ID].Observe(time.Now())
						m.ObservePacket(cinst, vrx)
					}
				}
				if m, ok := monitors[s.ID]; ok {
					fpt := sendStart.Sub(boundary)
					m.ObserveFrame(fpt, time.Since(now), ts)
				}
			}
		}
	}
}

// wireHeaderSize is the fixed Ethernet+IPv4+UDP prefix txpipeline renders
// ahead of every RTP header (spec.md §4.2); the receive side strips
// exactly this many bytes before handing a packet to Ingest, the software
// stand-in for the 5-tuple flow steering a real NIC would have already
// applied before delivering to a per-session queue (spec.md §1).
const wireHeaderSize = txpipeline.EthernetHeaderSize + txpipeline.IPv4HeaderSize + txpipeline.UDPHeaderSize

// parsePacketFlow reads the fixed-offset IPv4/UDP fields of a packet
// built with the matching layout (every packet this core's own TX side
// ever renders) and returns its 5-tuple plus the RTP-only header Ingest
// expects.
func parsePacketFlow(pkt *nic.Packet) (session.FlowTuple, *nic.Packet, bool) {
	h := pkt.Header
	if len(h) < wireHeaderSize {
		return session.FlowTuple{}, nil, false
	}
	ipOff := txpipeline.EthernetHeaderSize
	udpOff := ipOff + txpipeline.IPv4HeaderSize
	flow := session.FlowTuple{
		SrcIP:   net.IP(h[ipOff+12 : ipOff+16]),
		DstIP:   net.IP(h[ipOff+16 : ipOff+20]),
		SrcPort: uint16(h[udpOff])<<8 | uint16(h[udpOff+1]),
		DstPort: uint16(h[udpOff+2])<<8 | uint16(h[udpOff+3]),
	}
	return flow, &nic.Packet{Header: h[wireHeaderSize:], Payload: pkt.Payload}, true
}

// runReceiver drains a loopback nic.Sim RX queue and demultiplexes
// packets to each session's ingest state machine. nic.Sim stands in for
// the out-of-scope kernel-bypass driver (spec.md §1); a standalone recv
// instance only observes traffic once Sim.Connect binds it to a sender's
// Sim, which this daemon does not do across processes.
func runReceiver(ctx context.Context, sessions []*session.Session, f session.Format, flows map[int]session.FlowTuple, monitors map[int]*ebu.Monitor, reg *metrics.Registry) {
	sim := nic.NewSim()
	demux := rxpipeline.NewDemux()
	pacers := make(map[int]*ebu.PacingTracker, len(sessions))
	for _, s := range sessions {
		ing := rxpipeline.NewIngest(s)
		ing.DualLine = f.PktFmt.DualLine()
		demux.Register(flows[s.ID], ing)
		pacers[s.ID] = ebu.NewPacingTracker(f.TPRSNs())
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	frameStart := make(map[int]time.Time, len(sessions))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pkts, err := sim.RXBurst(0, 64)
			if err != nil {
				log.Errorf("st2110d: RXBurst failed: %v", err)
				continue
			}
			for _, raw := range pkts {
				flow, rtpPkt, ok := parsePacketFlow(raw)
				if !ok {
					continue
				}
				ing, ok := demux.Lookup(flow)
				if !ok {
					continue
				}
				sid := ing.Sess.ID
				recvTime := time.Now()
				if _, started := frameStart[sid]; !started {
					frameStart[sid] = recvTime
				}
				if m, ok := monitors[sid]; ok {
					cinst, vrx := pacers[sid].Observe(recvTime)
					m.ObservePacket(cinst, vrx)
				}

				fc, err := ing.Packet(rtpPkt, false)
				if err != nil || fc == nil {
					continue
				}
				if fc.Dropped {
					reg.IncDrop(sid, "incomplete_frame")
				}
				if m, ok := monitors[sid]; ok {
					elapsed := recvTime.Sub(frameStart[sid])
					m.ObserveFrame(elapsed, elapsed, ing.Sess.Ctx.Timestamp)
				}
				delete(frameStart, sid)
			}
		}
	}
}
