/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ptpengine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/ptp/protocol"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/servo"
)

// hpetCalibrationWindow is how much accumulated HPET delta triggers a
// hpetPeriod recalibration (spec.md §4.5: "whenever accumulated HPET
// delta exceeds 10s").
const hpetCalibrationWindow = 10 * time.Second

// delayReqBaseBackoff/delayReqJitterSteps/delayReqJitterStep implement
// `pauseToSendDelayReq`: 50us plus a random 0-9 x 50us jitter.
const (
	delayReqBaseBackoff  = 50 * time.Microsecond
	delayReqJitterSteps  = 10
	delayReqJitterStep   = 50 * time.Microsecond
)

// Config parameterizes one Engine instance.
type Config struct {
	Our          protocol.PortIdentity
	Addr         AddrMode
	Step         StepMode
	ChooseMode   MasterChooseMode
	WantedMaster *protocol.ClockIdentity // only consulted when ChooseMode == MasterChooseUserSet

	// TXDelayReq is called by the delay-req goroutine once the computed
	// back-off has elapsed; it must actually put the packet on the wire
	// and return the hardware (or software) send timestamp t3.
	TXDelayReq func(seq uint16) (time.Time, error)

	// HPETTicks reads the free-running counter backing the HPET clock
	// source; nil disables HPET clock-source support.
	HPETTicks func() uint64
	// HWNow reads the NIC hardware timesync clock; nil disables the
	// hardware clock source.
	HWNow func() time.Time
}

// Engine is a slave-only IEEE 1588v2 port: it consumes Announce / Sync /
// Follow-Up / Delay-Resp messages, drives the delay-req back-off, and
// keeps a PiServo disciplined against the computed offset (spec.md
// §4.5).
type Engine struct {
	cfg Config

	mu     sync.Mutex
	state  SlaveState
	master protocol.PortIdentity
	haveMaster bool

	ts fourTimestamps

	syncSeqID    uint16
	delayReqSeqID uint16

	servo *servo.PiServo

	hpetPeriodNs     float64
	epochAdjNs       int64
	accumHPETDeltaNs float64
	accumHPETTicks   float64
	lastHPETTicks    uint64
	haveLastHPET     bool

	active    ClockSource
	hw        ClockSource
	hpet      *hpetClockSource
	rtc       ClockSource

	lastPriority uint8

	recentMasterResponses int // contention estimate for pauseToSendDelayReq

	stop chan struct{}
}

// NewEngine builds an Engine with a default-tuned PiServo (the same
// defaults facebook/time's ptp4l-facing clients use) and installs the RTC
// clock source, which stays active until SetClockSource installs another;
// receiving Sync does not change it.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg:          cfg,
		hpetPeriodNs: 1.0,
		rtc:          NewRTCClockSource(),
		servo:        servo.NewPiServo(servo.DefaultServoConfig(), servo.DefaultPiServoCfg(), 0),
		stop:         make(chan struct{}),
	}
	e.active = e.rtc
	if cfg.HWNow != nil {
		e.hw = NewHWClockSource(cfg.HWNow)
	}
	if cfg.HPETTicks != nil {
		e.hpet = newHPETClockSource(cfg.HPETTicks, e.hpetPeriodNs)
	}
	return e
}

// Now returns the current PTP time as seen through whichever clock
// source is presently installed (StPtpGetTime's Go analogue).
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	src := e.active
	e.mu.Unlock()
	return src.Now()
}

// SetClockSource installs the named clock source as the one Now() reads
// through, the Go analogue of StSetClockSource.
func (e *Engine) SetClockSource(kind ClockSourceKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch kind {
	case ClockSourceHW:
		if e.hw == nil {
			return fmt.Errorf("ptpengine: no hardware clock source configured")
		}
		e.active = e.hw
	case ClockSourceHPET:
		if e.hpet == nil {
			return fmt.Errorf("ptpengine: no HPET clock source configured")
		}
		e.active = e.hpet
	case ClockSourceRTC:
		e.active = e.rtc
	default:
		return fmt.Errorf("ptpengine: unknown clock source %d", kind)
	}
	return nil
}

// State reports the slave's current lifecycle state.
func (e *Engine) State() SlaveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HandleAnnounce processes a received Announce message. A new master
// identity is only accepted per the configured ChooseMode; once accepted
// the slave transitions to Initialized (spec.md §4.5).
func (e *Engine) HandleAnnounce(a *protocol.Announce) {
	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := a.Header.SourcePortIdentity
	if e.haveMaster && candidate == e.master {
		return
	}
	switch e.cfg.ChooseMode {
	case MasterChooseUserSet:
		if e.cfg.WantedMaster == nil || candidate.ClockIdentity != *e.cfg.WantedMaster {
			return
		}
	case MasterChooseFirstKnown:
		if e.haveMaster {
			return
		}
	case MasterChooseBest:
		if e.haveMaster && a.GrandmasterPriority1 >= e.lastKnownPriority() {
			return
		}
	}
	e.master = candidate
	e.haveMaster = true
	e.lastPriority = a.GrandmasterPriority1
	if e.state == StateUninitialized {
		e.state = StateInitialized
	}
	log.Debugf("ptpengine: accepted master %s", e.master)
}

func (e *Engine) lastKnownPriority() uint8 { return e.lastPriority }

// HandleSync processes a Sync message, recording t2 (the hardware or
// software RX timestamp the caller captured) and the HPET snapshot taken
// at the same moment.
func (e *Engine) HandleSync(s *protocol.SyncDelayReq, rxTime time.Time, hpetTicks uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.fromMaster(s.Header.SourcePortIdentity) {
		return
	}
	e.ts.reset()
	e.ts.t2 = rxTime
	e.ts.have2 = true
	e.ts.t2HPet = hpetTicks
	e.syncSeqID = s.Header.SequenceID
	if e.state == StateInitialized {
		e.state = StateSyncReceived
	}
	if s.Header.FlagField&protocol.FlagTwoStep == 0 {
		e.ts.t1 = s.OriginTimestamp.Time()
		e.ts.have1 = true
		e.scheduleDelayReqLocked()
	}
}

// HandleFollowUp processes a Follow-Up message carrying t1 for a
// two-step master, then arms the delay-req back-off.
func (e *Engine) HandleFollowUp(f *protocol.FollowUp) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.fromMaster(f.Header.SourcePortIdentity) {
		return
	}
	if f.Header.SequenceID != e.syncSeqID {
		return
	}
	e.ts.t1 = f.PreciseOriginTimestamp.Time()
	e.ts.have1 = true
	e.scheduleDelayReqLocked()
}

// scheduleDelayReqLocked computes pauseToSendDelayReq and spawns the
// one-shot delay-req goroutine; mu must already be held.
func (e *Engine) scheduleDelayReqLocked() {
	if e.cfg.TXDelayReq == nil {
		return
	}
	backoff := delayReqBaseBackoff + time.Duration(rand.Intn(delayReqJitterSteps))*delayReqJitterStep
	backoff += time.Duration(e.recentMasterResponses) * delayReqJitterStep / 4
	seq := e.delayReqSeqID
	e.delayReqSeqID++
	go e.sendDelayReqAfter(backoff, seq)
}

func (e *Engine) sendDelayReqAfter(backoff time.Duration, seq uint16) {
	select {
	case <-time.After(backoff):
	case <-e.stop:
		return
	}
	t3, err := e.cfg.TXDelayReq(seq)
	if err != nil {
		log.Warnf("ptpengine: delay-req transmit failed: %v", err)
		return
	}
	e.mu.Lock()
	e.ts.t3 = t3
	e.ts.have3 = true
	e.ts.t3HPet = e.readHPET()
	e.mu.Unlock()
}

func (e *Engine) readHPET() uint64 {
	if e.cfg.HPETTicks == nil {
		return 0
	}
	return e.cfg.HPETTicks()
}

// HandleDelayResp processes a Delay-Resp, completing the four-timestamp
// exchange: verifies RequestingPortIdentity is ours, computes the offset
// and HPET delta, feeds the servo, and recalibrates hpetPeriod once
// enough HPET time has accumulated (spec.md §4.5).
func (e *Engine) HandleDelayResp(d *protocol.DelayResp) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.fromMaster(d.Header.SourcePortIdentity) {
		return nil
	}
	if d.RequestingPortIdentity != e.cfg.Our {
		return fmt.Errorf("ptpengine: delay-resp targeted a different port identity, dropping")
	}
	e.ts.t4 = d.ReceiveTimestamp.Time()
	e.ts.have4 = true
	e.recentMasterResponses++

	if !e.ts.ready() {
		return nil
	}

	offsetToMaster := (e.ts.t2.Sub(e.ts.t1) - e.ts.t4.Sub(e.ts.t3)) / 2
	e.servo.Sample(int64(offsetToMaster), uint64(e.ts.t2.UnixNano()))

	if e.hpet != nil && e.ts.t3HPet > e.ts.t2HPet {
		deltaHpetTicks := e.ts.t3HPet - e.ts.t2HPet
		deltaPtpNs := e.ts.t3.Sub(e.ts.t2)
		e.epochAdjNs += deltaPtpNs.Nanoseconds() - int64(float64(deltaHpetTicks)*e.hpetPeriodNs)
		e.hpet.epochAdjNs.Store(e.epochAdjNs)

		e.accumHPETDeltaNs += float64(deltaPtpNs.Nanoseconds())
		e.accumHPETTicks += float64(deltaHpetTicks)
		if time.Duration(e.accumHPETDeltaNs) >= hpetCalibrationWindow {
			e.hpetPeriodNs = e.accumHPETDeltaNs / e.accumHPETTicks
			e.hpet.setPeriod(e.hpetPeriodNs)
			e.accumHPETDeltaNs = 0
			e.accumHPETTicks = 0
		}
	}

	e.state = StateLocked
	e.ts.reset()
	return nil
}

func (e *Engine) fromMaster(id protocol.PortIdentity) bool {
	return e.haveMaster && id == e.master
}

// Close stops any in-flight delay-req back-off goroutine.
func (e *Engine) Close() {
	close(e.stop)
}
