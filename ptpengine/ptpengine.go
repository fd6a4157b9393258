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

// Package ptpengine implements a slave-only IEEE 1588v2 engine: the
// Announce/Sync/Follow-Up/Delay-Req/Delay-Resp state machine, HPET
// frequency calibration and the clock-source indirection every pacing
// and timestamping call in the rest of the module reads through
// (spec.md §4.5).
package ptpengine

import (
	"net"
	"time"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/ptp/protocol"
)

// AddrMode selects multicast or unicast transport for the Delay-Req/Resp
// exchange.
type AddrMode uint8

const (
	AddrModeMulticast AddrMode = iota
	AddrModeUnicast
)

func (m AddrMode) String() string {
	if m == AddrModeUnicast {
		return "unicast"
	}
	return "multicast"
}

// StepMode selects one-step (origin timestamp carried in Sync) or
// two-step (origin timestamp deferred to a Follow-Up) master behavior.
type StepMode uint8

const (
	StepModeOneStep StepMode = iota
	StepModeTwoStep
)

func (m StepMode) String() string {
	if m == StepModeOneStep {
		return "one-step"
	}
	return "two-step"
}

// MasterChooseMode selects which Announce a slave with no configured
// master identity locks onto.
type MasterChooseMode uint8

const (
	MasterChooseFirstKnown MasterChooseMode = iota
	MasterChooseBest
	MasterChooseUserSet
)

// SlaveState mirrors the lifecycle a slave port moves through from cold
// start to a steady locked state.
type SlaveState uint8

const (
	StateUninitialized SlaveState = iota
	StateInitialized
	StateSyncReceived
	StateLocked
)

func (s SlaveState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateSyncReceived:
		return "sync_received"
	case StateLocked:
		return "locked"
	default:
		return "uninitialized"
	}
}

// PortIdentity derives a PTP PortIdentity the way every slave in this
// engine identifies itself on the wire: the interface MAC folded into an
// EUI-64 clock identity (protocol.NewClockIdentity), port number fixed at
// 1 (the module never exposes more than one PTP port per NIC).
func PortIdentity(mac net.HardwareAddr) (protocol.PortIdentity, error) {
	id, err := protocol.NewClockIdentity(mac)
	if err != nil {
		return protocol.PortIdentity{}, err
	}
	return protocol.PortIdentity{ClockIdentity: id, PortNumber: 1}, nil
}

// fourTimestamps is the IEEE 1588 four-timestamp exchange recorded across
// one Sync/Follow-Up/Delay-Req/Delay-Resp cycle.
type fourTimestamps struct {
	t1, t2, t3, t4 time.Time
	t2HPet, t3HPet uint64
	have1, have2, have3, have4 bool
}

func (f *fourTimestamps) reset() {
	*f = fourTimestamps{}
}

func (f *fourTimestamps) ready() bool {
	return f.have1 && f.have2 && f.have3 && f.have4
}
