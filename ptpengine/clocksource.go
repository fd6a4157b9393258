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
	"math"
	"sync/atomic"
	"time"
)

// ClockSourceKind names the installable clock sources StSetClockSource
// switched between.
type ClockSourceKind uint8

const (
	// ClockSourceHW reads the NIC's hardware timesync register directly.
	ClockSourceHW ClockSourceKind = iota
	// ClockSourceHPET derives PTP time from a free-running counter plus
	// a continuously-refined offset/period pair.
	ClockSourceHPET
	// ClockSourceRTC falls back to the system real-time clock.
	ClockSourceRTC
)

// ClockSource is the indirection every pacing and timestamping call in
// the module reads the current PTP time through. Exactly one kind is
// active at a time; Engine swaps it via SetClockSource.
type ClockSource interface {
	Now() time.Time
	Kind() ClockSourceKind
}

// hwClockSource reads a NIC hardware timesync register. The register
// read itself is the out-of-scope kernel-bypass NIC driver's job; this
// wraps whatever function the driver handed us at construction time.
type hwClockSource struct {
	read func() time.Time
}

func (h hwClockSource) Now() time.Time        { return h.read() }
func (h hwClockSource) Kind() ClockSourceKind { return ClockSourceHW }

// NewHWClockSource wraps a NIC-provided hardware-timestamp reader as a
// ClockSource.
func NewHWClockSource(read func() time.Time) ClockSource {
	return hwClockSource{read: read}
}

// hpetClockSource derives PTP time from a monotonic tick counter, an
// offset (epochRteAdj) and a continuously refined period (hpetPeriod),
// exactly the `epochRteAdj + hpetPeriod * hpet_ticks` formula from
// spec.md §4.5.
type hpetClockSource struct {
	ticks      func() uint64
	periodNs   *atomic.Uint64 // bits of a float64 holding ns per tick (math.Float64bits)
	epochAdjNs *atomic.Int64
	base       uint64 // tick value time.Time zero-point was captured against
}

func newHPETClockSource(ticks func() uint64, initialPeriodNs float64) *hpetClockSource {
	h := &hpetClockSource{
		ticks:      ticks,
		periodNs:   new(atomic.Uint64),
		epochAdjNs: new(atomic.Int64),
	}
	h.setPeriod(initialPeriodNs)
	h.base = ticks()
	return h
}

func (h *hpetClockSource) setPeriod(ns float64) {
	h.periodNs.Store(math.Float64bits(ns))
}

func (h *hpetClockSource) period() float64 {
	return math.Float64frombits(h.periodNs.Load())
}

func (h *hpetClockSource) Now() time.Time {
	elapsedTicks := h.ticks() - h.base
	elapsedNs := float64(elapsedTicks) * h.period()
	adj := h.epochAdjNs.Load()
	return time.Unix(0, int64(elapsedNs)+adj)
}

func (h *hpetClockSource) Kind() ClockSourceKind { return ClockSourceHPET }

// rtcClockSource is the coarse fallback: the host's own wall clock.
type rtcClockSource struct{}

func (rtcClockSource) Now() time.Time        { return time.Now() }
func (rtcClockSource) Kind() ClockSourceKind { return ClockSourceRTC }

// NewRTCClockSource returns the system-clock fallback ClockSource.
func NewRTCClockSource() ClockSource { return rtcClockSource{} }
