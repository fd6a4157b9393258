// st2110d is the core's standalone daemon entry point: it loads the
// static CLI config and PCI port table (spec.md §6), stands up a Device
// with its sessions, wires the TPRS scheduler, PTP engine, EBU monitor,
// housekeeping thread and Prometheus exporter together, then paces or
// ingests media until signaled to stop.
package main

import (
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/cmd/st2110d/cmd"
)

func main() {
	cmd.Execute()
}
