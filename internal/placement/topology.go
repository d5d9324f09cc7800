// Package placement discovers CPU topology and applies deterministic CPU
// and (best-effort) NUMA memory placement before any ONNX Runtime session
// or tile worker pool is created, mirroring the C++ implementation's
// affinity-then-runtime-init ordering requirement.
//
// Apply must run before constructing a Detector: the facade's
// ApplyRuntimePolicy wraps this package's Apply and is documented as a
// once-per-process, early call.
package placement

import (
	"fmt"
	"io"
)

// SocketInfo summarizes one CPU package (socket).
type SocketInfo struct {
	SocketID      int // -1 if unknown
	LogicalCores  int
	PhysicalCores int
	LogicalCPUIDs []int
	AvailableCPUs []int
	CoreSiblings  [][]int
}

// Topology is a process-aware machine topology summary.
type Topology struct {
	TotalLogical  int
	TotalPhysical int
	SocketCount   int
	AllCPUIDs     []int
	AvailableCPUs []int
	Sockets       []SocketInfo
}

// DetectTopology returns the current process's CPU topology, using the
// GOOS-specific backend (topology_linux.go, topology_darwin.go, or the
// topology_other.go single-synthetic-socket fallback).
func DetectTopology() Topology {
	return detectTopologyOS()
}

// PrintTopology writes a human-readable topology summary to w.
func PrintTopology(w io.Writer, t Topology) {
	fmt.Fprintf(w, "topology: %d logical, %d physical, %d socket(s)\n", t.TotalLogical, t.TotalPhysical, t.SocketCount)
	for _, s := range t.Sockets {
		fmt.Fprintf(w, "  socket %d: %d logical (%d physical), %d available\n",
			s.SocketID, s.LogicalCores, s.PhysicalCores, len(s.AvailableCPUs))
	}
}

// physicalFirstOrder orders cpus so that one CPU per physical core is
// listed before any SMT sibling, given siblings grouped by physical core.
func physicalFirstOrder(siblings [][]int) []int {
	var primary, secondary []int
	for _, group := range siblings {
		for i, cpu := range group {
			if i == 0 {
				primary = append(primary, cpu)
			} else {
				secondary = append(secondary, cpu)
			}
		}
	}
	return append(primary, secondary...)
}

// selectCPUs chooses up to n CPUs from topology, preferring a single socket
// able to host all of them, else filling sockets in topology order until n
// CPUs are chosen, physical-core-first within each socket.
func selectCPUs(t Topology, n int) []int {
	if n <= 0 {
		return nil
	}
	for _, s := range t.Sockets {
		ordered := physicalFirstOrder(s.CoreSiblings)
		if len(ordered) == 0 {
			ordered = s.AvailableCPUs
		}
		if len(ordered) >= n {
			return ordered[:n]
		}
	}

	var out []int
	for _, s := range t.Sockets {
		ordered := physicalFirstOrder(s.CoreSiblings)
		if len(ordered) == 0 {
			ordered = s.AvailableCPUs
		}
		for _, cpu := range ordered {
			if len(out) >= n {
				return out
			}
			out = append(out, cpu)
		}
	}
	return out
}
