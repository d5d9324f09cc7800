//go:build darwin

package placement

import (
	"golang.org/x/sys/unix"
)

func sysctlUint64(name string) (uint64, bool) {
	v, err := unix.SysctlUint32(name)
	if err != nil {
		return 0, false
	}
	return uint64(v), true
}

// detectTopologyOS mirrors detect_macos(): sysctl-based discovery only, no
// affinity application (Darwin has no sched_setaffinity equivalent exposed
// to userspace the way Linux does).
func detectTopologyOS() Topology {
	logical, ok := sysctlUint64("hw.logicalcpu")
	if !ok {
		logical = 1
	}
	physical, ok := sysctlUint64("hw.physicalcpu")
	if !ok {
		physical = logical
	}

	ids := make([]int, logical)
	for i := range ids {
		ids[i] = i
	}

	return Topology{
		TotalLogical:  int(logical),
		TotalPhysical: int(physical),
		SocketCount:   1,
		AllCPUIDs:     ids,
		AvailableCPUs: ids,
		Sockets: []SocketInfo{{
			SocketID:      0,
			LogicalCores:  int(logical),
			PhysicalCores: int(physical),
			LogicalCPUIDs: ids,
			AvailableCPUs: ids,
		}},
	}
}

// applyAffinityOS is a discovery-and-log no-op on Darwin, matching the
// original's detect_macos scope (topology discovery only; no pinning).
func applyAffinityOS(cpus []int) error { return nil }

func applyNUMAPolicyOS(mode int, nodeMask uint64) error { return nil }

func verifyAllThreadsAffinitySubsetOS(allowed []int) error { return nil }

func verifyBufferPagesOnNodesOS(allowedNodes []int, minRatio float64) error { return nil }
