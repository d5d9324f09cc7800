//go:build !linux && !darwin

package placement

import "runtime"

// detectTopologyOS is the fallback for any GOOS without a dedicated
// backend: a single synthetic socket containing runtime.NumCPU() CPUs, per
// spec's "otherwise present a single synthetic socket" fallback.
func detectTopologyOS() Topology {
	n := runtime.NumCPU()
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return Topology{
		TotalLogical:  n,
		TotalPhysical: n,
		SocketCount:   1,
		AllCPUIDs:     ids,
		AvailableCPUs: ids,
		Sockets: []SocketInfo{{
			SocketID:      0,
			LogicalCores:  n,
			PhysicalCores: n,
			LogicalCPUIDs: ids,
			AvailableCPUs: ids,
		}},
	}
}

func applyAffinityOS(cpus []int) error { return nil }

func applyNUMAPolicyOS(mode int, nodeMask uint64) error { return nil }

func verifyAllThreadsAffinitySubsetOS(allowed []int) error { return nil }

func verifyBufferPagesOnNodesOS(allowedNodes []int, minRatio float64) error { return nil }
