package placement

import (
	"fmt"
	"log/slog"
	"os"
)

// NUMA memory policy modes, mirrored from the facade's NumaMemPolicy (this
// package cannot import the root package without an import cycle).
const (
	numaLatency = iota
	numaThroughput
	numaStrict
)

// Policy is the subset of the facade's RuntimePolicy this package consumes.
type Policy struct {
	OrtIntraThreads      int
	OrtInterThreads      int
	TileThreads          int
	SoftMemoryBind       bool
	NumaPolicy           int // numaLatency / numaThroughput / numaStrict
	SuppressForeignPools bool
}

func clampThreads(v int) int {
	if v > 0 {
		return v
	}
	return 1
}

// desiredConcurrency estimates peak concurrency from ORT intra/inter thread
// counts and the tile worker pool size: if both ORT pools run more than one
// thread, their sum is used as a conservative upper bound; otherwise the
// larger of the two is used. The tile pool's threads are added on top since
// tiling and ORT inference can run concurrently.
func desiredConcurrency(policy Policy) int {
	intra := clampThreads(policy.OrtIntraThreads)
	inter := clampThreads(policy.OrtInterThreads)
	tile := clampThreads(policy.TileThreads)

	var ortPeak int
	if intra > 1 && inter > 1 {
		ortPeak = intra + inter
	} else if intra > inter {
		ortPeak = intra
	} else {
		ortPeak = inter
	}
	return tile + ortPeak
}

// Apply binds the process to a deterministic set of CPUs sized for
// policy's estimated concurrency, optionally applies a best-effort soft
// NUMA memory policy, and (when verbose) logs topology and runs affinity
// diagnostics.
//
// Apply must run before any ONNX Runtime session is created and before any
// tile worker pool is constructed: both cache thread/affinity state at
// initialization and will not pick up a later change.
func Apply(policy Policy, verbose bool) error {
	desired := desiredConcurrency(policy)

	topo := DetectTopology()
	cpus := selectCPUs(topo, desired)

	if err := applyAffinityOS(cpus); err != nil {
		slog.Warn("placement: applying CPU affinity failed", "error", err)
	}

	if policy.SoftMemoryBind {
		var mask uint64
		for _, c := range cpus {
			if c < 64 {
				mask |= 1 << uint(c)
			}
		}
		if err := applyNUMAPolicyOS(policy.NumaPolicy, mask); err != nil {
			slog.Warn("placement: applying NUMA policy failed", "error", err)
		}
	}

	if verbose {
		PrintTopology(os.Stdout, topo)
	}

	if verbose {
		if err := verifyAllThreadsAffinitySubsetOS(cpus); err != nil {
			return fmt.Errorf("placement: affinity verification failed: %w", err)
		}
		if err := verifyBufferPagesOnNodesOS(nil, 0.95); err != nil {
			return fmt.Errorf("placement: NUMA page verification failed: %w", err)
		}
	}

	return nil
}
