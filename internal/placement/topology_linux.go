//go:build linux

package placement

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

const sysCPUDir = "/sys/devices/system/cpu"

func readIntFile(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseCPUList parses a Linux "list" format ("0-3,8,10-11") as seen in
// affinity masks and siblings files.
func parseCPUList(s string) []int {
	var out []int
	for _, part := range strings.Split(strings.TrimSpace(s), ",") {
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 == nil && err2 == nil {
				for v := lo; v <= hi; v++ {
					out = append(out, v)
				}
			}
			continue
		}
		if v, err := strconv.Atoi(part); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func onlineCPUIDs() []int {
	entries, err := os.ReadDir(sysCPUDir)
	if err != nil {
		return nil
	}
	var ids []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		n, err := strconv.Atoi(name[3:])
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	sort.Ints(ids)
	return ids
}

func cpuSocketID(cpu int) int {
	v, ok := readIntFile(filepath.Join(sysCPUDir, fmt.Sprintf("cpu%d/topology/physical_package_id", cpu)))
	if !ok {
		return -1
	}
	return v
}

func cpuCoreID(cpu int) int {
	v, ok := readIntFile(filepath.Join(sysCPUDir, fmt.Sprintf("cpu%d/topology/core_id", cpu)))
	if !ok {
		return cpu
	}
	return v
}

func cpuSiblings(cpu int) []int {
	b, err := os.ReadFile(filepath.Join(sysCPUDir, fmt.Sprintf("cpu%d/topology/thread_siblings_list", cpu)))
	if err != nil {
		return []int{cpu}
	}
	sibs := parseCPUList(string(b))
	if len(sibs) == 0 {
		return []int{cpu}
	}
	return sibs
}

func processAvailableCPUs() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	var out []int
	for cpu := 0; cpu < unix.CPU_SETSIZE; cpu++ {
		if set.IsSet(cpu) {
			out = append(out, cpu)
		}
	}
	return out
}

func detectTopologyOS() Topology {
	all := onlineCPUIDs()
	avail := processAvailableCPUs()
	if len(avail) == 0 {
		avail = all
	}
	availSet := make(map[int]bool, len(avail))
	for _, c := range avail {
		availSet[c] = true
	}

	bySocket := make(map[int]*SocketInfo)
	var socketOrder []int
	coreSeen := make(map[[2]int]bool) // (socket, core_id) -> seen

	for _, cpu := range all {
		sid := cpuSocketID(cpu)
		s, ok := bySocket[sid]
		if !ok {
			s = &SocketInfo{SocketID: sid}
			bySocket[sid] = s
			socketOrder = append(socketOrder, sid)
		}
		s.LogicalCores++
		s.LogicalCPUIDs = append(s.LogicalCPUIDs, cpu)
		if availSet[cpu] {
			s.AvailableCPUs = append(s.AvailableCPUs, cpu)
		}

		coreID := cpuCoreID(cpu)
		key := [2]int{sid, coreID}
		if !coreSeen[key] {
			coreSeen[key] = true
			s.PhysicalCores++
		}
	}

	sort.Ints(socketOrder)
	var sockets []SocketInfo
	var totalPhysical int
	for _, sid := range socketOrder {
		s := bySocket[sid]

		siblingGroups := make(map[int][]int)
		var groupOrder []int
		for _, cpu := range s.LogicalCPUIDs {
			coreID := cpuCoreID(cpu)
			if _, ok := siblingGroups[coreID]; !ok {
				groupOrder = append(groupOrder, coreID)
			}
			siblingGroups[coreID] = append(siblingGroups[coreID], cpu)
		}
		sort.Ints(groupOrder)
		for _, coreID := range groupOrder {
			group := cpuSiblings(siblingGroups[coreID][0])
			s.CoreSiblings = append(s.CoreSiblings, group)
		}

		totalPhysical += s.PhysicalCores
		sockets = append(sockets, *s)
	}

	return Topology{
		TotalLogical:  len(all),
		TotalPhysical: totalPhysical,
		SocketCount:   len(sockets),
		AllCPUIDs:     all,
		AvailableCPUs: avail,
		Sockets:       sockets,
	}
}

func applyAffinityOS(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		set.Set(c)
	}

	taskDirs, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return unix.SchedSetaffinity(0, &set)
	}
	var firstErr error
	for _, td := range taskDirs {
		tid, err := strconv.Atoi(td.Name())
		if err != nil {
			continue
		}
		if err := unix.SchedSetaffinity(tid, &set); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// applyNUMAPolicyOS is a best-effort soft memory policy application using
// the raw set_mempolicy(2) syscall (no pure-Go libnuma binding exists
// anywhere in the example corpus; cgo-wrapping libnuma would reintroduce a
// second cgo dependency beyond ONNX Runtime's own, which this module avoids).
func applyNUMAPolicyOS(mode int, nodeMask uint64) error {
	const (
		mplDefault  = 0
		mplPreferred = 1
		mplBind     = 2
		mplInterleave = 3
	)
	var sysMode int
	switch mode {
	case numaLatency:
		sysMode = mplPreferred
	case numaThroughput:
		sysMode = mplInterleave
	case numaStrict:
		sysMode = mplBind
	default:
		sysMode = mplDefault
	}

	maxNode := 64
	_, _, errno := unix.Syscall(unix.SYS_SET_MEMPOLICY, uintptr(sysMode), uintptr(unsafe.Pointer(&nodeMask)), uintptr(maxNode))
	if errno != 0 {
		return fmt.Errorf("set_mempolicy: %w", errno)
	}
	return nil
}

func verifyAllThreadsAffinitySubsetOS(allowed []int) error {
	allowedSet := make(map[int]bool, len(allowed))
	for _, c := range allowed {
		allowedSet[c] = true
	}

	taskDirs, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return nil
	}
	for _, td := range taskDirs {
		tid, err := strconv.Atoi(td.Name())
		if err != nil {
			continue
		}
		var set unix.CPUSet
		if err := unix.SchedGetaffinity(tid, &set); err != nil {
			continue
		}
		for cpu := 0; cpu < unix.CPU_SETSIZE; cpu++ {
			if set.IsSet(cpu) && !allowedSet[cpu] {
				return fmt.Errorf("thread %d has affinity to disallowed cpu %d", tid, cpu)
			}
		}
	}
	return nil
}

// verifyBufferPagesOnNodesOS parses /proc/self/status's Mems_allowed_list
// as a simplified stand-in for true per-page NUMA residency sampling (which
// would require the move_pages(2) syscall over every sampled page); this is
// a best-effort process-level check, not a page-level one.
func verifyBufferPagesOnNodesOS(allowedNodes []int, minRatio float64) error {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return nil
	}
	defer f.Close()

	allowedSet := make(map[int]bool, len(allowedNodes))
	for _, n := range allowedNodes {
		allowedSet[n] = true
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Mems_allowed_list:") {
			continue
		}
		fields := strings.SplitN(line, ":", 2)
		if len(fields) != 2 {
			return nil
		}
		nodes := parseCPUList(fields[1])
		if len(allowedSet) == 0 {
			return nil
		}
		matched := 0
		for _, n := range nodes {
			if allowedSet[n] {
				matched++
			}
		}
		if len(nodes) > 0 && float64(matched)/float64(len(nodes)) < minRatio {
			return fmt.Errorf("process Mems_allowed_list does not satisfy min_ratio=%v", minRatio)
		}
		return nil
	}
	return nil
}
