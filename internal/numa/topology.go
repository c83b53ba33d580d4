// Package numa discovers the machine's NUMA topology so arenas and
// worker threads can stay node-local. On hosts without exposed topology
// it degrades to a single node holding every logical CPU.
package numa

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"
)

const sysNodeDir = "/sys/devices/system/node"

// Node is one NUMA node and the logical CPUs local to it.
type Node struct {
	ID   int
	CPUs []int
}

// Topology is the discovered node layout.
type Topology struct {
	Nodes    []Node
	cpu2node map[int]int
}

// Discover reads the sysfs node tree. A host without the tree (macOS,
// containers with masked sysfs) yields one node with all CPUs. Zero
// usable cores is a fatal configuration error per the startup contract.
func Discover() (*Topology, error) {
	topo, err := discoverSysfs()
	if err != nil {
		topo = singleNode()
	}
	total := 0
	for _, n := range topo.Nodes {
		total += len(n.CPUs)
	}
	if total == 0 {
		return nil, errors.New("numa: topology discovery found zero usable cores")
	}
	topo.index()
	return topo, nil
}

// NodeOf returns the node owning the given logical CPU, or 0 when the
// CPU is unknown.
func (t *Topology) NodeOf(cpu int) int {
	if id, ok := t.cpu2node[cpu]; ok {
		return id
	}
	return 0
}

// NodeCount returns the number of discovered nodes.
func (t *Topology) NodeCount() int { return len(t.Nodes) }

// CPUCount returns the total number of usable logical CPUs.
func (t *Topology) CPUCount() int {
	total := 0
	for _, n := range t.Nodes {
		total += len(n.CPUs)
	}
	return total
}

func (t *Topology) index() {
	t.cpu2node = make(map[int]int)
	for _, n := range t.Nodes {
		for _, cpu := range n.CPUs {
			t.cpu2node[cpu] = n.ID
		}
	}
}

func singleNode() *Topology {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return &Topology{Nodes: []Node{{ID: 0, CPUs: cpus}}}
}

func discoverSysfs() (*Topology, error) {
	entries, err := os.ReadDir(sysNodeDir)
	if err != nil {
		return nil, errors.Wrap(err, "read node dir")
	}
	var topo Topology
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(fmt.Sprintf("%s/%s/cpulist", sysNodeDir, name))
		if err != nil {
			continue
		}
		cpus, err := ParseCPUList(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, errors.Wrap(err, "parse cpulist")
		}
		if len(cpus) == 0 {
			continue // memory-only node
		}
		topo.Nodes = append(topo.Nodes, Node{ID: id, CPUs: cpus})
	}
	if len(topo.Nodes) == 0 {
		return nil, errors.New("no populated nodes")
	}
	sort.Slice(topo.Nodes, func(i, j int) bool { return topo.Nodes[i].ID < topo.Nodes[j].ID })
	return &topo, nil
}

// ParseCPUList parses the kernel's cpulist format ("0-3,8,10-11").
func ParseCPUList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var cpus []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err := strconv.Atoi(lo)
			if err != nil {
				return nil, errors.Errorf("bad cpulist range %q", part)
			}
			to, err := strconv.Atoi(hi)
			if err != nil || to < from {
				return nil, errors.Errorf("bad cpulist range %q", part)
			}
			for c := from; c <= to; c++ {
				cpus = append(cpus, c)
			}
			continue
		}
		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Errorf("bad cpulist entry %q", part)
		}
		cpus = append(cpus, c)
	}
	return cpus, nil
}
