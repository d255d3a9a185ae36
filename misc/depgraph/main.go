package main

import (
	"bufio"
	"flag"
	"os"

	"mem"
	"reserv"
)

// Program depgraph generates a Graphviz DOT description of a reservation
// table's live linkage: the active/inactive LRU chains, rather than the
// static import graph `go mod graph` would print. It still prints a single
// "digraph" block to standard output, the same output shape the teacher's
// original tool produced, but now grounded on this repository's own state
// instead of shelling out to the go tool.
//
// @return None. The DOT graph is printed to standard output.
func main() {
	arenaBytes := flag.Int("arena-bytes", mem.DefaultConfig().ArenaBytes, "bytes in the simulated physical arena")
	flag.Parse()

	phys, err := mem.Phys_init(mem.Config_t{ArenaBytes: *arenaBytes})
	if err != nil {
		panic(err)
	}
	table := reserv.Startup(phys, reserv.Config_t{})

	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()
	writer.WriteString(table.DotDump())
}
