package reserv

import "fmt"
import "strings"

// dump.go renders the live reservation table as a Graphviz dot graph,
// used by misc/depgraph in place of a static `go mod graph` dump: nodes
// are reservations, edges connect LRU neighbours, and marker nodes are
// styled distinctly.

/// DotDump returns a Graphviz "digraph" description of the active and
/// inactive LRU queues.
func (t *Table_t) DotDump() string {
	t.LockFreeq()
	defer t.UnlockFreeq()

	var b strings.Builder
	b.WriteString("digraph reservations {\n")

	walk := func(head int32, label string) {
		prev := int32(-1)
		for i := head; i != nilIdx; i = t.rvAt(i).lruNext {
			r := t.rvAt(i)
			name := fmt.Sprintf("%s_%d", label, i)
			if r.IsMarker() {
				fmt.Fprintf(&b, "  %s [shape=diamond label=\"marker\"];\n", name)
			} else {
				fmt.Fprintf(&b, "  %s [label=\"popcnt=%d actcnt=%d\"];\n", name, r.Popcnt, r.Actcnt)
			}
			if prev != -1 {
				fmt.Fprintf(&b, "  %s_%d -> %s;\n", label, prev, name)
			}
			prev = i
		}
	}
	walk(t.activeHead, "active")
	walk(t.inactiveHead, "inactive")

	b.WriteString("}\n")
	return b.String()
}
