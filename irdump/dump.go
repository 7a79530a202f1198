// Package irdump implements the write-only VCG-style graph dump
// format: a header block, one node: {...} record per node, and one
// edge: {...} record per def-use edge, suitable for a graph
// visualizer. There is no reader.
package irdump

import (
	"fmt"
	"io"
	"sort"

	"github.com/oisee/ssagraph/irnode"
)

// Color names the stable VCG color keyword emitted for a node kind.
// The name-to-RGB mapping lives in the visualizer, not here; this
// package only emits the stable names.
type Color string

const (
	ColorBlock   Color = "yellow"
	ColorControl Color = "blue"
	ColorMemory  Color = "lightblue"
	ColorConst   Color = "green"
	ColorPhi     Color = "orange"
	ColorDefault Color = "white"
)

func colorFor(n *irnode.Node) Color {
	switch n.Op() {
	case irnode.OpBlock, irnode.OpStart, irnode.OpEnd, irnode.OpAnchor:
		return ColorBlock
	case irnode.OpJmp, irnode.OpCond, irnode.OpSwitch, irnode.OpProj, irnode.OpReturn:
		return ColorControl
	case irnode.OpLoad, irnode.OpStore, irnode.OpNoMem:
		return ColorMemory
	case irnode.OpConst, irnode.OpAddress:
		return ColorConst
	case irnode.OpPhi:
		return ColorPhi
	default:
		return ColorDefault
	}
}

func title(n *irnode.Node) string { return fmt.Sprintf("n%d", n.Index()) }

func label(n *irnode.Node) string {
	switch n.Op() {
	case irnode.OpConst:
		return fmt.Sprintf("Const\\n%s:%s", n.ConstValue().String(), n.Mode().Name)
	case irnode.OpProj:
		return fmt.Sprintf("Proj\\n#%d:%s", n.ProjNum(), n.Mode().Name)
	case irnode.OpCmp:
		return fmt.Sprintf("Cmp\\n%s", n.Relation())
	case irnode.OpConfirm:
		return fmt.Sprintf("Confirm\\n%s", n.Relation())
	case irnode.OpCall:
		if n.Entity() != nil {
			return fmt.Sprintf("Call\\n%s", n.Entity().Name)
		}
		return "Call"
	case irnode.OpBuiltin:
		return fmt.Sprintf("Builtin\\n%s", n.Builtin())
	default:
		return fmt.Sprintf("%s\\n%s", n.Op(), n.Mode().Name)
	}
}

func info1(n *irnode.Node) string {
	s := fmt.Sprintf("index=%d pin=%d", n.Index(), n.Pinned())
	if n.DebugInfo() != "" {
		s += " dbg=" + n.DebugInfo()
	}
	return s
}

// WriteGraph emits g as a VCG-style dump to w: a "graph: { title ... }"
// header, one node: record per allocated node (in index order, for
// determinism), and one edge: record per (block, data-input) pair,
// the same relation the out-edge index indexes in reverse.
func WriteGraph(w io.Writer, g *irnode.Graph) error {
	name := "graph"
	if g.Entity() != nil {
		name = g.Entity().Name
	}
	if _, err := fmt.Fprintf(w, "graph: { title: %q\n", name); err != nil {
		return err
	}

	nodes := g.Nodes()
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i] == nil || nodes[j] == nil {
			return nodes[j] == nil && nodes[i] != nil
		}
		return nodes[i].Index() < nodes[j].Index()
	})

	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "node: { title: %q label: %q info1: %q color: %s }\n",
			title(n), label(n), info1(n), colorFor(n)); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if b := n.Block(); b != nil {
			if err := writeEdge(w, n, b, "block"); err != nil {
				return err
			}
		}
		for i, in := range n.Ins() {
			if in == nil {
				continue
			}
			if err := writeEdge(w, n, in, fmt.Sprintf("in%d", i)); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

func writeEdge(w io.Writer, user, def *irnode.Node, label string) error {
	_, err := fmt.Fprintf(w, "edge: { sourcename: %q targetname: %q label: %q }\n",
		title(user), title(def), label)
	return err
}
