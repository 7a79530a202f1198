package irio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/tarval"
)

// WriteGraph writes g's modes{}, typegraph{} and irg{} sections to w.
// Every node currently allocated in g (irnode.Graph.Nodes, which
// includes nodes Exchange has made unreachable) is emitted, so a
// subsequent ReadGraph reconstructs an isomorphic graph, the same
// nodes modulo fresh numbering.
func WriteGraph(w io.Writer, g *irnode.Graph) error {
	bw := bufio.NewWriter(w)
	nodes := g.Nodes()

	used := map[*mode.Mode]bool{}
	for _, n := range nodes {
		if n != nil {
			used[n.Mode()] = true
		}
	}

	if _, err := fmt.Fprintln(bw, "modes {"); err != nil {
		return err
	}
	for _, name := range sortedModeNames(used) {
		m := mode.Lookup(name)
		if err := writeModeLine(bw, m); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(bw, "}"); err != nil {
		return err
	}

	tb := newTypegraphBuilder()
	entityID := tb.addEntity(g.Entity())
	frameID := tb.addType(g.FrameType())
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.Entity() != nil {
			tb.addEntity(n.Entity())
		}
		if n.MethodType() != nil {
			tb.addMethod(n.MethodType())
		}
	}
	if _, err := fmt.Fprintln(bw, "typegraph {"); err != nil {
		return err
	}
	if err := tb.write(bw); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(bw, "}"); err != nil {
		return err
	}

	// The irg header's two trailing slots carry the graph-wide scalars
	// with no other home in the grammar: the default pin state and the
	// held property bitset.
	if _, err := fmt.Fprintf(bw, "irg %s %s %d 0x%x {\n", entityID, frameID, int(g.PinDefault()), uint32(g.Properties())); err != nil {
		return err
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if err := writeNode(bw, tb, n); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(bw, "}"); err != nil {
		return err
	}

	return bw.Flush()
}

func writeModeLine(w io.Writer, m *mode.Mode) error {
	switch m.Sort {
	case mode.SortInt:
		sign := "unsigned"
		if m.Signed == mode.Signed {
			sign = "signed"
		}
		_, err := fmt.Fprintf(w, "int_mode %s %s %d moduloshift=%d\n", m.Name, sign, m.Bits, m.ModuloShift)
		return err
	case mode.SortReference:
		_, err := fmt.Fprintf(w, "reference_mode %s %d\n", m.Name, m.Bits)
		return err
	case mode.SortFloat:
		_, err := fmt.Fprintf(w, "float_mode %s %d exp=%d mant=%d\n", m.Name, m.Bits, m.ExpBits, m.MantBits)
		return err
	default:
		_, err := fmt.Fprintf(w, "other_mode %s %s\n", m.Name, m.Sort)
		return err
	}
}

func blockRefOf(n *irnode.Node) string {
	switch n.Op() {
	case irnode.OpBlock, irnode.OpAnchor:
		return "NULL"
	default:
		if n.Block() == nil {
			return "NULL"
		}
		return fmt.Sprintf("%d", n.Block().Index())
	}
}

func writeNode(w io.Writer, tb *typegraphBuilder, n *irnode.Node) error {
	if _, err := fmt.Fprintf(w, "%s %d %s %s", n.Op(), n.Index(), blockRefOf(n), modeNameOrNull(n.Mode())); err != nil {
		return err
	}
	if err := writeAttrs(w, tb, n); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, " [ "); err != nil {
		return err
	}
	for _, in := range n.Ins() {
		if in == nil {
			if _, err := fmt.Fprint(w, "NULL "); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%d ", in.Index()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "]")
	return err
}

func writeAttrs(w io.Writer, tb *typegraphBuilder, n *irnode.Node) error {
	switch n.Op() {
	case irnode.OpConst:
		if _, err := fmt.Fprintf(w, " const=%s", n.ConstValue().String()); err != nil {
			return err
		}
	case irnode.OpAddress:
		if n.Entity() != nil {
			if _, err := fmt.Fprintf(w, " entity=%s", tb.entityIDs[n.Entity()]); err != nil {
				return err
			}
		}
	case irnode.OpProj:
		if _, err := fmt.Fprintf(w, " proj=%d", n.ProjNum()); err != nil {
			return err
		}
	case irnode.OpCmp, irnode.OpConfirm:
		if _, err := fmt.Fprintf(w, " rel=%s", n.Relation()); err != nil {
			return err
		}
	case irnode.OpSwitch:
		if n.Table() != nil {
			if _, err := fmt.Fprintf(w, " table=%s", encodeTable(n.Table())); err != nil {
				return err
			}
		}
	case irnode.OpBuiltin:
		if _, err := fmt.Fprintf(w, " builtin=%s", n.Builtin()); err != nil {
			return err
		}
	case irnode.OpCall:
		if n.Entity() != nil {
			if _, err := fmt.Fprintf(w, " entity=%s", tb.entityIDs[n.Entity()]); err != nil {
				return err
			}
		}
		if n.MethodType() != nil {
			if _, err := fmt.Fprintf(w, " methodtype=%s", tb.methodIDs[n.MethodType()]); err != nil {
				return err
			}
		}
	}
	if n.DebugInfo() != "" {
		if _, err := fmt.Fprintf(w, " dbg=%s", quote(n.DebugInfo())); err != nil {
			return err
		}
	}
	return nil
}

func encodeTable(t *irnode.SwitchTable) string {
	s := fmt.Sprintf("%d", t.NOuts)
	for _, e := range t.Entries {
		s += fmt.Sprintf(",%d:%d:%d", e.PN, e.Min, e.Max)
	}
	return s
}

// ParseTarval is re-exported for callers that only need the constant
// decimal round-trip.
func ParseTarval(m *mode.Mode, s string) (tarval.Tarval, error) { return tarval.Parse(m, s) }
