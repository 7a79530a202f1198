package irnode

import (
	"fmt"

	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/tarval"
)

// Node is an IR value: an opcode, a mode, an ordered list of inputs
// (position -1 is the node's block; data inputs start at 0), a visit
// stamp, a dense graph-unique index, and per-opcode attributes. A node
// is owned by exactly one Graph and lives at most as long as it does.
// There is no reference counting: nodes become unreachable through
// Exchange but are only actually reclaimed when their owning Graph is
// torn down.
type Node struct {
	g     *Graph
	index int32

	op   Op
	mode *mode.Mode

	block *Node   // nil for Block/Anchor nodes themselves
	ins   []*Node // data inputs, position 0..len(ins)-1

	pin PinState

	visited      uint64 // node-visited epoch stamp
	blockVisited uint64 // block-visited epoch stamp; meaningful for Block nodes only

	link any // scratch slot; guarded by Graph.resources

	// Per-opcode attributes. Only the fields relevant to op are
	// meaningful; a flat struct avoids a type switch on an interface{}
	// for the common cases the rest of this package and
	// irdword/irconfirm need.
	constVal   tarval.Tarval
	projNum    int
	rel        mode.Relation
	table      *SwitchTable
	entity     *Entity
	methodType *MethodType
	builtin    BuiltinKind
	debug      string
}

// Index returns n's dense, graph-unique index.
func (n *Node) Index() int32 { return n.index }

// Op returns n's opcode.
func (n *Node) Op() Op { return n.op }

// Mode returns n's mode.
func (n *Node) Mode() *mode.Mode { return n.mode }

// Graph returns the graph that owns n.
func (n *Node) Graph() *Graph { return n.g }

// Pinned returns n's pin state. If the graph's default pin state is
// Floats, a data node with no explicit override consults the graph
// default.
func (n *Node) Pinned() PinState {
	if n.pin == Pinned && n.g.pinDefault == Floats && !n.op.IsControlFlow() && n.op != OpBlock {
		return n.g.pinDefault
	}
	return n.pin
}

// SetPinned overrides n's pin state explicitly.
func (n *Node) SetPinned(p PinState) { n.pin = p }

// Arity returns the number of data inputs (excluding the block).
func (n *Node) Arity() int { return len(n.ins) }

// GetInput returns the input at position i, i in [-1, Arity()); -1
// yields the block. Panics with a BadInputIndex message if i is out of
// range.
func (n *Node) GetInput(i int) *Node {
	if i == -1 {
		return n.block
	}
	if i < 0 || i >= len(n.ins) {
		panic(fmt.Sprintf("irnode: BadInputIndex: input %d of node %s (arity %d)", i, n, len(n.ins)))
	}
	return n.ins[i]
}

// Block returns n's block input (position -1), or nil for nodes that
// have none (Block, Anchor).
func (n *Node) Block() *Node { return n.block }

// Ins returns n's data inputs. The returned slice aliases n's storage
// and must not be retained across a SetInput/Exchange.
func (n *Node) Ins() []*Node { return n.ins }

// SetInput atomically updates input i (block, if i == -1, else a data
// input) to v. If the graph's out-edge index is currently consistent,
// the affected def-use edges are re-threaded immediately.
func (n *Node) SetInput(i int, v *Node) {
	var old *Node
	if i == -1 {
		old = n.block
		n.block = v
	} else {
		if i < 0 || i >= len(n.ins) {
			panic(fmt.Sprintf("irnode: BadInputIndex: input %d of node %s (arity %d)", i, n, len(n.ins)))
		}
		old = n.ins[i]
		n.ins[i] = v
	}
	if n.g.outs != nil && n.g.outs.consistent {
		n.g.outs.rethread(n, i, old, v)
	}
}

// AppendInput grows n's data-input list by one (used by Phi
// construction and call-argument expansion in irdword). Marks the
// out-edge index inconsistent if one has been built; callers must
// reassure it before relying on Outs again.
func (n *Node) AppendInput(v *Node) {
	n.ins = append(n.ins, v)
	if n.g.outs != nil {
		n.g.outs.consistent = false
	}
}

// SetInputs replaces the entire data-input list at once (bulk
// rewiring, e.g. Phi lowering's fix-up pass). Marks the out-edge index
// inconsistent; callers must reassure it before relying on Outs again.
func (n *Node) SetInputs(ins []*Node) {
	n.ins = ins
	if n.g.outs != nil {
		n.g.outs.consistent = false
	}
}

// Exchange rewires every use of old (across the whole graph) to new:
// for every pair (u, p) where u's input p was old, it becomes new. old
// is left floating: unreachable once no live node refers to it, but
// not necessarily freed. If the out-edge index is consistent,
// the rewiring uses it directly (O(uses of old)); otherwise it falls
// back to a full graph scan.
func Exchange(old, new *Node) {
	g := old.g
	if g.outs != nil && g.outs.consistent {
		uses := append([]Use(nil), g.outs.Uses(old)...) // copy: rethread mutates the live slice
		for _, u := range uses {
			u.User.SetInput(u.Pos, new)
		}
		return
	}
	for _, n := range g.nodes {
		if n == nil || n == old {
			continue
		}
		if n.block == old {
			n.SetInput(-1, new)
		}
		for i, in := range n.ins {
			if in == old {
				n.SetInput(i, new)
			}
		}
	}
}

// Identity nodes: reads transparently skip through an identity
// placeholder. Represented here as a regular node whose op is left
// unchanged but whose "real value" is recorded via SetIdentity; Follow
// walks the chain. This supports rewrite passes that want to leave a
// placeholder behind without an immediate full Exchange.
func (n *Node) SetIdentity(target *Node) { n.link = identityLink{target} }

type identityLink struct{ target *Node }

// Follow resolves n through any identity chain to the value a reader
// should actually observe.
func Follow(n *Node) *Node {
	for {
		id, ok := n.link.(identityLink)
		if !ok {
			return n
		}
		n = id.target
	}
}

// String renders a short debug form: "Op_123" for the anonymous node
// kinds we don't attach extra attribute text to.
func (n *Node) String() string {
	switch n.op {
	case OpConst:
		return fmt.Sprintf("Const_%d[%s]", n.index, n.constVal)
	case OpProj:
		return fmt.Sprintf("Proj_%d(%d)", n.index, n.projNum)
	default:
		return fmt.Sprintf("%s_%d", n.op, n.index)
	}
}

// --- attribute accessors -------------------------------------------------

func (n *Node) ConstValue() tarval.Tarval     { return n.constVal }
func (n *Node) SetConstValue(t tarval.Tarval) { n.constVal = t }

func (n *Node) ProjNum() int     { return n.projNum }
func (n *Node) SetProjNum(p int) { n.projNum = p }

func (n *Node) Relation() mode.Relation     { return n.rel }
func (n *Node) SetRelation(r mode.Relation) { n.rel = r }

func (n *Node) Table() *SwitchTable     { return n.table }
func (n *Node) SetTable(t *SwitchTable) { n.table = t }

func (n *Node) Entity() *Entity     { return n.entity }
func (n *Node) SetEntity(e *Entity) { n.entity = e }

func (n *Node) MethodType() *MethodType      { return n.methodType }
func (n *Node) SetMethodType(mt *MethodType) { n.methodType = mt }

func (n *Node) Builtin() BuiltinKind     { return n.builtin }
func (n *Node) SetBuiltin(b BuiltinKind) { n.builtin = b }

func (n *Node) DebugInfo() string     { return n.debug }
func (n *Node) SetDebugInfo(s string) { n.debug = s }

// Link returns the pass-reserved scratch slot. Callers must have
// reserved the corresponding ResourceKind first.
func (n *Node) Link() any     { return n.link }
func (n *Node) SetLink(v any) { n.link = v }

// Visited/SetVisited back the visit-stamp invariant used by irwalk:
// visited(n) means n.stamp >= current.
func (n *Node) Visited() uint64     { return n.visited }
func (n *Node) SetVisited(v uint64) { n.visited = v }

func (n *Node) BlockVisited() uint64     { return n.blockVisited }
func (n *Node) SetBlockVisited(v uint64) { n.blockVisited = v }
