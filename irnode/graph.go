package irnode

import "github.com/oisee/ssagraph/mode"

// Property is a bitset of graph-wide invariants a pass may require,
// provide, or invalidate.
type Property uint32

const (
	PropConsistentOuts Property = 1 << iota
	PropConsistentDominance
	PropConsistentPostDominance
	PropConsistentLoopInfo
	PropNoCriticalEdges
	PropNoBads
	PropOneReturn
	PropNoUnreachableCode
)

func (p Property) Has(q Property) bool         { return p&q == q }
func (p Property) With(q Property) Property    { return p | q }
func (p Property) Without(q Property) Property { return p &^ q }

// Graph holds everything a single function's IR needs: the entity it
// represents, its frame type, its anchor node (carrying Start/End/
// Frame/Args/initial-mem/initial-exec/no-mem as inputs), the node
// arena, the index map, visit epochs, the current property set and the
// default pin state new nodes are created with.
//
// Node storage is a plain growable slice acting as the per-graph
// obstack: indices are stable for a node's lifetime and double as the
// array subscript into g.nodes, so "index map" and "arena" are the
// same structure here.
type Graph struct {
	entity    *Entity
	frameType *Type

	nodes []*Node // arena; nodes[i].index == i

	anchor *Node
	start  *Node
	end    *Node

	visitedNode  uint64
	visitedBlock uint64

	props      Property
	pinDefault PinState

	outs      *OutEdges
	resources *ResourceSet
}

// Anchor input positions, in the order the Anchor node's Ins() holds
// them.
const (
	AnchorStart = iota
	AnchorEnd
	AnchorFrame
	AnchorArgs
	AnchorInitialMem
	AnchorInitialExec
	AnchorNoMem
	anchorCount
)

// NewGraph creates an empty graph for entity, with the given frame
// type. The default pin state is Pinned; call SetPinDefault(Floats)
// before construction to build a floating-by-default graph.
func NewGraph(entity *Entity, frameType *Type) *Graph {
	g := &Graph{
		entity:     entity,
		frameType:  frameType,
		pinDefault: Pinned,
		resources:  newResourceSet(),
	}

	startBlock := g.newNode(OpBlock, mode.X, nil)
	g.start = g.newNode(OpStart, mode.T, startBlock)
	endBlock := g.newNode(OpBlock, mode.X, nil)
	g.end = g.newNode(OpEnd, mode.X, endBlock)

	frame := g.newNode(OpAddress, mode.P, startBlock)
	args := g.newNode(OpProj, mode.T, startBlock, g.start)
	initialMem := g.newNode(OpProj, mode.M, startBlock, g.start)
	noMem := g.newNode(OpNoMem, mode.M, nil)

	anchorIns := make([]*Node, anchorCount)
	anchorIns[AnchorStart] = g.start
	anchorIns[AnchorEnd] = g.end
	anchorIns[AnchorFrame] = frame
	anchorIns[AnchorArgs] = args
	anchorIns[AnchorInitialMem] = initialMem
	anchorIns[AnchorInitialExec] = startBlock
	anchorIns[AnchorNoMem] = noMem
	g.anchor = g.newNode(OpAnchor, mode.ANY, nil, anchorIns...)

	return g
}

// NewEmptyGraph creates a graph with no nodes at all, no Start/End/
// Anchor, unlike NewGraph. This is irio's reader entry point: the
// textual format's irg{} node list already includes lines for Start,
// End, the two implicit blocks and the Anchor (WriteGraph emits every
// node NewGraph would have created), so the reader reconstructs them
// from those lines via NewNode/NewBlock like any other node and then
// calls SetAnchorStructure to wire up the fixed fields other packages
// read through Start/End/Anchor/StartBlock/EndBlock.
func NewEmptyGraph(entity *Entity, frameType *Type) *Graph {
	return &Graph{
		entity:     entity,
		frameType:  frameType,
		pinDefault: Pinned,
		resources:  newResourceSet(),
	}
}

// SetAnchorStructure wires g's fixed Start/End/Anchor fields to
// already-constructed nodes. Used only by irio while reconstructing a
// graph read from the textual format; NewGraph sets these up
// directly for in-process construction and never needs this.
func (g *Graph) SetAnchorStructure(anchor, start, end *Node) {
	g.anchor = anchor
	g.start = start
	g.end = end
}

// newNode is the one constructor every other New* helper in this
// package funnels through: it allocates the node, assigns it the next
// dense index, appends it to the arena, and stamps it with the current
// node-visited epoch, so a node created mid-walk reads as already
// visited and is not revisited unless a pass re-enqueues it.
func (g *Graph) newNode(op Op, m *mode.Mode, block *Node, ins ...*Node) *Node {
	n := &Node{
		g:       g,
		index:   int32(len(g.nodes)),
		op:      op,
		mode:    m,
		block:   block,
		ins:     append([]*Node(nil), ins...),
		visited: g.visitedNode,
	}
	g.nodes = append(g.nodes, n)
	return n
}

// NewNode constructs a general node in block, with the given inputs.
func (g *Graph) NewNode(op Op, m *mode.Mode, block *Node, ins ...*Node) *Node {
	return g.newNode(op, m, block, ins...)
}

// NewBlock constructs a Block node whose inputs are its control-flow
// predecessors. A Block has no block input of its own.
func (g *Graph) NewBlock(preds ...*Node) *Node {
	return g.newNode(OpBlock, mode.X, nil, preds...)
}

// Entity, FrameType, Anchor, Start, End and NodeByIndex expose the
// graph's fixed structure.
func (g *Graph) Entity() *Entity           { return g.entity }
func (g *Graph) FrameType() *Type          { return g.frameType }
func (g *Graph) Anchor() *Node             { return g.anchor }
func (g *Graph) Start() *Node              { return g.start }
func (g *Graph) End() *Node                { return g.end }
func (g *Graph) StartBlock() *Node         { return g.start.Block() }
func (g *Graph) EndBlock() *Node           { return g.end.Block() }
func (g *Graph) NodeByIndex(i int32) *Node { return g.nodes[i] }
func (g *Graph) NumNodes() int             { return len(g.nodes) }

// Nodes returns a snapshot slice of every node currently in the arena
// (including ones Exchange has made unreachable; use a reachability
// walk, not this, to enumerate live nodes).
func (g *Graph) Nodes() []*Node { return append([]*Node(nil), g.nodes...) }

// Properties returns the currently-held property bitset.
func (g *Graph) Properties() Property { return g.props }

// SetProperties overwrites the held property bitset directly; used by
// irpass.Manager after running a pass's declared Provides/Invalidates.
func (g *Graph) SetProperties(p Property) { g.props = p }

// PinDefault returns the graph's default pin state for newly created
// nodes with no explicit override.
func (g *Graph) PinDefault() PinState { return g.pinDefault }

// SetPinDefault sets the graph's default pin state.
func (g *Graph) SetPinDefault(p PinState) { g.pinDefault = p }

// IsPinned reports whether the graph is "pinned" as a whole, i.e. its
// default is not Floats. irconfirm asserts this on entry.
func (g *Graph) IsPinned() bool { return g.pinDefault != Floats }

// Resources returns the graph's link/scratch-slot reservation set.
func (g *Graph) Resources() *ResourceSet { return g.resources }

// Outs returns the graph's out-edge index, or nil if it has never been
// built (call outs.Assure(g) first).
func (g *Graph) Outs() *OutEdges { return g.outs }

// bumpNodeVisited/bumpBlockVisited advance the respective monotonic
// epoch counter and return the new value; irwalk uses these to start
// a fresh walk.
func (g *Graph) bumpNodeVisited() uint64  { g.visitedNode++; return g.visitedNode }
func (g *Graph) bumpBlockVisited() uint64 { g.visitedBlock++; return g.visitedBlock }

// CurrentNodeVisited/CurrentBlockVisited expose the live epoch value.
func (g *Graph) CurrentNodeVisited() uint64  { return g.visitedNode }
func (g *Graph) CurrentBlockVisited() uint64 { return g.visitedBlock }

// BumpNodeVisited and BumpBlockVisited are the exported entry points
// irwalk uses to start a new walk.
func (g *Graph) BumpNodeVisited() uint64  { return g.bumpNodeVisited() }
func (g *Graph) BumpBlockVisited() uint64 { return g.bumpBlockVisited() }
