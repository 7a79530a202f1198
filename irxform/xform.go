// Package irxform implements the op→handler transformation framework
// that both target-specific lowering and double-word lowering
// (irdword) plug into: a table mapping opcode to a handler, a walk that
// invokes the handler for every node with one registered, and an
// old→new correspondence map so handlers can ask what a predecessor
// lowered to even before the walk reaches it.
package irxform

import "github.com/oisee/ssagraph/irnode"

// Handler transforms n, returning its replacement. Returning n itself
// is the identity transform.
type Handler func(ctx *Context, n *irnode.Node) *irnode.Node

// Table is an Op→Handler dispatch table, built once and reused across
// graphs; the table itself holds no per-graph state.
type Table struct {
	handlers map[irnode.Op]Handler
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{handlers: make(map[irnode.Op]Handler)}
}

// Register installs handler for op. A second Register call for the
// same op replaces the first (last registration wins), matching
// irpass.Manager.Register's stated policy for producer registration.
func (t *Table) Register(op irnode.Op, handler Handler) {
	t.handlers[op] = handler
}

// Lookup returns the handler registered for op, or nil.
func (t *Table) Lookup(op irnode.Op) Handler {
	return t.handlers[op]
}

// Context carries the per-run state a handler may consult: the
// old→new correspondence map built up as the walk proceeds, and the
// new graph handlers should create replacement nodes in (for an
// in-place transform, Old and New are the same graph).
type Context struct {
	Old *irnode.Graph
	New *irnode.Graph

	table   *Table
	old2new map[int32]*irnode.Node
	phiWork []*irnode.Node // Phis seen during the walk, fixed up at the end
}

// Lookup returns what old has already been transformed to, or nil if
// the walk has not reached old yet. Handlers must tolerate nil for
// Phi inputs on loop back edges.
func (c *Context) Lookup(old *irnode.Node) *irnode.Node {
	return c.old2new[old.Index()]
}

// Set records that old transforms to new. Handlers that create their
// own replacement (rather than returning it from the Transform walk)
// must call this themselves so later Lookups see it.
func (c *Context) Set(old, new *irnode.Node) {
	c.old2new[old.Index()] = new
}

// PreFunc is called, if non-nil, once per node before its handler.
type PreFunc func(ctx *Context, n *irnode.Node)

// TransformGraph walks every node of g (inputs before users, so a
// handler can ask what its operands transformed to), optionally
// invoking pre first, then for each node whose opcode has a registered
// handler, invokes the handler and records the old→new correspondence.
// Nodes without a handler are rewired in place onto their replacements
// via DefaultRebuild. Phi nodes are revisited once more after the main
// walk, so that by-then-lowered predecessors can be substituted in
// (loop back edges cannot be final on first sight). fixupPhi,
// if non-nil, is called once per Phi encountered during the main walk,
// after every other node has been transformed.
//
// Handlers may create new nodes mid-walk; those are not themselves
// walked (the node set is snapshotted on entry). The graph's out-edge
// index, if built, is invalidated up front: in-place rewiring plus
// handler-created nodes leave it stale either way.
func TransformGraph(g *irnode.Graph, table *Table, pre PreFunc, fixupPhi func(ctx *Context, old, new *irnode.Node)) *Context {
	ctx := &Context{
		Old:     g,
		New:     g,
		table:   table,
		old2new: make(map[int32]*irnode.Node),
	}
	if outs := g.Outs(); outs != nil {
		outs.Invalidate()
	}

	seen := make(map[int32]bool)
	var walk func(n *irnode.Node)
	walk = func(n *irnode.Node) {
		if n == nil || seen[n.Index()] {
			return
		}
		seen[n.Index()] = true
		if b := n.Block(); b != nil {
			walk(b)
		}
		for _, in := range n.Ins() {
			walk(in)
		}

		if pre != nil {
			pre(ctx, n)
		}

		var replacement *irnode.Node
		if h := table.Lookup(n.Op()); h != nil {
			replacement = h(ctx, n)
		} else {
			replacement = DefaultRebuild(ctx, n)
		}
		ctx.Set(n, replacement)

		if n.Op() == irnode.OpPhi {
			ctx.phiWork = append(ctx.phiWork, n)
		}
	}

	for _, n := range g.Nodes() {
		walk(n)
	}

	if fixupPhi != nil {
		for _, old := range ctx.phiWork {
			fixupPhi(ctx, old, ctx.Lookup(old))
		}
	}

	return ctx
}

// DefaultRebuild is the behavior applied when an op has no registered
// handler (and is also available to handlers that decide, after
// inspecting n, that this particular node doesn't need their special
// treatment): any block or input that was itself transformed to
// something new is rewired in place, so the node (and through it the
// graph's fixed roots like End and Return) observes its replacements
// without being reallocated. Returns n itself, the "handlers may
// return the same node" identity path.
func DefaultRebuild(ctx *Context, n *irnode.Node) *irnode.Node {
	if block := n.Block(); block != nil {
		if nb := ctx.Lookup(block); nb != nil && nb != block {
			n.SetInput(-1, nb)
		}
	}
	for i, in := range n.Ins() {
		if in == nil {
			continue
		}
		if ni := ctx.Lookup(in); ni != nil && ni != in {
			n.SetInput(i, ni)
		}
	}
	return n
}
