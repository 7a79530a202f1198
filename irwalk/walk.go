// Package irwalk implements graph walkers and the visited-epoch
// mechanism: each walk bumps the owning graph's node-visited or
// block-visited counter once, then stamps every node it touches with
// the new value, so a later Visited(n) check is a single integer
// comparison rather than a set lookup.
package irwalk

import "github.com/oisee/ssagraph/irnode"

// Visited reports whether n carries the graph's current node-visited
// stamp.
func Visited(n *irnode.Node) bool {
	return n.Visited() >= n.Graph().CurrentNodeVisited()
}

// BlockVisited reports whether b carries the graph's current
// block-visited stamp.
func BlockVisited(b *irnode.Node) bool {
	return b.BlockVisited() >= b.Graph().CurrentBlockVisited()
}

// mark stamps n with the current node-visited epoch.
func mark(n *irnode.Node) { n.SetVisited(n.Graph().CurrentNodeVisited()) }

// markBlock stamps b with the current block-visited epoch.
func markBlock(b *irnode.Node) { b.SetBlockVisited(b.Graph().CurrentBlockVisited()) }

// preFn is the pre-order callback walkers invoke at each node. It may
// mutate the graph (e.g. insert a new node ahead of the walk front):
// a newly created node inherits the epoch current at its construction
// time (irnode.Graph.newNode stamps it with CurrentNodeVisited()), so
// it reads as already visited and is not revisited unless the pass
// explicitly re-enqueues it. Return false to stop the walk.
type preFn func(n *irnode.Node) bool

// walkRec is the single recursive descent every exported walker in
// this file drives with a different root set and a different edge
// function.
func walkRec(n *irnode.Node, edges func(*irnode.Node) []*irnode.Node, fn preFn) bool {
	if n == nil || Visited(n) {
		return true
	}
	mark(n)
	if !fn(n) {
		return false
	}
	for _, e := range edges(n) {
		if !walkRec(e, edges, fn) {
			return false
		}
	}
	return true
}

func successorsForward(n *irnode.Node) []*irnode.Node {
	out := make([]*irnode.Node, 0, n.Arity()+1)
	if b := n.Block(); b != nil {
		out = append(out, b)
	}
	out = append(out, n.Ins()...)
	return out
}

// WalkNodes visits every node reachable from the graph's anchor and
// end node (forward, through block and data inputs), calling fn at
// each in pre-order. fn returning false stops the walk early.
func WalkNodes(g *irnode.Graph, fn preFn) {
	g.BumpNodeVisited()
	if !walkRec(g.Anchor(), successorsForward, fn) {
		return
	}
	walkRec(g.End(), successorsForward, fn)
}

// WalkAnchors visits the anchor node's direct inputs (Start, End,
// Frame, Args, initial-mem, initial-exec block, NoMem) and everything
// reachable from them.
func WalkAnchors(g *irnode.Graph, fn preFn) {
	g.BumpNodeVisited()
	for _, in := range g.Anchor().Ins() {
		if in == nil {
			continue
		}
		if !walkRec(in, successorsForward, fn) {
			return
		}
	}
}

// WalkBlocks visits every block reachable from the graph, stamping
// the block-visited epoch rather than the node-visited one.
func WalkBlocks(g *irnode.Graph, fn preFn) {
	g.BumpBlockVisited()
	var rec func(b *irnode.Node) bool
	rec = func(b *irnode.Node) bool {
		if b == nil || BlockVisited(b) {
			return true
		}
		markBlock(b)
		if !fn(b) {
			return false
		}
		// A block's inputs are control-flow nodes; the predecessor block
		// is each one's own block.
		for _, pred := range b.Ins() {
			if pred == nil {
				continue
			}
			if pb := pred.Block(); pb != nil {
				if !rec(pb) {
					return false
				}
			}
		}
		return true
	}
	if !rec(g.EndBlock()) {
		return
	}
	rec(g.StartBlock())
}

// WalkEdgesFromRoot visits every node reachable from root through
// block and data inputs (the "edges from a root" walker), without
// touching the graph's anchor/end, useful for walking a single
// subgraph, e.g. a cloned Confirm-insertion region.
func WalkEdgesFromRoot(g *irnode.Graph, root *irnode.Node, fn preFn) {
	g.BumpNodeVisited()
	walkRec(root, successorsForward, fn)
}

// WalkReverse visits def, then every node that uses it, transitively.
// outs must be consistent; callers are responsible for calling
// irnode.Assure first.
func WalkReverse(outs *irnode.OutEdges, def *irnode.Node, fn preFn) {
	def.Graph().BumpNodeVisited()
	successors := func(n *irnode.Node) []*irnode.Node {
		uses := outs.Uses(n)
		out := make([]*irnode.Node, 0, len(uses))
		for _, u := range uses {
			out = append(out, u.User)
		}
		return out
	}
	walkRec(def, successors, fn)
}
