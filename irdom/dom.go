// Package irdom computes dominance and post-dominance over a graph's
// blocks: for each block, the immediate dominator and the dom-tree
// depth, with unreachable blocks reported at depth -1 and excluded
// from every dominance query.
//
// The algorithm is the iterative reverse-postorder fixpoint from
// Cooper, Harvey & Kennedy, "A Simple, Fast Dominance Algorithm";
// Lengauer-Tarjan would be asymptotically faster but is far more
// intricate than graphs of this size need.
package irdom

import "github.com/oisee/ssagraph/irnode"

// Info is the result of one dominance (or post-dominance) computation.
type Info struct {
	post  bool
	idom  map[int32]*irnode.Node
	depth map[int32]int
	order map[int32]int // reverse-postorder index, for the intersect finger algorithm
}

// Compute runs forward dominance from g's start block.
func Compute(g *irnode.Graph) *Info {
	preds, succs := buildCFG(g)
	return compute(g.StartBlock(), preds, succs, false)
}

// ComputePost runs post-dominance from g's end block, treating the
// reverse of the control-flow graph as the "forward" direction.
func ComputePost(g *irnode.Graph) *Info {
	preds, succs := buildCFG(g)
	return compute(g.EndBlock(), succs, preds, true)
}

// buildCFG turns each block's control-flow-predecessor inputs (Jmp/
// Proj/Bad nodes, per the structural rule irverify checks) into a
// block-to-block predecessor/successor map: a block's actual CFG
// predecessor is predecessorNode.Block(), not the predecessor node
// itself.
func buildCFG(g *irnode.Graph) (preds, succs map[int32][]*irnode.Node) {
	preds = make(map[int32][]*irnode.Node)
	succs = make(map[int32][]*irnode.Node)
	for _, n := range g.Nodes() {
		if n == nil || n.Op() != irnode.OpBlock {
			continue
		}
		var ps []*irnode.Node
		for _, cf := range n.Ins() {
			if cf == nil {
				continue
			}
			predBlock := cf.Block()
			if predBlock == nil {
				continue
			}
			ps = append(ps, predBlock)
		}
		preds[n.Index()] = ps
		for _, p := range ps {
			succs[p.Index()] = append(succs[p.Index()], n)
		}
	}
	return preds, succs
}

func compute(entry *irnode.Node, predFn, succFn map[int32][]*irnode.Node, post bool) *Info {
	rpo := reversePostorder(entry, succFn)
	order := make(map[int32]int, len(rpo))
	for i, b := range rpo {
		order[b.Index()] = i
	}

	idom := make(map[int32]*irnode.Node, len(rpo))
	idom[entry.Index()] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom *irnode.Node
			for _, p := range predFn[b.Index()] {
				if _, ok := order[p.Index()]; !ok {
					continue // predecessor not reachable from entry
				}
				if idom[p.Index()] == nil {
					continue // not processed yet
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, order)
			}
			if newIdom != nil && idom[b.Index()] != newIdom {
				idom[b.Index()] = newIdom
				changed = true
			}
		}
	}

	depth := make(map[int32]int, len(rpo))
	for _, b := range rpo {
		depth[b.Index()] = -1
	}
	for _, b := range rpo {
		depth[b.Index()] = depthOf(b, idom, depth, entry)
	}

	return &Info{post: post, idom: idom, depth: depth, order: order}
}

func depthOf(b *irnode.Node, idom map[int32]*irnode.Node, depth map[int32]int, entry *irnode.Node) int {
	if d, ok := depth[b.Index()]; ok && d != -1 {
		return d
	}
	if b == entry {
		return 0
	}
	parent := idom[b.Index()]
	if parent == nil || parent == b {
		return -1
	}
	d := depthOf(parent, idom, depth, entry) + 1
	depth[b.Index()] = d
	return d
}

// intersect finds the nearest common dominator of a and b using the
// reverse-postorder "finger" walk: whichever of the two has the
// larger order climbs its idom chain until both match.
func intersect(a, b *irnode.Node, idom map[int32]*irnode.Node, order map[int32]int) *irnode.Node {
	for a != b {
		for order[a.Index()] > order[b.Index()] {
			a = idom[a.Index()]
		}
		for order[b.Index()] > order[a.Index()] {
			b = idom[b.Index()]
		}
	}
	return a
}

// reversePostorder returns entry's reachable blocks (via succFn) in
// reverse postorder, entry first.
func reversePostorder(entry *irnode.Node, succFn map[int32][]*irnode.Node) []*irnode.Node {
	seen := map[int32]bool{}
	var post []*irnode.Node
	var visit func(b *irnode.Node)
	visit = func(b *irnode.Node) {
		if seen[b.Index()] {
			return
		}
		seen[b.Index()] = true
		for _, s := range succFn[b.Index()] {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	rpo := make([]*irnode.Node, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// ImmediateDominator returns b's immediate dominator, or nil if b is
// unreachable from the computation's entry.
func (info *Info) ImmediateDominator(b *irnode.Node) *irnode.Node {
	if _, ok := info.order[b.Index()]; !ok {
		return nil
	}
	idom := info.idom[b.Index()]
	if idom == b {
		return nil // entry has no immediate dominator
	}
	return idom
}

// Depth returns b's dom-tree depth, or -1 if b is unreachable.
func (info *Info) Depth(b *irnode.Node) int {
	d, ok := info.depth[b.Index()]
	if !ok {
		return -1
	}
	return d
}

// Dominates reports whether a dominates b. Returns false if either is
// unreachable.
func (info *Info) Dominates(a, b *irnode.Node) bool {
	_, aOk := info.order[a.Index()]
	_, bOk := info.order[b.Index()]
	if !aOk || !bOk {
		return false
	}
	for b != nil {
		if b == a {
			return true
		}
		if info.idom[b.Index()] == b {
			return b == a
		}
		b = info.idom[b.Index()]
	}
	return false
}

// StrictlyDominates reports whether a dominates b and a != b.
func (info *Info) StrictlyDominates(a, b *irnode.Node) bool {
	return a != b && info.Dominates(a, b)
}
