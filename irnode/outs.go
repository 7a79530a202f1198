package irnode

// Use is one def-use edge: v is used by User at input position Pos
// (Pos == -1 for a block use).
type Use struct {
	User *Node
	Pos  int
}

// OutEdges is the def->use index: for each definition, the set of
// (user, position) pairs referencing it. Built in two passes, an exact
// count per definition and then a fill into records preallocated to
// those counts, and consulted read-only until the graph changes.
type OutEdges struct {
	g          *Graph
	consistent bool
	uses       map[int32][]Use
}

// Assure ensures g's out-edge index is built and consistent, building
// (or rebuilding) it if necessary. Call this before any Outs query;
// Uses panics when the index is stale.
func Assure(g *Graph) *OutEdges {
	if g.outs != nil && g.outs.consistent {
		return g.outs
	}
	return Build(g)
}

// Build recomputes the out-edge index from scratch in two passes:
// first a traversal from the end node and all
// anchors that counts, per definition, the number of incoming
// references (canonicalizing through identity/follow chains so a
// rewrite-in-progress placeholder is never recorded as its own
// definition); then a second pass that fills per-definition slices
// carved out of one flat allocation sized to the total count, each
// with capacity equal to its exact count, so the fill never reallocates.
func Build(g *Graph) *OutEdges {
	counts := make(map[int32]int)

	visitInputs := func(n *Node) {
		if n.block != nil {
			def := Follow(n.block)
			counts[def.index]++
		}
		for _, in := range n.ins {
			if in == nil {
				continue
			}
			def := Follow(in)
			counts[def.index]++
		}
	}
	walkAllForOuts(g, visitInputs)

	total := 0
	for _, c := range counts {
		total += c
	}
	flat := make([]Use, total)
	uses := make(map[int32][]Use, len(counts))
	off := 0
	for idx, c := range counts {
		uses[idx] = flat[off : off : off+c]
		off += c
	}

	fill := func(n *Node) {
		if n.block != nil {
			def := Follow(n.block)
			uses[def.index] = append(uses[def.index], Use{User: n, Pos: -1})
		}
		for i, in := range n.ins {
			if in == nil {
				continue
			}
			def := Follow(in)
			uses[def.index] = append(uses[def.index], Use{User: n, Pos: i})
		}
	}
	walkAllForOuts(g, fill)

	oe := &OutEdges{g: g, consistent: true, uses: uses}
	g.outs = oe
	return oe
}

// walkAllForOuts visits the end node, every anchor input, and every
// node reachable from them through block/data inputs; equivalently,
// every node reachable from the graph's roots. Dead code not
// reachable from end/anchors has no recorded uses either.
func walkAllForOuts(g *Graph, visit func(*Node)) {
	seen := make(map[int32]bool)
	var stack []*Node
	stack = append(stack, g.end, g.anchor)
	for _, in := range g.anchor.ins {
		if in != nil {
			stack = append(stack, in)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil || seen[n.index] {
			continue
		}
		seen[n.index] = true
		visit(n)
		if n.block != nil {
			stack = append(stack, n.block)
		}
		for _, in := range n.ins {
			if in != nil {
				stack = append(stack, in)
			}
		}
	}
}

// Invalidate marks the out-edge index inconsistent without discarding
// it.
func (o *OutEdges) Invalidate() { o.consistent = false }

// Consistent reports whether the index currently reflects the graph.
func (o *OutEdges) Consistent() bool { return o != nil && o.consistent }

// Uses returns the uses of def. Panics if the index is not
// consistent.
func (o *OutEdges) Uses(def *Node) []Use {
	if !o.consistent {
		panic("irnode: Uses queried on an inconsistent out-edge index; call Assure first")
	}
	return o.uses[Follow(def).index]
}

// rethread updates the out-edge index in place after SetInput changes
// user's input at pos from old to new.
func (o *OutEdges) rethread(user *Node, pos int, old, new *Node) {
	if old != nil {
		oldDef := Follow(old)
		lst := o.uses[oldDef.index]
		for i, u := range lst {
			if u.User == user && u.Pos == pos {
				lst[i] = lst[len(lst)-1]
				o.uses[oldDef.index] = lst[:len(lst)-1]
				break
			}
		}
	}
	if new != nil {
		newDef := Follow(new)
		o.uses[newDef.index] = append(o.uses[newDef.index], Use{User: user, Pos: pos})
	}
}
