// Package irconfirm implements Confirm insertion and its inverse:
// along an edge entered only when a branch condition holds, uses of
// the values the condition refers to are rewritten, within the region
// dominated by the edge's target, into values that encode the
// refinement, exposing constants and value-range information to
// subsequent passes.
package irconfirm

import (
	"github.com/oisee/ssagraph/irdom"
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irwalk"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/ssaerr"
	"github.com/oisee/ssagraph/tarval"
)

// Insert runs Confirm insertion over g, which must be pinned (an
// unmet precondition is fatal). dom must reflect g's current,
// consistent dominance.
func Insert(g *irnode.Graph, dom *irdom.Info) {
	if !g.IsPinned() {
		ssaerr.Fatal(&ssaerr.PreconditionError{Pass: "irconfirm.Insert", Property: "graph must be pinned"})
	}
	outs := irnode.Assure(g)

	for _, B := range singlePredBlocks(g) {
		proj := soleControlFlowPred(B)
		if proj == nil || proj.Op() != irnode.OpProj {
			continue
		}
		branch := proj.GetInput(0)
		switch branch.Op() {
		case irnode.OpSwitch:
			switchCase(g, outs, dom, B, proj, branch)
		case irnode.OpCond:
			condCase(g, outs, dom, B, proj, branch)
		}
	}

	nullDerefRefinement(g, outs, dom)
}

// RemoveConfirms walks every node and exchanges each Confirm(v, _, _)
// with v, undoing Insert.
func RemoveConfirms(g *irnode.Graph) {
	for _, n := range g.Nodes() {
		if n != nil && n.Op() == irnode.OpConfirm {
			irnode.Exchange(n, n.GetInput(0))
		}
	}
}

// singlePredBlocks returns every block in g with exactly one
// control-flow predecessor.
func singlePredBlocks(g *irnode.Graph) []*irnode.Node {
	var blocks []*irnode.Node
	irwalk.WalkBlocks(g, func(b *irnode.Node) bool {
		if countNonNil(b.Ins()) == 1 {
			blocks = append(blocks, b)
		}
		return true
	})
	return blocks
}

func countNonNil(ns []*irnode.Node) int {
	c := 0
	for _, n := range ns {
		if n != nil {
			c++
		}
	}
	return c
}

// soleControlFlowPred returns b's single control-flow predecessor.
func soleControlFlowPred(b *irnode.Node) *irnode.Node {
	for _, p := range b.Ins() {
		if p != nil {
			return p
		}
	}
	return nil
}

// rewireDominatedUsers rewires every use of def whose use block is
// dominated by B to repl(use). Takes a snapshot of the use list first,
// since rewiring mutates the live out-edge index.
func rewireDominatedUsers(outs *irnode.OutEdges, dom *irdom.Info, def, B *irnode.Node, repl func(u *irnode.Node, pos int) *irnode.Node) {
	uses := append([]irnode.Use(nil), outs.Uses(def)...)
	for _, use := range uses {
		useBlock := useBlockFor(use)
		if useBlock == nil || !dom.Dominates(B, useBlock) {
			continue
		}
		if v := repl(use.User, use.Pos); v != nil {
			use.User.SetInput(use.Pos, v)
		}
	}
}

func useBlockFor(use irnode.Use) *irnode.Node {
	if use.Pos == -1 {
		return use.User // a block-input use; caller compares against the block itself upstream
	}
	return use.User.Block()
}

// switchCase handles a block entered through a Switch projection that
// pins the selector to a single value: the selector's dominated users
// see that value as a constant.
func switchCase(g *irnode.Graph, outs *irnode.OutEdges, dom *irdom.Info, B, proj, sw *irnode.Node) {
	table := sw.Table()
	if table == nil {
		return
	}
	value, ok := table.CaseFor(proj.ProjNum())
	if !ok {
		return
	}
	selector := sw.GetInput(0)
	c := g.NewNode(irnode.OpConst, selector.Mode(), B)
	c.SetConstValue(tarval.NewInt64(selector.Mode(), value))

	rewireDominatedUsers(outs, dom, selector, B, func(u *irnode.Node, pos int) *irnode.Node {
		return c
	})
}

// condCase dispatches to the boolean-selector or comparison rule
// depending on what the Cond's selector is.
func condCase(g *irnode.Graph, outs *irnode.OutEdges, dom *irdom.Info, B, proj, cond *irnode.Node) {
	selector := cond.GetInput(0)
	entered := proj.ProjNum() == 1 // ProjNum 1 is the true projection

	if selector.Op() == irnode.OpCmp {
		comparisonRule(g, outs, dom, B, cond, selector, entered)
		return
	}
	booleanSelectorRule(g, outs, dom, B, proj, cond, selector, entered)
}

// booleanSelectorRule handles a Cond over a plain boolean selector,
// including the partial-dominance Phi-merge extension: a user in
// a block reached only through B and its sibling branch's block gets a
// Phi selecting the per-predecessor constant, when that block is
// exactly the two-way merge of B and the sibling.
func booleanSelectorRule(g *irnode.Graph, outs *irnode.OutEdges, dom *irdom.Info, B, proj, cond, selector *irnode.Node, entered bool) {
	boolConst := func(v bool) *irnode.Node {
		c := g.NewNode(irnode.OpConst, mode.B, B)
		if v {
			c.SetConstValue(tarval.BTrue)
		} else {
			c.SetConstValue(tarval.BFalse)
		}
		return c
	}
	directRepl := boolConst(entered)

	sibling := siblingProj(outs, cond, proj)

	rewireDominatedUsers(outs, dom, selector, B, func(u *irnode.Node, pos int) *irnode.Node {
		return directRepl
	})

	if sibling == nil {
		return
	}
	siblingBlock := soleBlockFor(outs, sibling)
	if siblingBlock == nil {
		return
	}

	uses := append([]irnode.Use(nil), outs.Uses(selector)...)
	for _, use := range uses {
		if use.Pos == -1 {
			continue
		}
		useBlock := use.User.Block()
		if useBlock == nil || !isTwoWayMergeOf(useBlock, B, siblingBlock) {
			continue
		}
		ins := make([]*irnode.Node, useBlock.Arity())
		for i := 0; i < useBlock.Arity(); i++ {
			cf := useBlock.GetInput(i)
			var predBlock *irnode.Node
			if cf != nil {
				predBlock = cf.Block()
			}
			switch predBlock {
			case B:
				ins[i] = boolConst(entered)
			case siblingBlock:
				ins[i] = boolConst(!entered)
			default:
				ins[i] = selector
			}
		}
		phi := g.NewNode(irnode.OpPhi, mode.B, useBlock, ins...)
		use.User.SetInput(use.Pos, phi)
	}
}

// comparisonRule handles a Cond whose selector is a Cmp.
func comparisonRule(g *irnode.Graph, outs *irnode.OutEdges, dom *irdom.Info, B, cond, cmp *irnode.Node, entered bool) {
	left, right := cmp.GetInput(0), cmp.GetInput(1)
	rel := cmp.Relation()
	if !entered {
		rel = rel.Inverse()
	}
	if left.Op() == irnode.OpBad || right.Op() == irnode.OpBad {
		return
	}
	leftConst := isConstLike(left)
	rightConst := isConstLike(right)
	if leftConst && rightConst {
		return
	}
	if leftConst && !rightConst {
		left, right = right, left
		rel = rel.Inverse()
		leftConst, rightConst = rightConst, leftConst
	}

	if rel == mode.RelEqual {
		rewireDominatedUsers(outs, dom, left, B, func(u *irnode.Node, pos int) *irnode.Node {
			return right
		})
		if rightConst {
			cloneFloatingUsersIntoB(g, outs, dom, B, cond, left, right)
		}
		return
	}

	confirmLR := g.NewNode(irnode.OpConfirm, left.Mode(), B, left, right)
	confirmLR.SetRelation(rel)
	rewireDominatedUsers(outs, dom, left, B, func(u *irnode.Node, pos int) *irnode.Node {
		if u == confirmLR {
			return nil
		}
		return confirmLR
	})

	if !rightConst {
		confirmRL := g.NewNode(irnode.OpConfirm, right.Mode(), B, right, left)
		confirmRL.SetRelation(rel.Inverse())
		rewireDominatedUsers(outs, dom, right, B, func(u *irnode.Node, pos int) *irnode.Node {
			if u == confirmRL {
				return nil
			}
			return confirmRL
		})
	}
}

// isConstLike reports whether n is a Const or a symbolic (Address)
// constant.
func isConstLike(n *irnode.Node) bool {
	return n.Op() == irnode.OpConst || n.Op() == irnode.OpAddress
}

// cloneFloatingUsersIntoB implements the equal-case clone refinement:
// for a user u of left that floats and whose block dominates cond's
// block, clone u with right substituted for left into B, rewiring u's
// own dominated-by-B users to the clone.
func cloneFloatingUsersIntoB(g *irnode.Graph, outs *irnode.OutEdges, dom *irdom.Info, B, cond, left, right *irnode.Node) {
	condBlock := cond.Block()
	uses := append([]irnode.Use(nil), outs.Uses(left)...)
	for _, use := range uses {
		u := use.User
		if u.Pinned() != irnode.Floats {
			continue
		}
		if u.Block() == nil || !dom.Dominates(u.Block(), condBlock) {
			continue
		}
		ins := make([]*irnode.Node, u.Arity())
		for i, in := range u.Ins() {
			if in == left {
				ins[i] = right
			} else {
				ins[i] = in
			}
		}
		clone := irnode.CloneWithInputs(g, u, B, ins)

		rewireDominatedUsers(outs, dom, u, B, func(_ *irnode.Node, _ int) *irnode.Node {
			return clone
		})
	}
}

// nullDerefRefinement refines pointers that were already
// dereferenced: for
// each Load/Store whose pointer is not already a known-non-null
// Confirm or a symbolic constant address, refine Cmp users of the
// pointer dominated by the access's block with a not-equal-null
// Confirm.
func nullDerefRefinement(g *irnode.Graph, outs *irnode.OutEdges, dom *irdom.Info) {
	irwalk.WalkNodes(g, func(n *irnode.Node) bool {
		if n.Op() != irnode.OpLoad && n.Op() != irnode.OpStore {
			return true
		}
		p := n.GetInput(0)
		if p.Op() == irnode.OpAddress {
			return true
		}
		if p.Op() == irnode.OpConfirm && isKnownNonNull(p) {
			return true
		}
		block := n.Block()
		if block == nil {
			return true
		}
		null := g.NewNode(irnode.OpConst, p.Mode(), block)
		null.SetConstValue(tarval.Null(p.Mode()))

		uses := append([]irnode.Use(nil), outs.Uses(p)...)
		for _, use := range uses {
			u := use.User
			if u.Op() != irnode.OpCmp || u.Block() == nil || !dom.Dominates(block, u.Block()) {
				continue
			}
			confirm := g.NewNode(irnode.OpConfirm, p.Mode(), block, p, null)
			confirm.SetRelation(mode.RelNotEqual)
			u.SetInput(use.Pos, confirm)
		}
		return true
	})
}

func isKnownNonNull(confirm *irnode.Node) bool {
	if confirm.Arity() < 2 {
		return false
	}
	bound := confirm.GetInput(1)
	return bound.Op() == irnode.OpConst && confirm.Relation() == mode.RelNotEqual && bound.ConstValue().IsNull()
}

// siblingProj returns cond's other outgoing projection (the opposite
// of proj).
func siblingProj(outs *irnode.OutEdges, cond, proj *irnode.Node) *irnode.Node {
	for _, use := range outs.Uses(cond) {
		if use.User != proj && use.User.Op() == irnode.OpProj {
			return use.User
		}
	}
	return nil
}

// soleBlockFor returns the single Block node that lists proj among its
// control-flow-predecessor inputs, if there is exactly one.
func soleBlockFor(outs *irnode.OutEdges, proj *irnode.Node) *irnode.Node {
	var block *irnode.Node
	for _, use := range outs.Uses(proj) {
		if use.Pos >= 0 && use.User.Op() == irnode.OpBlock {
			if block != nil {
				return nil
			}
			block = use.User
		}
	}
	return block
}

// isTwoWayMergeOf reports whether m's control-flow predecessors come
// from exactly the two blocks {a, b} (in either order), the simple
// if-else merge shape the Phi-insertion extension targets.
func isTwoWayMergeOf(m, a, b *irnode.Node) bool {
	var blocks []*irnode.Node
	for _, cf := range m.Ins() {
		if cf == nil {
			continue
		}
		if pb := cf.Block(); pb != nil {
			blocks = append(blocks, pb)
		}
	}
	if len(blocks) != 2 {
		return false
	}
	return (blocks[0] == a && blocks[1] == b) || (blocks[0] == b && blocks[1] == a)
}
