package irdword

import (
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irxform"
	"github.com/oisee/ssagraph/mode"
)

// lowerCmp decomposes a Cmp whose operands are doubleword into word-
// size comparisons: equality/inequality tests the XOR of both halves
// against zero; ordering tests the high relation, falling back to the
// low relation when the high halves are equal. Cmp's own mode is
// always b, never doubleword, so the operand's mode, not n.Mode(), is
// what decides whether lowering applies.
func (l *Lowering) lowerCmp(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	left := n.GetInput(0)
	if !l.isDW(left.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	block := ctx.Lookup(n.Block())
	aLow, aHigh := l.lowHigh(ctx, left)
	bLow, bHigh := l.lowHigh(ctx, n.GetInput(1))
	rel := n.Relation()

	if rel == mode.RelEqual || rel == mode.RelNotEqual {
		xorLow := ctx.New.NewNode(irnode.OpEor, l.wordLow, block, aLow, bLow)
		// aHigh's own mode, not l.wordHigh: only a signed doubleword's
		// high half is actually the signed word mode.
		xorHighRaw := ctx.New.NewNode(irnode.OpEor, aHigh.Mode(), block, aHigh, bHigh)
		xorHigh := ctx.New.NewNode(irnode.OpConv, l.wordLow, block, xorHighRaw)
		combined := ctx.New.NewNode(irnode.OpOr, l.wordLow, block, xorLow, xorHigh)
		zero := constNode(ctx.New, block, l.wordLow, 0)
		cmp := ctx.New.NewNode(irnode.OpCmp, mode.B, block, combined, zero)
		cmp.SetRelation(rel)
		return cmp
	}

	// The high term must be strict: at tied high words the non-strict
	// part of the relation is decided by the low words alone.
	highCmp := ctx.New.NewNode(irnode.OpCmp, mode.B, block, aHigh, bHigh)
	highCmp.SetRelation(rel &^ mode.RelEqual)
	highEq := ctx.New.NewNode(irnode.OpCmp, mode.B, block, aHigh, bHigh)
	highEq.SetRelation(mode.RelEqual)
	lowCmp := ctx.New.NewNode(irnode.OpCmp, mode.B, block, aLow, bLow)
	lowCmp.SetRelation(rel)
	tieBreak := ctx.New.NewNode(irnode.OpAnd, mode.B, block, highEq, lowCmp)
	return ctx.New.NewNode(irnode.OpOr, mode.B, block, highCmp, tieBreak)
}
