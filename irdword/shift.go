package irdword

import (
	"fmt"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irxform"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/ssaerr"
	"github.com/oisee/ssagraph/tarval"
)

// lowerShift handles Shl/Shr/Shrs on a doubleword operand by splitting
// the current block into a two-way control-flow diamond on "is the
// shift amount smaller than the word width": the small
// side computes the shift as a shift-plus-carry across the two words,
// the large side shifts the relevant half all the way across and fills
// the other half with zero (Shl/Shr) or the sign-bit broadcast
// (Shrs). The two sides merge through a pair of Phis.
//
// Scope note: only the block's own terminator (if any) is relocated
// into the new merge block; other nodes already pinned to the original
// block are left as-is. A fully general block split would also need to
// relocate every node transitively dependent on the shift that the
// original block pinned after it; out of scope here.
func (l *Lowering) lowerShift(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	l.ensureLowerable(n.Mode())
	if ms := n.Mode().ModuloShift; ms != l.wordBits {
		ssaerr.Fatal(&ssaerr.UnsupportedError{
			What: fmt.Sprintf("irdword: doubleword mode %s has modulo-shift %d, want word width %d", n.Mode().Name, ms, l.wordBits),
		})
	}
	l.cfChanged = true

	xLow, xHigh := l.lowHigh(ctx, n.GetInput(0))
	// xHigh's own mode, not l.wordHigh: an unsigned doubleword's high
	// half is itself the unsigned word mode, per Subdivide's contract.
	highMode := xHigh.Mode()
	shamt := ctx.Lookup(n.GetInput(1))
	if shamt == nil {
		shamt = n.GetInput(1)
	}
	headBlock := ctx.Lookup(n.Block())
	terminator := findTerminator(ctx.New, headBlock)

	shamtWord := shamt
	if shamt.Mode() != l.wordLow {
		shamtWord = ctx.New.NewNode(irnode.OpConv, l.wordLow, headBlock, shamt)
	}

	wordBitsConst := constNode(ctx.New, headBlock, l.wordLow, int64(l.wordBits))
	isSmall := ctx.New.NewNode(irnode.OpCmp, mode.B, headBlock, shamtWord, wordBitsConst)
	isSmall.SetRelation(mode.RelLess)

	cond := ctx.New.NewNode(irnode.OpCond, mode.T, headBlock, isSmall)
	trueProj := ctx.New.NewNode(irnode.OpProj, mode.X, headBlock, cond)
	trueProj.SetProjNum(1)
	falseProj := ctx.New.NewNode(irnode.OpProj, mode.X, headBlock, cond)
	falseProj.SetProjNum(0)

	smallBlock := ctx.New.NewBlock(trueProj)
	largeBlock := ctx.New.NewBlock(falseProj)
	smallJmp := ctx.New.NewNode(irnode.OpJmp, mode.X, smallBlock)
	largeJmp := ctx.New.NewNode(irnode.OpJmp, mode.X, largeBlock)
	mergeBlock := ctx.New.NewBlock(smallJmp, largeJmp)

	if terminator != nil {
		terminator.Relocate(mergeBlock)
	}

	largeAmt := ctx.New.NewNode(irnode.OpSub, l.wordLow, largeBlock, shamtWord, wordBitsConst)

	// The carry straddling low/high at shamt needs a shift by
	// (wordBits-shamt). At shamt 0 that is exactly wordBits, which the
	// word mode's modulo-shift reduces to a no-op shift instead of the
	// all-zero result the carry needs there. Splitting into a shift-by-1
	// (always valid) followed by a shift by the now-always-in-range
	// (wordBits-1-shamt) never shifts by wordBits.
	one := constNode(ctx.New, smallBlock, l.wordLow, 1)
	oneHigh := constNode(ctx.New, smallBlock, highMode, 1)
	wordBitsMinus1 := constNode(ctx.New, smallBlock, l.wordLow, int64(l.wordBits-1))
	safeExp := ctx.New.NewNode(irnode.OpSub, l.wordLow, smallBlock, wordBitsMinus1, shamtWord)

	var smallLow, smallHigh, largeLow, largeHigh *irnode.Node

	switch n.Op() {
	case irnode.OpShl:
		smallLow = ctx.New.NewNode(irnode.OpShl, l.wordLow, smallBlock, xLow, shamtWord)
		carryPre := ctx.New.NewNode(irnode.OpShr, l.wordLow, smallBlock, xLow, one)
		carry := ctx.New.NewNode(irnode.OpShr, l.wordLow, smallBlock, carryPre, safeExp)
		carryHigh := ctx.New.NewNode(irnode.OpConv, highMode, smallBlock, carry)
		shHigh := ctx.New.NewNode(irnode.OpShl, highMode, smallBlock, xHigh, shamtWord)
		smallHigh = ctx.New.NewNode(irnode.OpOr, highMode, smallBlock, shHigh, carryHigh)

		largeLow = constNode(ctx.New, largeBlock, l.wordLow, 0)
		largeHigh = ctx.New.NewNode(irnode.OpShl, highMode, largeBlock, ctx.New.NewNode(irnode.OpConv, highMode, largeBlock, xLow), largeAmt)

	case irnode.OpShr:
		smallHigh = ctx.New.NewNode(irnode.OpShr, highMode, smallBlock, xHigh, shamtWord)
		carryPre := ctx.New.NewNode(irnode.OpShl, highMode, smallBlock, xHigh, oneHigh)
		carry := ctx.New.NewNode(irnode.OpShl, highMode, smallBlock, carryPre, safeExp)
		carryLow := ctx.New.NewNode(irnode.OpConv, l.wordLow, smallBlock, carry)
		shLow := ctx.New.NewNode(irnode.OpShr, l.wordLow, smallBlock, xLow, shamtWord)
		smallLow = ctx.New.NewNode(irnode.OpOr, l.wordLow, smallBlock, shLow, carryLow)

		largeHigh = constNode(ctx.New, largeBlock, highMode, 0)
		largeLow = ctx.New.NewNode(irnode.OpConv, l.wordLow, largeBlock,
			ctx.New.NewNode(irnode.OpShr, highMode, largeBlock, xHigh, largeAmt))

	case irnode.OpShrs:
		smallHigh = ctx.New.NewNode(irnode.OpShrs, highMode, smallBlock, xHigh, shamtWord)
		carryPre := ctx.New.NewNode(irnode.OpShl, highMode, smallBlock, xHigh, oneHigh)
		carry := ctx.New.NewNode(irnode.OpShl, highMode, smallBlock, carryPre, safeExp)
		carryLow := ctx.New.NewNode(irnode.OpConv, l.wordLow, smallBlock, carry)
		shLow := ctx.New.NewNode(irnode.OpShr, l.wordLow, smallBlock, xLow, shamtWord)
		smallLow = ctx.New.NewNode(irnode.OpOr, l.wordLow, smallBlock, shLow, carryLow)

		bitsMinus1 := constNode(ctx.New, largeBlock, l.wordLow, int64(l.wordBits-1))
		largeHigh = ctx.New.NewNode(irnode.OpShrs, highMode, largeBlock, xHigh, bitsMinus1)
		largeLow = ctx.New.NewNode(irnode.OpConv, l.wordLow, largeBlock,
			ctx.New.NewNode(irnode.OpShrs, highMode, largeBlock, xHigh, largeAmt))
	}

	lowPhi := ctx.New.NewNode(irnode.OpPhi, l.wordLow, mergeBlock, smallLow, largeLow)
	highPhi := ctx.New.NewNode(irnode.OpPhi, highMode, mergeBlock, smallHigh, largeHigh)

	l.setHalves(n, lowPhi, highPhi)
	return lowPhi
}

func constNode(g *irnode.Graph, block *irnode.Node, m *mode.Mode, v int64) *irnode.Node {
	c := g.NewNode(irnode.OpConst, m, block)
	c.SetConstValue(tarval.NewInt64(m, v))
	return c
}

// findTerminator locates the control-flow node (if any) already pinned
// to block, before lowerShift adds its own Cond there. That existing
// terminator is re-pinned onto the new merge block afterward, since
// block's own terminator becomes the freshly built Cond (see
// lowerShift's scope note above).
func findTerminator(g *irnode.Graph, block *irnode.Node) *irnode.Node {
	for _, cand := range g.Nodes() {
		if cand == nil || cand.Block() != block {
			continue
		}
		// Start is control-flow-moded but not a terminator; moving it
		// would re-root the graph.
		switch cand.Op() {
		case irnode.OpJmp, irnode.OpCond, irnode.OpSwitch, irnode.OpReturn:
			return cand
		}
	}
	return nil
}
