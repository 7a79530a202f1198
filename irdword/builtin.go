package irdword

import (
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irxform"
	"github.com/oisee/ssagraph/mode"
)

// lowerBuiltin decomposes the five reduction builtins over a
// doubleword operand into word-size builtins on both halves combined
// by a zero-test Mux (ffs/clz/ctz), an add (popcount) or an XOR
// (parity); byte-swap swaps the two halves in addition to byte-
// swapping each one. Every other builtin (trap, frame/return-address,
// prefetch, in/outport, trampoline) is left untouched.
func (l *Lowering) lowerBuiltin(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	x := n.GetInput(0)
	if !l.isDW(x.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	block := ctx.Lookup(n.Block())
	xLow, xHigh := l.lowHigh(ctx, x)

	if n.Builtin() == irnode.BuiltinByteSwap {
		newLow := ctx.New.NewNode(irnode.OpBuiltin, l.wordLow, block, xHigh)
		newLow.SetBuiltin(irnode.BuiltinByteSwap)
		newHigh := ctx.New.NewNode(irnode.OpBuiltin, l.wordHigh, block, xLow)
		newHigh.SetBuiltin(irnode.BuiltinByteSwap)
		l.setHalves(n, newLow, newHigh)
		return newLow
	}

	if !n.Builtin().IsReduction() {
		return irxform.DefaultRebuild(ctx, n)
	}

	resultMode := n.Mode()
	wordBitsConst := constNode(ctx.New, block, resultMode, int64(l.wordBits))
	lowBuiltin := func() *irnode.Node {
		b := ctx.New.NewNode(irnode.OpBuiltin, resultMode, block, xLow)
		b.SetBuiltin(n.Builtin())
		return b
	}
	highBuiltin := func() *irnode.Node {
		b := ctx.New.NewNode(irnode.OpBuiltin, resultMode, block, xHigh)
		b.SetBuiltin(n.Builtin())
		return b
	}
	isZero := func(half *irnode.Node) *irnode.Node {
		zero := constNode(ctx.New, block, half.Mode(), 0)
		cmp := ctx.New.NewNode(irnode.OpCmp, mode.B, block, half, zero)
		cmp.SetRelation(mode.RelEqual)
		return cmp
	}

	switch n.Builtin() {
	case irnode.BuiltinPopcount:
		return ctx.New.NewNode(irnode.OpAdd, resultMode, block, lowBuiltin(), highBuiltin())

	case irnode.BuiltinParity:
		return ctx.New.NewNode(irnode.OpEor, resultMode, block, lowBuiltin(), highBuiltin())

	case irnode.BuiltinCLZ:
		highZero := isZero(xHigh)
		lowPath := ctx.New.NewNode(irnode.OpAdd, resultMode, block, wordBitsConst, lowBuiltin())
		return ctx.New.NewNode(irnode.OpMux, resultMode, block, highZero, lowPath, highBuiltin())

	case irnode.BuiltinCTZ:
		lowZero := isZero(xLow)
		highPath := ctx.New.NewNode(irnode.OpAdd, resultMode, block, wordBitsConst, highBuiltin())
		return ctx.New.NewNode(irnode.OpMux, resultMode, block, lowZero, highPath, lowBuiltin())

	case irnode.BuiltinFFS:
		zero := constNode(ctx.New, block, resultMode, 0)
		highZero := isZero(xHigh)
		highPath := ctx.New.NewNode(irnode.OpAdd, resultMode, block, wordBitsConst, highBuiltin())
		highAdj := ctx.New.NewNode(irnode.OpMux, resultMode, block, highZero, zero, highPath)
		lowZero := isZero(xLow)
		return ctx.New.NewNode(irnode.OpMux, resultMode, block, lowZero, highAdj, lowBuiltin())
	}

	return irxform.DefaultRebuild(ctx, n)
}
