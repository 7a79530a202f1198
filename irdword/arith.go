package irdword

import (
	"fmt"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irxform"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/ssaerr"
)

// lowerArithCall handles Add/Sub/Mul/Div/Mod on doubleword operands:
// none of these decompose into independent low/high word ops (unlike
// And/Or/Eor), so each becomes a call to an emulation intrinsic taking
// the operands' word halves in order, returning a (low, high) tuple.
func (l *Lowering) lowerArithCall(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	l.ensureLowerable(n.Mode())
	block := ctx.Lookup(n.Block())
	aLow, aHigh := l.lowHigh(ctx, n.GetInput(0))
	bLow, bHigh := l.lowHigh(ctx, n.GetInput(1))

	omode := l.wordLow
	if n.Mode().Signed == mode.Signed {
		omode = l.wordHigh
	}

	mt := &irnode.MethodType{
		Name: fmt.Sprintf("__%s_dw%d", opIntrinsicName(n.Op()), n.Mode().Bits),
		Params: []irnode.Param{
			{Name: "a.lo", Mode: l.wordLow}, {Name: "a.hi", Mode: omode},
			{Name: "b.lo", Mode: l.wordLow}, {Name: "b.hi", Mode: omode},
		},
		Results: []irnode.Param{
			{Name: "lo", Mode: l.wordLow}, {Name: "hi", Mode: omode},
		},
	}

	entity, err := l.intr.lookup(mt, n.Op(), n.Mode(), omode)
	if err != nil {
		ssaerr.Fatal(err)
	}

	callee := ctx.New.NewNode(irnode.OpAddress, mode.P, block)
	callee.SetEntity(entity)

	call := ctx.New.NewNode(irnode.OpCall, mode.T, block, callee, aLow, aHigh, bLow, bHigh)
	call.SetMethodType(mt)
	call.SetEntity(entity)

	lowProj := ctx.New.NewNode(irnode.OpProj, l.wordLow, block, call)
	lowProj.SetProjNum(0)
	highProj := ctx.New.NewNode(irnode.OpProj, omode, block, call)
	highProj.SetProjNum(1)

	l.setHalves(n, lowProj, highProj)
	return lowProj
}

// opIntrinsicName is the short token used in a synthesized intrinsic
// method-type name, purely for readability in dumps; the factory is
// free to ignore it and name the real emulation routine however its
// runtime does.
func opIntrinsicName(op irnode.Op) string {
	switch op {
	case irnode.OpAdd:
		return "add"
	case irnode.OpSub:
		return "sub"
	case irnode.OpMul:
		return "mul"
	case irnode.OpDiv:
		return "div"
	case irnode.OpMod:
		return "mod"
	}
	return op.String()
}
