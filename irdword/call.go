package irdword

import (
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irxform"
)

// callLayout records, for one lowered Call, how its old result-Proj
// numbers map onto the lowered Call's Proj numbers: a doubleword
// result consumes two consecutive new slots instead of one.
type callLayout struct {
	results []irnode.Param
	offsets []int // offsets[i] (1-based i) is the new Proj number for old result i
}

// lowerCall replaces a Call's method type with its lowered form,
// expands any doubleword argument into an ordered (low, high) pair,
// and records the result-Proj renumbering lowerProj needs.
// Convention: a Call's data inputs are [mem, callee,
// args...], mode T; Proj 0 reads the memory result, Proj i>=1 reads
// the i-th (lowered) result.
func (l *Lowering) lowerCall(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	mt := n.MethodType()
	if mt == nil {
		return irxform.DefaultRebuild(ctx, n)
	}
	needs := false
	for _, p := range mt.Params {
		if isDoubleWord(p.Mode, l.wordBits) {
			needs = true
		}
	}
	for _, r := range mt.Results {
		if isDoubleWord(r.Mode, l.wordBits) {
			needs = true
		}
	}
	// Emulation calls synthesized by lowerArithCall carry no memory
	// input; their arity doesn't follow the [mem, callee, args...]
	// convention and they never need lowering themselves.
	if !needs || n.Arity() != len(mt.Params)+2 {
		return irxform.DefaultRebuild(ctx, n)
	}
	block := ctx.Lookup(n.Block())
	lowered := l.LowerMethodType(mt)

	mem := ctx.Lookup(n.GetInput(0))
	callee := ctx.Lookup(n.GetInput(1))
	newIns := []*irnode.Node{mem, callee}

	argIdx := 2
	for _, p := range mt.Params {
		arg := n.GetInput(argIdx)
		if isDoubleWord(p.Mode, l.wordBits) {
			low, high := l.lowHigh(ctx, arg)
			first, second := pairOrderNodes(l.littleEndian, low, high)
			newIns = append(newIns, first, second)
		} else {
			newIns = append(newIns, ctx.Lookup(arg))
		}
		argIdx++
	}

	call := ctx.New.NewNode(irnode.OpCall, n.Mode(), block, newIns...)
	call.SetMethodType(lowered)
	if n.Entity() != nil {
		call.SetEntity(n.Entity())
	}

	offsets := make([]int, len(mt.Results)+1)
	next := 1
	for i, r := range mt.Results {
		offsets[i+1] = next
		if isDoubleWord(r.Mode, l.wordBits) {
			next += 2
		} else {
			next++
		}
	}
	l.callLayouts[n.Index()] = callLayout{results: mt.Results, offsets: offsets}

	return call
}

// lowerProj rebuilds a Proj, remapping its ProjNum per the owning
// Call's callLayout when its predecessor was a lowered Call, splitting
// a doubleword result into a (low, high) Proj pair, and falling back
// to the default rebuild for every other Proj (mem/args projections off
// Start, Cond's true/false projections, non-doubleword Call results).
func (l *Lowering) lowerProj(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	pred := n.GetInput(0)
	layout, ok := l.callLayouts[pred.Index()]
	if !ok {
		return irxform.DefaultRebuild(ctx, n)
	}
	newCall := ctx.Lookup(pred)
	block := ctx.Lookup(n.Block())

	if n.ProjNum() == 0 {
		proj := ctx.New.NewNode(irnode.OpProj, n.Mode(), block, newCall)
		proj.SetProjNum(0)
		return proj
	}

	result := layout.results[n.ProjNum()-1]
	newIdx := layout.offsets[n.ProjNum()]
	if !isDoubleWord(result.Mode, l.wordBits) {
		proj := ctx.New.NewNode(irnode.OpProj, n.Mode(), block, newCall)
		proj.SetProjNum(newIdx)
		return proj
	}

	low, high := result.Mode.Subdivide()
	lowProj := ctx.New.NewNode(irnode.OpProj, low, block, newCall)
	lowProj.SetProjNum(newIdx)
	highProj := ctx.New.NewNode(irnode.OpProj, high, block, newCall)
	highProj.SetProjNum(newIdx + 1)

	l.setHalves(n, lowProj, highProj)
	return lowProj
}
