// Package irtest builds small, hand-wired graphs for use by other
// packages' tests and by cmd/ssagraph's demo subcommands. Nothing here
// parses a source language; it just assembles the node shapes the rest
// of the repository needs to exercise (a single straight-line
// function, a diamond branch, a doubleword add) without every test
// file re-deriving the same boilerplate.
package irtest

import (
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/tarval"
)

// NewGraph creates a pinned graph for a nullary, Is-returning function
// named name, the shape most of this package's helpers build on.
func NewGraph(name string) *irnode.Graph {
	mt := &irnode.MethodType{
		Name:    name,
		Results: []irnode.Param{{Name: "ret", Mode: mode.Is}},
	}
	entity := &irnode.Entity{Name: name, Type: &irnode.Type{Kind: irnode.TypeMethod, Name: name, Method: mt}}
	frame := &irnode.Type{Kind: irnode.TypeStruct, Name: name + ".frame"}
	g := irnode.NewGraph(entity, frame)
	g.SetPinDefault(irnode.Pinned)
	return g
}

// ReturnConst builds "return c;": a Return node in the start block
// whose sole result is a Const of value c, wired to the end block, and
// returns the graph.
func ReturnConst(name string, c int64) *irnode.Graph {
	g := NewGraph(name)
	start := g.StartBlock()
	k := g.NewNode(irnode.OpConst, mode.Is, start)
	k.SetConstValue(tarval.NewInt64(mode.Is, c))
	mem := g.Anchor().Ins()[irnode.AnchorInitialMem]
	ret := g.NewNode(irnode.OpReturn, mode.X, start, mem, k)
	g.EndBlock().AppendInput(ret)
	return g
}

// Diamond builds: start -> Cond(Cmp(x, bound, rel)) -> {trueBlk,
// falseBlk} -> merge, with a Phi in merge selecting trueVal/falseVal.
// Returns the graph and the handles callers typically want to probe
// (the Cmp's left operand x, the merge block, and the Phi).
type DiamondParts struct {
	G                 *irnode.Graph
	X                 *irnode.Node
	TrueBlk, FalseBlk *irnode.Node
	Merge             *irnode.Node
	Phi               *irnode.Node
	Cond              *irnode.Node
}

func Diamond(name string, bound int64, rel mode.Relation) DiamondParts {
	g := NewGraph(name)
	start := g.StartBlock()
	x := g.NewNode(irnode.OpAdd, mode.Is, start)
	k := g.NewNode(irnode.OpConst, mode.Is, start)
	k.SetConstValue(tarval.NewInt64(mode.Is, bound))
	cmp := g.NewNode(irnode.OpCmp, mode.B, start, x, k)
	cmp.SetRelation(rel)
	cond := g.NewNode(irnode.OpCond, mode.T, start, cmp)

	trueProj := g.NewNode(irnode.OpProj, mode.X, start, cond)
	trueProj.SetProjNum(1)
	falseProj := g.NewNode(irnode.OpProj, mode.X, start, cond)
	falseProj.SetProjNum(0)
	trueBlk := g.NewBlock(trueProj)
	falseBlk := g.NewBlock(falseProj)

	trueJmp := g.NewNode(irnode.OpJmp, mode.X, trueBlk)
	falseJmp := g.NewNode(irnode.OpJmp, mode.X, falseBlk)
	merge := g.NewBlock(trueJmp, falseJmp)

	trueVal := g.NewNode(irnode.OpConst, mode.Is, trueBlk)
	trueVal.SetConstValue(tarval.NewInt64(mode.Is, 1))
	falseVal := g.NewNode(irnode.OpConst, mode.Is, falseBlk)
	falseVal.SetConstValue(tarval.NewInt64(mode.Is, 0))
	phi := g.NewNode(irnode.OpPhi, mode.Is, merge, trueVal, falseVal)

	mem := g.Anchor().Ins()[irnode.AnchorInitialMem]
	ret := g.NewNode(irnode.OpReturn, mode.X, merge, mem, phi)
	g.EndBlock().AppendInput(ret)

	return DiamondParts{G: g, X: x, TrueBlk: trueBlk, FalseBlk: falseBlk, Merge: merge, Phi: phi, Cond: cond}
}

// DoubleWordAdd builds "return a + b;" where a and b are Ls (the
// signed doubleword mode) Const nodes, the smallest shape
// irdword.Lower has to reroute through an emulation call.
func DoubleWordAdd(name string, a, b int64) *irnode.Graph {
	g := NewGraph(name)
	g.Entity().Type.Method.Results[0].Mode = mode.Ls
	start := g.StartBlock()
	ka := g.NewNode(irnode.OpConst, mode.Ls, start)
	ka.SetConstValue(tarval.NewInt64(mode.Ls, a))
	kb := g.NewNode(irnode.OpConst, mode.Ls, start)
	kb.SetConstValue(tarval.NewInt64(mode.Ls, b))
	sum := g.NewNode(irnode.OpAdd, mode.Ls, start, ka, kb)
	mem := g.Anchor().Ins()[irnode.AnchorInitialMem]
	ret := g.NewNode(irnode.OpReturn, mode.X, start, mem, sum)
	g.EndBlock().AppendInput(ret)
	return g
}
