package irnode

import (
	"testing"

	"github.com/oisee/ssagraph/mode"
)

func newTestGraph() *Graph {
	entity := &Entity{Name: "test"}
	return NewGraph(entity, &Type{Kind: TypeStruct, Name: "frame"})
}

// wireToEnd routes n into a Return reaching the end block, so the
// out-edge build (which only sees nodes reachable from end/anchors)
// indexes the test subgraph.
func wireToEnd(g *Graph, n *Node) *Node {
	ret := g.NewNode(OpReturn, mode.X, n.Block(), n)
	g.EndBlock().AppendInput(ret)
	return ret
}

func TestBuildOutsRecordsEveryEdgeExactlyOnce(t *testing.T) {
	g := newTestGraph()
	block := g.NewBlock(g.StartBlock())
	a := g.NewNode(OpConst, mode.Is, block)
	b := g.NewNode(OpConst, mode.Is, block)
	add := g.NewNode(OpAdd, mode.Is, block, a, b)
	add2 := g.NewNode(OpAdd, mode.Is, block, a, add)
	wireToEnd(g, add2)

	oe := Build(g)

	usesOfA := oe.Uses(a)
	if len(usesOfA) != 2 {
		t.Fatalf("expected a to have 2 uses, got %d: %+v", len(usesOfA), usesOfA)
	}
	usesOfB := oe.Uses(b)
	if len(usesOfB) != 1 || usesOfB[0].User != add || usesOfB[0].Pos != 1 {
		t.Fatalf("expected b to have exactly one use at add pos 1, got %+v", usesOfB)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	g := newTestGraph()
	block := g.NewBlock(g.StartBlock())
	a := g.NewNode(OpConst, mode.Is, block)
	add := g.NewNode(OpAdd, mode.Is, block, a, a)
	wireToEnd(g, add)

	oe1 := Build(g)
	first := append([]Use(nil), oe1.Uses(a)...)
	oe2 := Build(g)
	second := oe2.Uses(a)

	if len(first) != len(second) {
		t.Fatalf("rebuild changed use count: %d vs %d", len(first), len(second))
	}
}

func TestSetInputRethreadsWhenConsistent(t *testing.T) {
	g := newTestGraph()
	block := g.NewBlock(g.StartBlock())
	a := g.NewNode(OpConst, mode.Is, block)
	b := g.NewNode(OpConst, mode.Is, block)
	add := g.NewNode(OpAdd, mode.Is, block, a, a)
	wireToEnd(g, add)

	Build(g)
	add.SetInput(1, b)

	oe := g.Outs()
	if len(oe.Uses(a)) != 1 {
		t.Fatalf("expected a to have exactly one remaining use after rethread, got %d", len(oe.Uses(a)))
	}
	usesOfB := oe.Uses(b)
	if len(usesOfB) != 1 || usesOfB[0].User != add || usesOfB[0].Pos != 1 {
		t.Fatalf("expected b to pick up the rethreaded use, got %+v", usesOfB)
	}
}

func TestExchangeRewiresAllUses(t *testing.T) {
	g := newTestGraph()
	block := g.NewBlock(g.StartBlock())
	a := g.NewNode(OpConst, mode.Is, block)
	repl := g.NewNode(OpConst, mode.Is, block)
	add1 := g.NewNode(OpAdd, mode.Is, block, a, a)
	add2 := g.NewNode(OpAdd, mode.Is, block, a, add1)
	wireToEnd(g, add2)

	Build(g)
	Exchange(a, repl)

	if add1.GetInput(0) != repl || add1.GetInput(1) != repl {
		t.Fatalf("add1 inputs not rewired: %v %v", add1.GetInput(0), add1.GetInput(1))
	}
	if add2.GetInput(0) != repl {
		t.Fatalf("add2 input 0 not rewired: %v", add2.GetInput(0))
	}
	if len(g.Outs().Uses(a)) != 0 {
		t.Fatalf("expected no remaining uses of a after Exchange")
	}
}

func TestUsesPanicsWhenInconsistent(t *testing.T) {
	g := newTestGraph()
	block := g.NewBlock(g.StartBlock())
	a := g.NewNode(OpConst, mode.Is, block)
	add := g.NewNode(OpAdd, mode.Is, block, a, a)
	wireToEnd(g, add)

	oe := Build(g)
	oe.Invalidate()

	defer func() {
		if recover() == nil {
			t.Fatal("expected Uses on an inconsistent index to panic")
		}
	}()
	oe.Uses(a)
}
