package irxform

import (
	"testing"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/tarval"
)

func TestTransformGraphIdentityByDefault(t *testing.T) {
	g := irnode.NewGraph(&irnode.Entity{Name: "f"}, nil)
	b := g.StartBlock()
	c := g.NewNode(irnode.OpConst, mode.Is, b)
	c.SetConstValue(tarval.NewInt64(mode.Is, 5))

	table := NewTable()
	ctx := TransformGraph(g, table, nil, nil)

	if got := ctx.Lookup(c); got != c {
		t.Fatalf("expected identity transform for unregistered op, got %v", got)
	}
}

func TestTransformGraphHandlerDispatch(t *testing.T) {
	g := irnode.NewGraph(&irnode.Entity{Name: "f"}, nil)
	b := g.StartBlock()
	c := g.NewNode(irnode.OpConst, mode.Is, b)
	c.SetConstValue(tarval.NewInt64(mode.Is, 5))

	table := NewTable()
	var replacement *irnode.Node
	table.Register(irnode.OpConst, func(ctx *Context, n *irnode.Node) *irnode.Node {
		replacement = ctx.New.NewNode(irnode.OpConst, n.Mode(), n.Block())
		replacement.SetConstValue(n.ConstValue())
		return replacement
	})

	ctx := TransformGraph(g, table, nil, nil)
	if got := ctx.Lookup(c); got != replacement {
		t.Fatalf("expected handler's replacement, got %v want %v", got, replacement)
	}
	if replacement == c {
		t.Fatal("handler should have produced a distinct node")
	}
}

func TestTransformGraphPhiFixup(t *testing.T) {
	g := irnode.NewGraph(&irnode.Entity{Name: "f"}, nil)
	b := g.StartBlock()
	merge := g.NewBlock(b, b)
	c1 := g.NewNode(irnode.OpConst, mode.Is, b)
	c1.SetConstValue(tarval.NewInt64(mode.Is, 1))
	phi := g.NewNode(irnode.OpPhi, mode.Is, merge, c1, c1)

	table := NewTable()
	var fixedUp bool
	ctx := TransformGraph(g, table, nil, func(ctx *Context, old, new *irnode.Node) {
		if old == phi {
			fixedUp = true
		}
	})
	if !fixedUp {
		t.Fatal("expected Phi fix-up callback to run for the Phi node")
	}
	if ctx.Lookup(phi) != phi {
		t.Fatalf("unregistered Phi op should transform to itself")
	}
}
