package irpass_test

import (
	"errors"
	"testing"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irpass"
	"github.com/oisee/ssagraph/ssaerr"
)

func newTestGraph() *irnode.Graph {
	return irnode.NewGraph(&irnode.Entity{Name: "test"}, &irnode.Type{Kind: irnode.TypeStruct})
}

func TestRunRunsPrerequisitesInOrder(t *testing.T) {
	g := newTestGraph()
	m := irpass.NewManager()

	var order []string
	buildOuts := &irpass.Pass{
		Name:     "build-outs",
		Provides: irnode.PropConsistentOuts,
		Run: func(g *irnode.Graph) error {
			order = append(order, "build-outs")
			irnode.Build(g)
			return nil
		},
	}
	buildDom := &irpass.Pass{
		Name:     "build-dom",
		Requires: irnode.PropConsistentOuts,
		Provides: irnode.PropConsistentDominance,
		Run: func(g *irnode.Graph) error {
			order = append(order, "build-dom")
			return nil
		},
	}
	m.Register(buildOuts)
	m.Register(buildDom)

	if err := m.Run(g, buildDom); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(order) != 2 || order[0] != "build-outs" || order[1] != "build-dom" {
		t.Fatalf("unexpected run order: %v", order)
	}
	if !g.Properties().Has(irnode.PropConsistentOuts) || !g.Properties().Has(irnode.PropConsistentDominance) {
		t.Fatal("expected both properties held after Run")
	}
}

func TestEnsureSkipsAlreadyHeldProperty(t *testing.T) {
	g := newTestGraph()
	g.SetProperties(irnode.PropConsistentOuts)
	m := irpass.NewManager()

	ran := false
	m.Register(&irpass.Pass{
		Name:     "build-outs",
		Provides: irnode.PropConsistentOuts,
		Run: func(g *irnode.Graph) error {
			ran = true
			return nil
		},
	})

	if err := m.Ensure(g, irnode.PropConsistentOuts); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if ran {
		t.Fatal("producer should not run when the property is already held")
	}
}

func TestRunClearsInvalidatedProperties(t *testing.T) {
	g := newTestGraph()
	g.SetProperties(irnode.PropConsistentDominance | irnode.PropConsistentOuts)
	m := irpass.NewManager()

	rewrite := &irpass.Pass{
		Name:        "rewrite",
		Invalidates: irnode.PropConsistentDominance,
		Run:         func(g *irnode.Graph) error { return nil },
	}
	if err := m.Run(g, rewrite); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if g.Properties().Has(irnode.PropConsistentDominance) {
		t.Fatal("expected dominance invalidated")
	}
	if !g.Properties().Has(irnode.PropConsistentOuts) {
		t.Fatal("expected unrelated property to survive")
	}
}

func TestEnsureMissingProducerReturnsPreconditionError(t *testing.T) {
	g := newTestGraph()
	m := irpass.NewManager()

	err := m.Ensure(g, irnode.PropConsistentLoopInfo)
	if err == nil {
		t.Fatal("expected an error when no producer is registered for the required property")
	}
	var precond *ssaerr.PreconditionError
	if !errors.As(err, &precond) {
		t.Fatalf("expected a *ssaerr.PreconditionError, got %T: %v", err, err)
	}
}
