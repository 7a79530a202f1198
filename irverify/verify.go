// Package irverify implements the graph verifier: a fast per-node
// mode/structural check that always runs, and an exhaustive
// SSA-dominance check that additionally runs once dominance is
// consistent and the graph is pinned.
package irverify

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/oisee/ssagraph/irdom"
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irwalk"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/ssaerr"
)

// ContinuePolicy controls what Verify does once it has collected one
// or more failures.
type ContinuePolicy int

const (
	// PolicyOff discards failures silently; Verify always returns nil.
	PolicyOff ContinuePolicy = iota
	// PolicyReport logs each failure via glog and returns a combined
	// error, without panicking.
	PolicyReport
	// PolicyAbort logs and panics via ssaerr.Fatal, like the other
	// fatal error kinds.
	PolicyAbort
)

// Verify runs the fast per-node check over every node reachable from
// g's anchor and end node, then, if
// dom is non-nil and g is pinned with a consistent dominance property,
// the exhaustive SSA-dominance check. Failures are handled per policy.
func Verify(g *irnode.Graph, dom *irdom.Info, policy ContinuePolicy) error {
	var failures []error

	irwalk.WalkNodes(g, func(n *irnode.Node) bool {
		if err := checkNode(n); err != nil {
			failures = append(failures, err)
		}
		return true
	})
	failures = append(failures, checkCondProjections(g)...)

	if dom != nil && g.IsPinned() && g.Properties().Has(irnode.PropConsistentDominance) {
		failures = append(failures, checkSSADominance(g, dom)...)
	}

	if len(failures) == 0 {
		return nil
	}

	switch policy {
	case PolicyOff:
		return nil
	case PolicyReport:
		combined := errors.Join(failures...)
		for _, f := range failures {
			glog.Errorf("verify: %v", f)
		}
		return combined
	case PolicyAbort:
		combined := errors.Join(failures...)
		ssaerr.Fatal(&ssaerr.VerifyError{Node: "graph", Cause: combined.Error()})
		return nil // unreachable: Fatal panics
	default:
		return fmt.Errorf("irverify: unknown continuation policy %d", policy)
	}
}

// checkNode applies the per-opcode mode/structural table.
func checkNode(n *irnode.Node) error {
	if err := checkStructure(n); err != nil {
		return err
	}
	return checkModes(n)
}

func checkStructure(n *irnode.Node) error {
	switch n.Op() {
	case irnode.OpBlock:
		for _, p := range n.Ins() {
			if p == nil {
				continue
			}
			if p.Op() != irnode.OpBad && !p.Op().IsControlFlow() && p.Op() != irnode.OpProj {
				return &ssaerr.VerifyError{Node: n.String(), Pred: p.String(),
					Cause: "block predecessor is not a control-flow op, Proj, or Bad"}
			}
		}
	case irnode.OpPhi:
		if n.Block() != nil && n.Arity() != n.Block().Arity() {
			return &ssaerr.VerifyError{Node: n.String(),
				Cause: fmt.Sprintf("phi arity %d does not match block arity %d", n.Arity(), n.Block().Arity())}
		}
	case irnode.OpProj:
		if pred := n.GetInput(0); pred != nil && pred.Mode() != mode.T {
			return &ssaerr.VerifyError{Node: n.String(), Pred: pred.String(),
				Cause: "proj predecessor does not have mode T"}
		}
	case irnode.OpSwitch:
		if n.Table() != nil {
			if err := n.Table().Validate(); err != nil {
				return &ssaerr.VerifyError{Node: n.String(), Cause: err.Error()}
			}
		}
	case irnode.OpReturn:
		// A Return's data inputs are [mem, results...]; only the result
		// slots are matched against the function type.
		if mt := n.Graph().Entity().Type; mt != nil && mt.Method != nil && n.Arity() >= 1 {
			if n.Arity()-1 != len(mt.Method.Results) {
				return &ssaerr.VerifyError{Node: n.String(),
					Cause: fmt.Sprintf("return carries %d results but the function type has %d", n.Arity()-1, len(mt.Method.Results))}
			}
		}
	}
	return nil
}

// checkModes applies the per-opcode mode-correctness rules; ops
// without an explicit rule below are accepted as-is, their mode
// discipline being enforced at construction time by the package that
// builds them (e.g. irdword's lowering rules).
func checkModes(n *irnode.Node) error {
	switch n.Op() {
	case irnode.OpAdd, irnode.OpSub, irnode.OpMul, irnode.OpDiv, irnode.OpMod,
		irnode.OpAnd, irnode.OpOr, irnode.OpEor:
		for i := 0; i < n.Arity(); i++ {
			if in := n.GetInput(i); in != nil && in.Mode() != n.Mode() {
				return &ssaerr.VerifyError{Node: n.String(), Pred: in.String(),
					Cause: fmt.Sprintf("operand mode %s does not match result mode %s", in.Mode().Name, n.Mode().Name)}
			}
		}
	case irnode.OpNot, irnode.OpMinus:
		if in := n.GetInput(0); in != nil && in.Mode() != n.Mode() {
			return &ssaerr.VerifyError{Node: n.String(), Pred: in.String(),
				Cause: "operand mode does not match result mode"}
		}
	case irnode.OpCmp:
		if n.Mode() != mode.B {
			return &ssaerr.VerifyError{Node: n.String(), Cause: "Cmp result must have mode b"}
		}
		if n.Arity() == 2 {
			left, right := n.GetInput(0), n.GetInput(1)
			if left != nil && right != nil && left.Mode() != right.Mode() {
				return &ssaerr.VerifyError{Node: n.String(),
					Cause: fmt.Sprintf("Cmp operands have mismatched modes %s vs %s", left.Mode().Name, right.Mode().Name)}
			}
		}
	case irnode.OpLoad:
		if p := n.GetInput(0); p != nil && p.Mode() != mode.P {
			return &ssaerr.VerifyError{Node: n.String(), Pred: p.String(), Cause: "Load pointer operand must have mode P"}
		}
	case irnode.OpStore:
		if p := n.GetInput(0); p != nil && p.Mode() != mode.P {
			return &ssaerr.VerifyError{Node: n.String(), Pred: p.String(), Cause: "Store pointer operand must have mode P"}
		}
	case irnode.OpMux:
		if n.Arity() == 3 {
			sel := n.GetInput(0)
			if sel != nil && sel.Mode() != mode.B {
				return &ssaerr.VerifyError{Node: n.String(), Pred: sel.String(), Cause: "Mux selector must have mode b"}
			}
			t, f := n.GetInput(1), n.GetInput(2)
			if t != nil && t.Mode() != n.Mode() {
				return &ssaerr.VerifyError{Node: n.String(), Pred: t.String(), Cause: "Mux true-branch mode does not match result"}
			}
			if f != nil && f.Mode() != n.Mode() {
				return &ssaerr.VerifyError{Node: n.String(), Pred: f.String(), Cause: "Mux false-branch mode does not match result"}
			}
		}
	}
	return nil
}

// checkCondProjections checks that every Cond node has exactly one
// true (ProjNum 1) and one false (ProjNum 0) projection among its
// users.
func checkCondProjections(g *irnode.Graph) []error {
	outs := irnode.Assure(g)
	var failures []error
	irwalk.WalkNodes(g, func(n *irnode.Node) bool {
		if n.Op() != irnode.OpCond {
			return true
		}
		var trueCount, falseCount int
		for _, use := range outs.Uses(n) {
			if use.User.Op() != irnode.OpProj {
				continue
			}
			if use.User.ProjNum() == 1 {
				trueCount++
			} else {
				falseCount++
			}
		}
		if trueCount != 1 || falseCount != 1 {
			failures = append(failures, &ssaerr.VerifyError{Node: n.String(),
				Cause: fmt.Sprintf("Cond must have exactly one true-proj and one false-proj, found %d/%d", trueCount, falseCount)})
		}
		return true
	})
	return failures
}

// checkSSADominance is the exhaustive check: for every use of a
// value v by a user u at input i, def-block(v) dominates the
// appropriate use block: for Phi, the i-th predecessor block,
// otherwise u's own block.
func checkSSADominance(g *irnode.Graph, dom *irdom.Info) []error {
	outs := irnode.Assure(g)
	var failures []error

	irwalk.WalkNodes(g, func(v *irnode.Node) bool {
		defBlock := v.Block()
		if defBlock == nil {
			return true // Start/End/Anchor/Block themselves have no defining block to check
		}
		for _, use := range outs.Uses(v) {
			u := use.User
			var useBlock *irnode.Node
			if u.Op() == irnode.OpPhi && use.Pos >= 0 {
				if u.Block() == nil || use.Pos >= u.Block().Arity() {
					continue
				}
				// The i-th predecessor block is the block of the i-th
				// control-flow predecessor node, not that node itself.
				cf := u.Block().GetInput(use.Pos)
				if cf == nil {
					continue
				}
				useBlock = cf.Block()
			} else {
				useBlock = u.Block()
			}
			if useBlock == nil {
				continue
			}
			if !dom.Dominates(defBlock, useBlock) {
				failures = append(failures, &ssaerr.VerifyError{
					Node: v.String(), Pred: u.String(),
					Cause: "definition does not dominate use",
				})
			}
		}
		return true
	})
	return failures
}
