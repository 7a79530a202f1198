package irdword_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/oisee/ssagraph/irdword"
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/tarval"
)

func newTestGraph() *irnode.Graph {
	g := irnode.NewGraph(&irnode.Entity{Name: "test"}, &irnode.Type{Kind: irnode.TypeStruct})
	g.SetPinDefault(irnode.Pinned)
	return g
}

// keepAlive anchors n so TransformGraph's walk (rooted at End/Anchor)
// reaches it.
func keepAlive(g *irnode.Graph, n *irnode.Node) {
	g.End().AppendInput(n)
}

// reachable does a plain BFS over block/data edges from End and Anchor,
// the same roots TransformGraph walks from, so tests can assert things
// about "the nodes that actually survive in the final graph" rather
// than every node ever allocated (lowering leaves orphaned Dummy/old
// nodes behind in the arena, by design).
func reachable(g *irnode.Graph) []*irnode.Node {
	seen := make(map[int32]bool)
	var out []*irnode.Node
	var walk func(n *irnode.Node)
	walk = func(n *irnode.Node) {
		if n == nil || seen[n.Index()] {
			return
		}
		seen[n.Index()] = true
		out = append(out, n)
		walk(n.Block())
		for _, in := range n.Ins() {
			walk(in)
		}
	}
	walk(g.End())
	walk(g.Anchor())
	for _, in := range g.Anchor().Ins() {
		walk(in)
	}
	return out
}

func stubFactory(name string) irdword.IntrinsicFactory {
	return func(mt *irnode.MethodType, op irnode.Op, imode, omode *mode.Mode, ctx any) (*irnode.Entity, error) {
		return &irnode.Entity{Name: name, Type: &irnode.Type{Kind: irnode.TypeMethod, Method: mt}}, nil
	}
}

func dwConst(g *irnode.Graph, block *irnode.Node, m *mode.Mode, v *big.Int) *irnode.Node {
	c := g.NewNode(irnode.OpConst, m, block)
	c.SetConstValue(tarval.New(m, v))
	return c
}

// --- invariant 6: no doubleword-mode node survives, lowering is idempotent ---

func TestLowerEliminatesDoubleWordModes(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()
	a := dwConst(g, start, mode.Ls, big.NewInt(1))
	b := dwConst(g, start, mode.Ls, big.NewInt(2))
	add := g.NewNode(irnode.OpAdd, mode.Ls, start, a, b)
	keepAlive(g, add)

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("__add_dw64")}); err != nil {
		t.Fatalf("Lower: %v", err)
	}

	for _, n := range reachable(g) {
		if n.Mode() != nil && n.Mode().IsDoubleWord(32) {
			t.Fatalf("node %v still has a doubleword mode after lowering", n)
		}
	}
}

func TestLowerIdempotent(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()
	a := dwConst(g, start, mode.Lu, big.NewInt(7))
	b := dwConst(g, start, mode.Lu, big.NewInt(9))
	andNode := g.NewNode(irnode.OpAnd, mode.Lu, start, a, b)
	keepAlive(g, andNode)

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("__add_dw64")}); err != nil {
		t.Fatalf("first Lower: %v", err)
	}
	before := len(reachable(g))

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("__add_dw64")}); err != nil {
		t.Fatalf("second Lower: %v", err)
	}
	after := len(reachable(g))

	if before != after {
		t.Fatalf("second Lower pass changed the reachable node count: %d -> %d", before, after)
	}
	for _, n := range reachable(g) {
		if n.Mode() != nil && n.Mode().IsDoubleWord(32) {
			t.Fatalf("node %v has a doubleword mode after a second Lower pass", n)
		}
	}
}

// --- invariant 7: a doubleword Phi becomes exactly two word Phis, -----------
// --- index-aligned with the original predecessor list -----------------------

func TestLowerSplitsPhiWithAlignedPredecessors(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()
	merge := g.NewBlock(start, start)

	a := dwConst(g, start, mode.Ls, big.NewInt(100))
	b := dwConst(g, start, mode.Ls, big.NewInt(200))
	phi := g.NewNode(irnode.OpPhi, mode.Ls, merge, a, b)
	keepAlive(g, phi)

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("__add_dw64")}); err != nil {
		t.Fatalf("Lower: %v", err)
	}

	// The high Phi has no users of its own here, so scan the arena
	// rather than the reachable set.
	var lowPhi, highPhi *irnode.Node
	for _, n := range g.Nodes() {
		if n == nil || n.Op() != irnode.OpPhi {
			continue
		}
		if n.Mode() == mode.Iu {
			lowPhi = n
		}
		if n.Mode() == mode.Is {
			highPhi = n
		}
	}
	if lowPhi == nil || highPhi == nil {
		t.Fatalf("expected a pair of word-width Phis, got low=%v high=%v", lowPhi, highPhi)
	}
	if lowPhi.Arity() != 2 || highPhi.Arity() != 2 {
		t.Fatalf("expected arity 2 on both split Phis, got low=%d high=%d", lowPhi.Arity(), highPhi.Arity())
	}
	for i := 0; i < 2; i++ {
		lo, hi := lowPhi.GetInput(i), highPhi.GetInput(i)
		if lo == nil || hi == nil {
			t.Fatalf("input %d of split Phi pair is nil: low=%v high=%v", i, lo, hi)
		}
		if lo.Op() != irnode.OpConst || hi.Op() != irnode.OpConst {
			t.Fatalf("input %d expected Const halves, got low=%v high=%v", i, lo.Op(), hi.Op())
		}
	}
	if lowPhi.Block() != highPhi.Block() {
		t.Fatalf("split Phi pair should share the merge block")
	}
}

// --- invariant 8: lowered call arity = lowered params + 2 (mem, callee) -----

func TestLowerCallArityMatchesLoweredParams(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()

	mt := &irnode.MethodType{
		Name: "f",
		Params: []irnode.Param{
			{Name: "n", Mode: mode.Ls},
			{Name: "x", Mode: mode.Is},
		},
		Results: []irnode.Param{{Name: "r", Mode: mode.Is}},
	}

	mem := g.Anchor().GetInput(irnode.AnchorInitialMem)
	callee := g.NewNode(irnode.OpAddress, mode.P, start)
	callee.SetEntity(&irnode.Entity{Name: "f", Type: &irnode.Type{Kind: irnode.TypeMethod, Method: mt}})

	n := dwConst(g, start, mode.Ls, big.NewInt(42))
	x := g.NewNode(irnode.OpConst, mode.Is, start)
	x.SetConstValue(tarval.NewInt64(mode.Is, 3))

	call := g.NewNode(irnode.OpCall, mode.T, start, mem, callee, n, x)
	call.SetMethodType(mt)
	keepAlive(g, call)

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("__add_dw64")}); err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var loweredCall *irnode.Node
	for _, r := range reachable(g) {
		if r.Op() == irnode.OpCall {
			loweredCall = r
		}
	}
	if loweredCall == nil {
		t.Fatal("expected the lowered Call to survive in the reachable graph")
	}
	lowered := loweredCall.MethodType()
	if lowered == nil {
		t.Fatal("lowered Call has no method type")
	}
	want := len(lowered.Params) + 2
	if loweredCall.Arity() != want {
		t.Fatalf("lowered Call arity = %d, want %d (mem+callee+%d lowered params)", loweredCall.Arity(), want, len(lowered.Params))
	}
	if len(lowered.Params) != 3 {
		t.Fatalf("expected the doubleword param to expand to 2 entries (3 total), got %d", len(lowered.Params))
	}
}

// --- doubleword Add, little-endian, routed through a synthesized -----------
// --- intrinsic call returning (low, high) = (Proj(0), Proj(1)) -------------

func TestLowerAddLittleEndianScenario(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()
	a := dwConst(g, start, mode.Ls, big.NewInt(0x1_0000_0001))
	b := dwConst(g, start, mode.Ls, big.NewInt(2))
	add := g.NewNode(irnode.OpAdd, mode.Ls, start, a, b)
	keepAlive(g, add)

	var sawFactoryCall bool
	factory := func(mt *irnode.MethodType, op irnode.Op, imode, omode *mode.Mode, ctx any) (*irnode.Entity, error) {
		sawFactoryCall = true
		if op != irnode.OpAdd {
			t.Fatalf("factory invoked for unexpected op %v", op)
		}
		return &irnode.Entity{Name: "__adddi3", Type: &irnode.Type{Kind: irnode.TypeMethod, Method: mt}}, nil
	}

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: factory}); err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if !sawFactoryCall {
		t.Fatal("expected the intrinsic factory to be invoked for the doubleword Add")
	}

	var call *irnode.Node
	for _, n := range reachable(g) {
		if n.Op() == irnode.OpCall {
			call = n
		}
	}
	// The high Proj has no users here; scan the arena for the pair.
	var lowProj, highProj *irnode.Node
	for _, n := range g.Nodes() {
		if n == nil || n.Op() != irnode.OpProj || n.Arity() == 0 {
			continue
		}
		if in := n.GetInput(0); in == nil || in.Op() != irnode.OpCall {
			continue
		}
		if n.ProjNum() == 0 {
			lowProj = n
		} else if n.ProjNum() == 1 {
			highProj = n
		}
	}
	if call == nil {
		t.Fatal("expected a synthesized Call for the doubleword Add")
	}
	if call.Entity() == nil || call.Entity().Name != "__adddi3" {
		t.Fatalf("expected the Call's entity to be the factory-supplied intrinsic, got %v", call.Entity())
	}
	// no mem input on the synthesized intrinsic call: callee + 4 word args.
	if call.Arity() != 5 {
		t.Fatalf("expected synthesized Call arity 5 (callee + 4 word halves), got %d", call.Arity())
	}
	if lowProj == nil || highProj == nil {
		t.Fatal("expected Proj(0)=low and Proj(1)=high off the synthesized Call")
	}
	if lowProj.Mode() != mode.Iu {
		t.Fatalf("low result Proj should be word-unsigned, got %v", lowProj.Mode())
	}
	if highProj.Mode() != mode.Is {
		t.Fatalf("high result Proj should carry the doubleword's signedness, got %v", highProj.Mode())
	}
}

// --- doubleword shift-left lowers to a control-flow diamond on --------------
// --- "is the shift amount smaller than the word width" ---------------------

func TestLowerShiftLeftBuildsDiamond(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()
	x := dwConst(g, start, mode.Ls, big.NewInt(0x1))
	amt := g.NewNode(irnode.OpConst, mode.Iu, start)
	amt.SetConstValue(tarval.NewInt64(mode.Iu, 5))
	shl := g.NewNode(irnode.OpShl, mode.Ls, start, x, amt)
	keepAlive(g, shl)

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("unused")}); err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var cond, lowPhi, highPhi *irnode.Node
	var condCount int
	for _, n := range reachable(g) {
		if n.Op() == irnode.OpCond {
			cond = n
			condCount++
		}
		if n.Op() == irnode.OpPhi {
			if n.Mode() == mode.Iu {
				lowPhi = n
			}
			if n.Mode() == mode.Is {
				highPhi = n
			}
		}
	}
	if condCount != 1 {
		t.Fatalf("expected exactly one Cond node from the shift diamond, got %d", condCount)
	}
	if cond == nil || cond.GetInput(0) == nil || cond.GetInput(0).Op() != irnode.OpCmp {
		t.Fatal("expected the Cond's selector to be a Cmp (shift amount vs word width)")
	}
	if cond.GetInput(0).Relation() != mode.RelLess {
		t.Fatalf("expected the diamond's selector relation to be RelLess, got %v", cond.GetInput(0).Relation())
	}
	if lowPhi == nil {
		t.Fatal("expected a merge Phi for the shift's low half")
	}
	if lowPhi.Arity() != 2 {
		t.Fatalf("expected the merge Phi to have arity 2 (small-side, large-side), got %d", lowPhi.Arity())
	}
	_ = highPhi
}

// evalWordExpr numerically evaluates the small, closed set of word-mode
// ops (Const, Conv, Shl, Shr, Sub, Or) the shift diamond's small-branch
// arithmetic is built from, masked to each node's own mode width. It
// exists to check the carry formula's numeric result directly, not just
// its shape; shape-only assertions wouldn't have caught the shamt==0
// bug the formula now avoids.
func evalWordExpr(n *irnode.Node) uint64 {
	bits := uint(n.Mode().Bits)
	mask := uint64(1)<<bits - 1
	switch n.Op() {
	case irnode.OpConst:
		return n.ConstValue().Int().Uint64() & mask
	case irnode.OpConv:
		return evalWordExpr(n.GetInput(0)) & mask
	case irnode.OpShl:
		amt := evalWordExpr(n.GetInput(1))
		if m := n.Mode().ModuloShift; m != 0 {
			amt %= uint64(m)
		}
		return (evalWordExpr(n.GetInput(0)) << amt) & mask
	case irnode.OpShr:
		amt := evalWordExpr(n.GetInput(1))
		if m := n.Mode().ModuloShift; m != 0 {
			amt %= uint64(m)
		}
		return (evalWordExpr(n.GetInput(0)) & mask) >> amt
	case irnode.OpSub:
		return (evalWordExpr(n.GetInput(0)) - evalWordExpr(n.GetInput(1))) & mask
	case irnode.OpOr:
		return (evalWordExpr(n.GetInput(0)) | evalWordExpr(n.GetInput(1))) & mask
	}
	panic(fmt.Sprintf("evalWordExpr: unhandled op %v", n.Op()))
}

// cmpHolds evaluates a word-mode Cmp over Const operands: true when
// the actual ordering of the two values is contained in the node's
// relation. Operands here are always unsigned word constants.
func cmpHolds(n *irnode.Node) bool {
	l := evalWordExpr(n.GetInput(0))
	r := evalWordExpr(n.GetInput(1))
	var actual mode.Relation
	switch {
	case l == r:
		actual = mode.RelEqual
	case l < r:
		actual = mode.RelLess
	default:
		actual = mode.RelGreater
	}
	return n.Relation()&actual != 0
}

// evalBoolExpr numerically evaluates the boolean combination lowerCmp
// builds for an ordering decomposition: Cmp leaves joined by And/Or.
func evalBoolExpr(n *irnode.Node) bool {
	switch n.Op() {
	case irnode.OpCmp:
		return cmpHolds(n)
	case irnode.OpAnd:
		return evalBoolExpr(n.GetInput(0)) && evalBoolExpr(n.GetInput(1))
	case irnode.OpOr:
		return evalBoolExpr(n.GetInput(0)) || evalBoolExpr(n.GetInput(1))
	}
	panic(fmt.Sprintf("evalBoolExpr: unhandled op %v", n.Op()))
}

// TestLowerCmpOrderingAtTiedHighWords is a regression test for the
// ordering decomposition's high-word term: the high comparison must be
// strict, since at tied high words the non-strict part of the relation
// is decided by the low words alone. A non-strict high term reports
// a<=b as true for a=(5,10), b=(5,3) purely because the high words are
// equal. Checked numerically, not structurally.
func TestLowerCmpOrderingAtTiedHighWords(t *testing.T) {
	mk := func(hi, lo uint64) uint64 { return hi<<32 | lo }
	cases := []struct {
		name string
		rel  mode.Relation
		a, b uint64
		want bool
	}{
		{"le tied high, greater low", mode.RelLessEqual, mk(5, 10), mk(5, 3), false},
		{"le tied high, smaller low", mode.RelLessEqual, mk(5, 3), mk(5, 10), true},
		{"le equal", mode.RelLessEqual, mk(5, 10), mk(5, 10), true},
		{"le smaller high, huge low", mode.RelLessEqual, mk(4, 0xFFFFFFFF), mk(5, 0), true},
		{"ge tied high, greater low", mode.RelGreaterEq, mk(5, 10), mk(5, 3), true},
		{"ge tied high, smaller low", mode.RelGreaterEq, mk(5, 3), mk(5, 10), false},
		{"ge equal", mode.RelGreaterEq, mk(5, 10), mk(5, 10), true},
		{"lt tied high, smaller low", mode.RelLess, mk(5, 3), mk(5, 10), true},
		{"lt equal", mode.RelLess, mk(5, 10), mk(5, 10), false},
	}

	for _, c := range cases {
		g := newTestGraph()
		start := g.StartBlock()
		a := dwConst(g, start, mode.Lu, new(big.Int).SetUint64(c.a))
		b := dwConst(g, start, mode.Lu, new(big.Int).SetUint64(c.b))
		cmp := g.NewNode(irnode.OpCmp, mode.B, start, a, b)
		cmp.SetRelation(c.rel)
		keepAlive(g, cmp)

		if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("unused")}); err != nil {
			t.Fatalf("%s: Lower: %v", c.name, err)
		}

		root := g.End().GetInput(0)
		if root == cmp {
			t.Fatalf("%s: doubleword Cmp was not lowered", c.name)
		}
		if got := evalBoolExpr(root); got != c.want {
			t.Errorf("%s: lowered compare = %v, want %v", c.name, got, c.want)
		}
	}
}

// TestLowerShiftLeftSmallBranchCarryAtBoundaryShamts is a regression
// test for the carry formula used on the diamond's small-shift branch:
// at shamt==0, a naive carry shift by (wordBits-shamt) hits exactly
// wordBits, which modulo-shift reduces to a no-op shift instead of the
// zero result the carry needs there, corrupting the high half with the
// low half's raw bits. Checked numerically (not just structurally) at
// shamt==0 and at the opposite boundary shamt==wordBits-1.
func TestLowerShiftLeftSmallBranchCarryAtBoundaryShamts(t *testing.T) {
	const wordBits = 32
	cases := []int64{0, wordBits - 1}

	for _, shamt := range cases {
		g := newTestGraph()
		start := g.StartBlock()
		xLowVal, xHighVal := big.NewInt(0xA5A5A5A5), big.NewInt(0x5A5A5A5A)
		dwVal := new(big.Int).Lsh(xHighVal, wordBits)
		dwVal.Or(dwVal, xLowVal)
		x := dwConst(g, start, mode.Ls, dwVal)
		amt := g.NewNode(irnode.OpConst, mode.Iu, start)
		amt.SetConstValue(tarval.NewInt64(mode.Iu, shamt))
		shl := g.NewNode(irnode.OpShl, mode.Ls, start, x, amt)
		keepAlive(g, shl)

		if err := irdword.Lower(g, irdword.Params{WordBits: wordBits, LittleEndian: true, Factory: stubFactory("unused")}); err != nil {
			t.Fatalf("shamt=%d: Lower: %v", shamt, err)
		}

		var lowPhi, highPhi *irnode.Node
		for _, n := range g.Nodes() {
			if n == nil || n.Op() != irnode.OpPhi {
				continue
			}
			if n.Mode() == mode.Iu {
				lowPhi = n
			}
			if n.Mode() == mode.Is {
				highPhi = n
			}
		}
		if lowPhi == nil || highPhi == nil {
			t.Fatalf("shamt=%d: expected low/high merge Phis", shamt)
		}

		gotLow := evalWordExpr(lowPhi.GetInput(0))
		gotHigh := evalWordExpr(highPhi.GetInput(0))

		full := new(big.Int).Lsh(dwVal, uint(shamt))
		full.And(full, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1)))
		wantLow := new(big.Int).And(full, big.NewInt(0xFFFFFFFF)).Uint64()
		wantHigh := new(big.Int).Rsh(full, wordBits).Uint64()

		if gotLow != wantLow {
			t.Errorf("shamt=%d: small-branch low = 0x%x, want 0x%x", shamt, gotLow, wantLow)
		}
		if gotHigh != wantHigh {
			t.Errorf("shamt=%d: small-branch high = 0x%x, want 0x%x", shamt, gotHigh, wantHigh)
		}
	}
}

// --- doubleword Load, big-endian: high half at the original address --------
// --- the low half at address+wordBytes -------------------------------------

func TestLowerLoadBigEndianScenario(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()
	ptr := g.NewNode(irnode.OpConst, mode.P, start)
	ptr.SetConstValue(tarval.NewInt64(mode.P, 0x1000))
	mem := g.Anchor().GetInput(irnode.AnchorInitialMem)
	load := g.NewNode(irnode.OpLoad, mode.Ls, start, ptr, mem)
	keepAlive(g, load)

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: false, Factory: stubFactory("unused")}); err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var loads []*irnode.Node
	for _, n := range reachable(g) {
		if n.Op() == irnode.OpLoad {
			loads = append(loads, n)
		}
	}
	if len(loads) != 2 {
		t.Fatalf("expected two word-size Loads to replace the doubleword Load, got %d", len(loads))
	}

	// Order the pair by data dependency: the second Load's mem input is
	// the first Load.
	first, second := loads[0], loads[1]
	if second.Arity() > 1 && second.GetInput(1) == first {
		// already in order
	} else if first.Arity() > 1 && first.GetInput(1) == second {
		first, second = second, first
	} else {
		t.Fatal("expected the two lowered Loads to be chained by memory")
	}

	if first.Mode() != mode.Is {
		t.Fatalf("big-endian: expected the first (original-address) Load to carry the high (signed) half, got %v", first.Mode())
	}
	if second.Mode() != mode.Iu {
		t.Fatalf("big-endian: expected the second Load to carry the low (unsigned) half, got %v", second.Mode())
	}
	if first.GetInput(0) != ptr {
		t.Fatalf("big-endian: expected the first Load's address to be the original pointer")
	}
	secondPtr := second.GetInput(0)
	if secondPtr == nil || secondPtr.Op() != irnode.OpAdd {
		t.Fatal("expected the second Load's address to be ptr+wordBytes")
	}
}

// --- Rotl pre-pass: doubleword Rotl disappears before the main walk, -------
// --- replaced by Or(Shl, Shr) which itself then lowers normally -------------

func TestLowerRewritesRotlBeforeLowering(t *testing.T) {
	g := newTestGraph()
	start := g.StartBlock()
	x := dwConst(g, start, mode.Lu, big.NewInt(0xABCD))
	y := g.NewNode(irnode.OpConst, mode.Iu, start)
	y.SetConstValue(tarval.NewInt64(mode.Iu, 4))
	rotl := g.NewNode(irnode.OpRotl, mode.Lu, start, x, y)
	keepAlive(g, rotl)

	if err := irdword.Lower(g, irdword.Params{WordBits: 32, LittleEndian: true, Factory: stubFactory("unused")}); err != nil {
		t.Fatalf("Lower: %v", err)
	}

	for _, n := range reachable(g) {
		if n.Op() == irnode.OpRotl {
			t.Fatal("expected no Rotl node to survive lowering")
		}
	}
}
