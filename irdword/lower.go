package irdword

import (
	"fmt"
	"math/big"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irxform"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/ssaerr"
	"github.com/oisee/ssagraph/tarval"
)

// halfPair is the side-table entry recording, for a node whose
// operational mode was doubleword, the pair of word-width replacement
// nodes it lowered to.
type halfPair struct{ low, high *irnode.Node }

// Lowering holds one lowering run's state: the resolved word-size mode
// pair, endianness, the halves side-table, and the intrinsic cache.
// Built fresh per Lower call; nothing here is process-wide.
type Lowering struct {
	g            *irnode.Graph
	wordBits     uint8
	littleEndian bool
	wordLow      *mode.Mode
	wordHigh     *mode.Mode

	halves      map[int32]halfPair
	pending     map[int32]halfPair // Dummy pairs handed out before the def itself was lowered
	callLayouts map[int32]callLayout
	intr        *intrinsicCache

	cfChanged bool
}

// Lower runs double-word lowering over g per params, eliminating every
// node whose operational mode is a doubleword int mode (looked up via
// the mode registry by width and signedness, not hardcoded). Requires
// doubleword arithmetic to be two's-complement and, for shifts, the
// doubleword modulo-shift to equal the word width; violations are
// fatal via ssaerr.Fatal.
func Lower(g *irnode.Graph, params Params) (err error) {
	defer ssaerr.Recover(&err)

	l := &Lowering{
		g:            g,
		wordBits:     params.WordBits,
		littleEndian: params.LittleEndian,
		halves:       make(map[int32]halfPair),
		pending:      make(map[int32]halfPair),
		callLayouts:  make(map[int32]callLayout),
		intr:         newIntrinsicCache(params.Factory, params.Ctx),
	}
	l.resolveWordModes()

	// Stale def-use edges would misroute the Exchange calls that resolve
	// pending Dummy pairs below; rebuild after lowering instead.
	if outs := g.Outs(); outs != nil {
		outs.Invalidate()
	}

	if mt := g.Entity().Type; mt != nil && mt.Method != nil {
		mt.Method = l.LowerMethodType(mt.Method)
	}

	l.rewritePrepass(g)

	table := l.buildTable()
	irxform.TransformGraph(g, table, nil, l.fixupPhi)

	for idx := range l.pending {
		n := g.NodeByIndex(idx)
		ssaerr.Fatal(&ssaerr.UnsupportedError{
			What: fmt.Sprintf("irdword: %s node of doubleword mode %s was never lowered", n.Op(), n.Mode().Name),
		})
	}

	if l.cfChanged {
		g.SetProperties(g.Properties().
			Without(irnode.PropConsistentDominance).
			Without(irnode.PropConsistentPostDominance).
			Without(irnode.PropConsistentOuts))
		if outs := g.Outs(); outs != nil {
			outs.Invalidate()
		}
	}
	return nil
}

// resolveWordModes locates the registered word-width int modes (one
// signed, one unsigned) of l.wordBits bits through findWordMode, so the
// lowering never hardcodes "32/64."
func (l *Lowering) resolveWordModes() {
	l.wordLow = findWordMode(l.wordBits, mode.Unsigned)
	l.wordHigh = findWordMode(l.wordBits, mode.Signed)
	if l.wordLow == nil || l.wordHigh == nil {
		ssaerr.Fatal(&ssaerr.UnsupportedError{What: "irdword: no registered word-width int modes for lowering"})
	}
}

// findWordMode is a tiny helper since mode's registry is keyed by name,
// not (bits,signedness): it checks the built-in int modes Iu, Is, Hu,
// Hs, Bu and Bs, in that order, and returns the first with the
// requested width and signedness. Int modes registered under other
// names are not considered.
func findWordMode(bits uint8, signed mode.Signedness) *mode.Mode {
	for _, name := range []string{"Iu", "Is", "Hu", "Hs", "Bu", "Bs"} {
		if m := mode.Lookup(name); m != nil && m.Bits == bits && m.Signed == signed {
			return m
		}
	}
	return nil
}

// rewritePrepass rewrites, before the main transformation walk runs,
// the doubleword ops that reduce to combinations of other doubleword
// ops: Rotl(x,y) becomes Or(Shl(x,y), Shr(x, size-y)) and Minus(x)
// becomes Sub(0, x). The newly produced nodes are ordinary doubleword
// nodes the main walk then lowers the same way as any other.
func (l *Lowering) rewritePrepass(g *irnode.Graph) {
	for _, n := range g.Nodes() {
		if n == nil || !l.isDW(n.Mode()) {
			continue
		}
		block := n.Block()
		switch n.Op() {
		case irnode.OpRotl:
			x, y := n.GetInput(0), n.GetInput(1)
			size := g.NewNode(irnode.OpConst, y.Mode(), block)
			size.SetConstValue(tarval.NewInt64(y.Mode(), int64(n.Mode().Bits)))
			complement := g.NewNode(irnode.OpSub, y.Mode(), block, size, y)
			left := g.NewNode(irnode.OpShl, n.Mode(), block, x, y)
			right := g.NewNode(irnode.OpShr, n.Mode(), block, x, complement)
			combined := g.NewNode(irnode.OpOr, n.Mode(), block, left, right)
			irnode.Exchange(n, combined)

		case irnode.OpMinus:
			x := n.GetInput(0)
			zero := g.NewNode(irnode.OpConst, n.Mode(), block)
			zero.SetConstValue(tarval.Null(n.Mode()))
			sub := g.NewNode(irnode.OpSub, n.Mode(), block, zero, x)
			irnode.Exchange(n, sub)
		}
	}
}

func (l *Lowering) isDW(m *mode.Mode) bool { return isDoubleWord(m, l.wordBits) }

// ensureLowerable rejects a doubleword mode about to be split whose
// arithmetic is not two's-complement. Fatal on violation.
func (l *Lowering) ensureLowerable(m *mode.Mode) {
	if m.Arith != mode.ArithTwosComplement {
		ssaerr.Fatal(&ssaerr.UnsupportedError{
			What: fmt.Sprintf("irdword: doubleword mode %s is not two's-complement", m.Name),
		})
	}
}

// halvesOf returns the recorded low/high replacement for a doubleword
// node already processed by the walk. ok is false when the walk has not
// reached n yet (fixupPhi uses this to distinguish lowered predecessors
// from word-width ones).
func (l *Lowering) halvesOf(n *irnode.Node) (low, high *irnode.Node, ok bool) {
	p, ok := l.halves[n.Index()]
	return p.low, p.high, ok
}

// lowHigh returns n's low/high halves, materializing a Dummy pair when
// n has not been lowered yet. That happens only on a cycle (a user
// reached before the Phi that closes its loop) and mirrors the Phi
// fix-up idea at the operand level: the Dummies stand in now and are
// exchanged for the real halves when setHalves sees n lowered.
func (l *Lowering) lowHigh(ctx *irxform.Context, n *irnode.Node) (low, high *irnode.Node) {
	if p, ok := l.halves[n.Index()]; ok {
		return p.low, p.high
	}
	lowM, highM := n.Mode().Subdivide()
	block := ctx.Lookup(n.Block())
	if block == nil {
		block = n.Block()
	}
	lo := ctx.New.NewNode(irnode.OpDummy, lowM, block)
	hi := ctx.New.NewNode(irnode.OpDummy, highM, block)
	pair := halfPair{lo, hi}
	l.pending[n.Index()] = pair
	l.halves[n.Index()] = pair
	return lo, hi
}

func (l *Lowering) setHalves(old *irnode.Node, low, high *irnode.Node) {
	if p, ok := l.pending[old.Index()]; ok {
		irnode.Exchange(p.low, low)
		irnode.Exchange(p.high, high)
		delete(l.pending, old.Index())
	}
	l.halves[old.Index()] = halfPair{low, high}
}

func (l *Lowering) buildTable() *irxform.Table {
	t := irxform.NewTable()
	t.Register(irnode.OpConst, l.lowerConst)
	t.Register(irnode.OpAnd, l.lowerBitwise)
	t.Register(irnode.OpOr, l.lowerBitwise)
	t.Register(irnode.OpEor, l.lowerBitwise)
	t.Register(irnode.OpNot, l.lowerNot)
	t.Register(irnode.OpMux, l.lowerMux)
	t.Register(irnode.OpConv, l.lowerConv)
	t.Register(irnode.OpLoad, l.lowerLoad)
	t.Register(irnode.OpStore, l.lowerStore)
	t.Register(irnode.OpPhi, l.lowerPhi)
	t.Register(irnode.OpAdd, l.lowerArithCall)
	t.Register(irnode.OpSub, l.lowerArithCall)
	t.Register(irnode.OpMul, l.lowerArithCall)
	t.Register(irnode.OpDiv, l.lowerArithCall)
	t.Register(irnode.OpMod, l.lowerArithCall)
	t.Register(irnode.OpShl, l.lowerShift)
	t.Register(irnode.OpShr, l.lowerShift)
	t.Register(irnode.OpShrs, l.lowerShift)
	t.Register(irnode.OpCmp, l.lowerCmp)
	t.Register(irnode.OpCall, l.lowerCall)
	t.Register(irnode.OpProj, l.lowerProj)
	t.Register(irnode.OpBuiltin, l.lowerBuiltin)
	t.Register(irnode.OpReturn, l.lowerReturn)
	t.Register(irnode.OpSwitch, l.lowerSwitch)
	return t
}

// lowerReturn expands a doubleword result value into its ordered
// (first, second) word pair, matching the lowered method type's result
// list the same way lowerCall matches its parameter list. The Return's
// leading memory input and word-width results pass through untouched.
func (l *Lowering) lowerReturn(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	expands := false
	for _, in := range n.Ins() {
		if in != nil && l.isDW(in.Mode()) {
			expands = true
			break
		}
	}
	if !expands {
		return irxform.DefaultRebuild(ctx, n)
	}
	var newIns []*irnode.Node
	for _, in := range n.Ins() {
		if in == nil {
			newIns = append(newIns, nil)
			continue
		}
		if l.isDW(in.Mode()) {
			l.ensureLowerable(in.Mode())
			lo, hi := l.lowHigh(ctx, in)
			first, second := pairOrderNodes(l.littleEndian, lo, hi)
			newIns = append(newIns, first, second)
			continue
		}
		v := in
		if r := ctx.Lookup(in); r != nil {
			v = r
		}
		newIns = append(newIns, v)
	}
	n.SetInputs(newIns)
	return irxform.DefaultRebuild(ctx, n)
}

// lowerSwitch rejects a doubleword selector outright and otherwise
// leaves the Switch to the default rebuild.
func (l *Lowering) lowerSwitch(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if sel := n.GetInput(0); sel != nil && l.isDW(sel.Mode()) {
		ssaerr.Fatal(&ssaerr.UnsupportedError{
			What: fmt.Sprintf("irdword: Switch over doubleword selector mode %s", sel.Mode().Name),
		})
	}
	return irxform.DefaultRebuild(ctx, n)
}

// --- simple per-node rules ------------------------------------------------

// lowerConst splits a doubleword constant: low = c & mask, high = c >>
// word_bits.
func (l *Lowering) lowerConst(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	l.ensureLowerable(n.Mode())
	low, high := n.Mode().Subdivide()
	raw := n.ConstValue().Int()
	lowVal := tarval.New(low, raw)
	highVal := tarval.New(high, new(big.Int).Rsh(raw, uint(l.wordBits)))

	lowNode := ctx.New.NewNode(irnode.OpConst, low, ctx.Lookup(n.Block()))
	lowNode.SetConstValue(lowVal)
	highNode := ctx.New.NewNode(irnode.OpConst, high, ctx.Lookup(n.Block()))
	highNode.SetConstValue(highVal)

	l.setHalves(n, lowNode, highNode)
	return lowNode
}

// lowerBitwise handles And/Or/Eor: apply the same op independently to
// each half.
func (l *Lowering) lowerBitwise(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	aLow, aHigh := l.lowHigh(ctx, n.GetInput(0))
	bLow, bHigh := l.lowHigh(ctx, n.GetInput(1))
	block := ctx.Lookup(n.Block())
	low := ctx.New.NewNode(n.Op(), l.wordLow, block, aLow, bLow)
	// aHigh's own mode, not l.wordHigh: Subdivide only gives the high
	// half signed-mode when the doubleword itself was signed.
	high := ctx.New.NewNode(n.Op(), aHigh.Mode(), block, aHigh, bHigh)
	l.setHalves(n, low, high)
	return low
}

func (l *Lowering) lowerNot(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	aLow, aHigh := l.lowHigh(ctx, n.GetInput(0))
	block := ctx.Lookup(n.Block())
	low := ctx.New.NewNode(irnode.OpNot, l.wordLow, block, aLow)
	high := ctx.New.NewNode(irnode.OpNot, aHigh.Mode(), block, aHigh)
	l.setHalves(n, low, high)
	return low
}

// lowerMux: Mux(c,t,f) -> Mux(c,t.low,f.low) / Mux(c,t.high,f.high).
func (l *Lowering) lowerMux(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	sel := ctx.Lookup(n.GetInput(0))
	tLow, tHigh := l.lowHigh(ctx, n.GetInput(1))
	fLow, fHigh := l.lowHigh(ctx, n.GetInput(2))
	block := ctx.Lookup(n.Block())
	low := ctx.New.NewNode(irnode.OpMux, l.wordLow, block, sel, tLow, fLow)
	high := ctx.New.NewNode(irnode.OpMux, tHigh.Mode(), block, sel, tHigh, fHigh)
	l.setHalves(n, low, high)
	return low
}

// lowerConv splits (doubleword source, word destination: truncate to
// low half) or joins (word source, doubleword destination: zero/sign
// extend into high half).
func (l *Lowering) lowerConv(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	src := n.GetInput(0)
	srcDW := l.isDW(src.Mode())
	dstDW := l.isDW(n.Mode())
	block := ctx.Lookup(n.Block())

	switch {
	case srcDW && !dstDW:
		low, _ := l.lowHigh(ctx, src)
		conv := ctx.New.NewNode(irnode.OpConv, n.Mode(), block, low)
		return conv
	case !srcDW && dstDW:
		newSrc := ctx.Lookup(src)
		lowTy, highTy := n.Mode().Subdivide()
		low := ctx.New.NewNode(irnode.OpConv, lowTy, block, newSrc)
		var high *irnode.Node
		if highTy.Signed == mode.Signed && src.Mode().Signed == mode.Signed {
			// sign-extend: high = (src < 0) ? allOnes : 0, modeled as a
			// Conv of an Shrs-derived sign node kept simple as a Mux on a
			// Cmp against zero, the same shape lowerCmp's zero-test uses.
			zero := ctx.New.NewNode(irnode.OpConst, src.Mode(), block)
			zero.SetConstValue(tarval.Null(src.Mode()))
			isNeg := ctx.New.NewNode(irnode.OpCmp, mode.B, block, newSrc, zero)
			isNeg.SetRelation(mode.RelLess)
			allOnes := ctx.New.NewNode(irnode.OpConst, highTy, block)
			allOnes.SetConstValue(tarval.AllOnes(highTy))
			zeroHigh := ctx.New.NewNode(irnode.OpConst, highTy, block)
			zeroHigh.SetConstValue(tarval.Null(highTy))
			high = ctx.New.NewNode(irnode.OpMux, highTy, block, isNeg, allOnes, zeroHigh)
		} else {
			zeroHigh := ctx.New.NewNode(irnode.OpConst, highTy, block)
			zeroHigh.SetConstValue(tarval.Null(highTy))
			high = zeroHigh
		}
		l.setHalves(n, low, high)
		return low
	default:
		return irxform.DefaultRebuild(ctx, n)
	}
}

// lowerLoad: doubleword Load splits into two word-size Loads chained
// by memory, at addresses ordered per endianness.
func (l *Lowering) lowerLoad(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	ptr := ctx.Lookup(n.GetInput(0))
	var mem *irnode.Node
	if n.Arity() > 1 {
		mem = ctx.Lookup(n.GetInput(1))
	}
	block := ctx.Lookup(n.Block())
	low, high := n.Mode().Subdivide()

	// The first word is always read at ptr, the second at ptr+wordBytes;
	// pairOrder decides which mode (low or high) lands in which slot, so
	// little-endian puts low first and big-endian puts high first.
	firstMode, secondMode := pairOrder(l.littleEndian, low, high)
	firstPtr := ptr
	secondPtr := l.offsetPointer(ctx, block, ptr)

	firstIns := []*irnode.Node{firstPtr}
	if mem != nil {
		firstIns = append(firstIns, mem)
	}
	firstLoad := ctx.New.NewNode(irnode.OpLoad, firstMode, block, firstIns...)

	secondIns := []*irnode.Node{secondPtr, firstLoad}
	secondLoad := ctx.New.NewNode(irnode.OpLoad, secondMode, block, secondIns...)

	if l.littleEndian {
		l.setHalves(n, firstLoad, secondLoad)
		return firstLoad
	}
	l.setHalves(n, secondLoad, firstLoad)
	return secondLoad
}

// lowerStore: mirror of lowerLoad, two word-size Stores chained by
// memory.
func (l *Lowering) lowerStore(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	value := n.GetInput(1)
	if !l.isDW(value.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	ptr := ctx.Lookup(n.GetInput(0))
	var mem *irnode.Node
	if n.Arity() > 2 {
		mem = ctx.Lookup(n.GetInput(2))
	}
	block := ctx.Lookup(n.Block())
	low, high := l.lowHigh(ctx, value)

	// Same addressing scheme as lowerLoad: first word at ptr, second at
	// ptr+wordBytes, ordered by endianness.
	firstVal, secondVal := pairOrderNodes(l.littleEndian, low, high)
	firstPtr := ptr
	secondPtr := l.offsetPointer(ctx, block, ptr)

	firstIns := []*irnode.Node{firstPtr, firstVal}
	if mem != nil {
		firstIns = append(firstIns, mem)
	}
	firstStore := ctx.New.NewNode(irnode.OpStore, mode.M, block, firstIns...)
	secondStore := ctx.New.NewNode(irnode.OpStore, mode.M, block, secondPtr, secondVal, firstStore)
	return secondStore
}

// offsetPointer builds ptr + wordBytes (used to reach a doubleword
// load/store's second word).
func (l *Lowering) offsetPointer(ctx *irxform.Context, block, ptr *irnode.Node) *irnode.Node {
	wordBytes := int64(l.wordBits / 8)
	off := ctx.New.NewNode(irnode.OpConst, mode.P, block)
	off.SetConstValue(tarval.NewInt64(mode.P, wordBytes))
	return ctx.New.NewNode(irnode.OpAdd, mode.P, block, ptr, off)
}

// --- Phi lowering ---------------------------------------------------------

func (l *Lowering) lowerPhi(ctx *irxform.Context, n *irnode.Node) *irnode.Node {
	if !l.isDW(n.Mode()) {
		return irxform.DefaultRebuild(ctx, n)
	}
	low, high := n.Mode().Subdivide()
	block := ctx.Lookup(n.Block())

	lowPhi := ctx.New.NewNode(irnode.OpPhi, low, block)
	highPhi := ctx.New.NewNode(irnode.OpPhi, high, block)

	dummies := make([]*irnode.Node, n.Arity())
	for i := range dummies {
		dummies[i] = ctx.New.NewNode(irnode.OpDummy, low, block)
	}
	lowPhi.SetInputs(append([]*irnode.Node(nil), dummies...))
	highPhi.SetInputs(append([]*irnode.Node(nil), dummies...))

	l.setHalves(n, lowPhi, highPhi)
	return lowPhi
}

// fixupPhi replaces each lowered Phi's Dummy placeholder inputs with
// the actual lowered predecessor halves, run once the whole walk has
// completed and every predecessor (including loop-carried back edges)
// has been processed.
func (l *Lowering) fixupPhi(ctx *irxform.Context, old, _ *irnode.Node) {
	pair, ok := l.halves[old.Index()]
	if !ok {
		return
	}
	lowIns := make([]*irnode.Node, old.Arity())
	highIns := make([]*irnode.Node, old.Arity())
	for i, oldIn := range old.Ins() {
		if oldIn == nil {
			continue
		}
		if lo, hi, ok := l.halvesOf(oldIn); ok {
			lowIns[i], highIns[i] = lo, hi
			continue
		}
		v := ctx.Lookup(oldIn)
		lowIns[i], highIns[i] = v, v
	}
	pair.low.SetInputs(lowIns)
	pair.high.SetInputs(highIns)
}
