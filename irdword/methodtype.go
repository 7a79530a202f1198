package irdword

import (
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
)

// isDoubleWord reports whether m is exactly twice wordBits wide.
func isDoubleWord(m *mode.Mode, wordBits uint8) bool {
	return m != nil && m.IsDoubleWord(wordBits)
}

// pairOrder returns (first, second) for a doubleword's low/high split,
// in the memory/parameter order endianness dictates: little-endian
// puts the low half first, big-endian puts the high half first.
func pairOrder(littleEndian bool, low, high *mode.Mode) (first, second *mode.Mode) {
	if littleEndian {
		return low, high
	}
	return high, low
}

// pairOrderNodes is pairOrder's node-level counterpart, used to order
// already-split low/high node pairs the same way (call-argument
// expansion, Return results, Store values).
func pairOrderNodes(littleEndian bool, low, high *irnode.Node) (first, second *irnode.Node) {
	if littleEndian {
		return low, high
	}
	return high, low
}

// LowerMethodType rewrites mt into its doubleword-free form: each
// doubleword parameter/result becomes two word-width entries, ordered
// per endianness. Idempotent per mt: repeated calls for the same
// *MethodType return the cached Lowered form.
func (l *Lowering) LowerMethodType(mt *irnode.MethodType) *irnode.MethodType {
	if mt == nil {
		return nil
	}
	if mt.Lowered != nil {
		return mt.Lowered
	}
	lowered := &irnode.MethodType{
		Name:     mt.Name,
		CallConv: mt.CallConv,
		Variadic: mt.Variadic,
	}
	lowered.Params = l.lowerParams(mt.Params)
	lowered.Results = l.lowerParams(mt.Results)
	mt.Lowered = lowered
	return lowered
}

func (l *Lowering) lowerParams(params []irnode.Param) []irnode.Param {
	out := make([]irnode.Param, 0, len(params))
	for _, p := range params {
		if !isDoubleWord(p.Mode, l.wordBits) {
			out = append(out, p)
			continue
		}
		low, high := p.Mode.Subdivide()
		first, second := pairOrder(l.littleEndian, low, high)
		out = append(out,
			irnode.Param{Name: p.Name + ".lo", Type: p.Type, Mode: first},
			irnode.Param{Name: p.Name + ".hi", Type: p.Type, Mode: second},
		)
	}
	return out
}

// LowerParamEntity renumbers a parameter entity's frame position to
// match the lowered layout of mt and records its low-half mode for
// later calling-convention fix-up. idx is e's zero-based position in
// mt's original (unlowered) parameter list.
func (l *Lowering) LowerParamEntity(e *irnode.Entity, mt *irnode.MethodType, idx int) {
	offset := 0
	for i := 0; i < idx; i++ {
		if isDoubleWord(mt.Params[i].Mode, l.wordBits) {
			offset += 2
		} else {
			offset++
		}
	}
	e.ParamNumber = offset
	if isDoubleWord(mt.Params[idx].Mode, l.wordBits) {
		low, _ := mt.Params[idx].Mode.Subdivide()
		e.LowHalfMode = low
	}
}
