// Package tarval implements target-value arithmetic: mode-tagged
// arbitrary-precision constants, honoring each mode's arithmetic
// family (two's-complement truncation/sign-extension for ints, IEEE
// rounding for floats).
//
// Rendering (String) and parsing (Parse) are kept together as a
// mirror-image pair.
package tarval

import (
	"fmt"
	"math/big"

	"github.com/oisee/ssagraph/mode"
)

// Tarval is a (mode, value) pair. The zero value is not valid; use Bad,
// Null, One, AllOnes, BTrue, BFalse or New to construct one.
type Tarval struct {
	m   *mode.Mode
	v   *big.Int // meaningful for int/reference modes
	f   *big.Float
	bad bool
	b   bool // meaningful for boolean mode
}

// Bad is the tarval_bad sentinel: "no known value."
var Bad = Tarval{bad: true}

// IsBad reports whether t is the Bad sentinel.
func (t Tarval) IsBad() bool { return t.bad }

// Mode returns t's mode, or nil for Bad.
func (t Tarval) Mode() *mode.Mode { return t.m }

// New creates a tarval for an integer/reference mode, truncating v to
// the mode's bit width per its signedness (two's-complement).
func New(m *mode.Mode, v *big.Int) Tarval {
	if m.Sort != mode.SortInt && m.Sort != mode.SortReference {
		panic(fmt.Sprintf("tarval: New called with non-integer mode %q", m.Name))
	}
	return Tarval{m: m, v: truncate(m, v)}
}

// NewInt64 is a convenience wrapper around New for small constants.
func NewInt64(m *mode.Mode, v int64) Tarval {
	return New(m, big.NewInt(v))
}

// NewFloat creates a float tarval, rounding per IEEE-754 semantics to
// the mode's mantissa width.
func NewFloat(m *mode.Mode, v *big.Float) Tarval {
	if m.Sort != mode.SortFloat {
		panic(fmt.Sprintf("tarval: NewFloat called with non-float mode %q", m.Name))
	}
	prec := uint(m.MantBits) + 1
	r := new(big.Float).SetPrec(prec)
	r.Set(v)
	return Tarval{m: m, f: r}
}

// Null returns the mode's additive identity (0, or 0.0 for float modes).
func Null(m *mode.Mode) Tarval {
	if m.Sort == mode.SortFloat {
		return NewFloat(m, big.NewFloat(0))
	}
	return New(m, big.NewInt(0))
}

// One returns the mode's multiplicative identity.
func One(m *mode.Mode) Tarval {
	if m.Sort == mode.SortFloat {
		return NewFloat(m, big.NewFloat(1))
	}
	return New(m, big.NewInt(1))
}

// AllOnes returns the all-one-bits pattern for an integer mode
// (mode-width -1 in two's complement).
func AllOnes(m *mode.Mode) Tarval {
	return New(m, big.NewInt(-1))
}

// BTrue and BFalse are the two boolean-mode constants.
var (
	BTrue  = Tarval{m: mode.B, b: true}
	BFalse = Tarval{m: mode.B, b: false}
)

// IsNull reports whether t is its mode's additive identity.
func (t Tarval) IsNull() bool {
	if t.bad {
		return false
	}
	if t.m.Sort == mode.SortFloat {
		return t.f.Sign() == 0
	}
	return t.v.Sign() == 0
}

// Bool returns t's boolean value; t must have mode.B.
func (t Tarval) Bool() bool { return t.b }

// Int returns t's value as a big.Int; t must be an int/reference mode.
func (t Tarval) Int() *big.Int { return new(big.Int).Set(t.v) }

// truncate reduces v to m's bit width per two's-complement semantics:
// unsigned modes wrap to [0, 2^bits); signed modes wrap to
// [-2^(bits-1), 2^(bits-1)).
func truncate(m *mode.Mode, v *big.Int) *big.Int {
	if m.Bits == 0 {
		return new(big.Int).Set(v) // reference mode with unspecified width
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(m.Bits))
	r := new(big.Int).Mod(v, mod) // Mod always returns a non-negative result
	if m.Sort == mode.SortInt && m.Signed == mode.Signed {
		half := new(big.Int).Lsh(big.NewInt(1), uint(m.Bits-1))
		if r.Cmp(half) >= 0 {
			r.Sub(r, mod)
		}
	}
	return r
}

// Convert re-tags t under mode to, applying truncation/sign-extension
// (int<->int) or IEEE rounding (int<->float) as appropriate.
func Convert(t Tarval, to *mode.Mode) Tarval {
	if t.bad {
		return Bad
	}
	switch {
	case t.m.Sort == mode.SortFloat && to.Sort == mode.SortFloat:
		return NewFloat(to, t.f)
	case t.m.Sort == mode.SortFloat && (to.Sort == mode.SortInt || to.Sort == mode.SortReference):
		i, _ := t.f.Int(nil)
		return New(to, i)
	case (t.m.Sort == mode.SortInt || t.m.Sort == mode.SortReference) && to.Sort == mode.SortFloat:
		f := new(big.Float).SetInt(t.v)
		return NewFloat(to, f)
	default:
		return New(to, t.v)
	}
}

// Compare computes the comparison relation between a and b, which
// must share a mode.
func Compare(a, b Tarval) mode.Relation {
	if a.bad || b.bad {
		return mode.RelFalse
	}
	if a.m.Sort == mode.SortFloat {
		switch a.f.Cmp(b.f) {
		case -1:
			return mode.RelLess
		case 0:
			return mode.RelEqual
		case 1:
			return mode.RelGreater
		}
	}
	switch a.v.Cmp(b.v) {
	case -1:
		return mode.RelLess
	case 0:
		return mode.RelEqual
	default:
		return mode.RelGreater
	}
}

// arithmetic helpers used by ir op folding and by irdword's Const
// splitting; each truncates its result to the mode per two's-complement
// wraparound.

func Add(a, b Tarval) Tarval { return New(a.m, new(big.Int).Add(a.v, b.v)) }
func Sub(a, b Tarval) Tarval { return New(a.m, new(big.Int).Sub(a.v, b.v)) }
func Mul(a, b Tarval) Tarval { return New(a.m, new(big.Int).Mul(a.v, b.v)) }

func And(a, b Tarval) Tarval { return New(a.m, new(big.Int).And(a.v, b.v)) }
func Or(a, b Tarval) Tarval  { return New(a.m, new(big.Int).Or(a.v, b.v)) }
func Eor(a, b Tarval) Tarval { return New(a.m, new(big.Int).Xor(a.v, b.v)) }
func Not(a Tarval) Tarval    { return New(a.m, new(big.Int).Not(a.v)) }

// Shl shifts a left by amt, first reducing amt modulo the mode's
// modulo-shift if one is set (0 means "no reduction").
func Shl(a Tarval, amt uint) Tarval {
	return New(a.m, new(big.Int).Lsh(a.v, reduceShift(a.m, amt)))
}

// Shr is a logical (unsigned) right shift: it operates on the mode's
// raw bit pattern regardless of signedness.
func Shr(a Tarval, amt uint) Tarval {
	bits := uint(a.m.Bits)
	mod := new(big.Int).Lsh(big.NewInt(1), bits)
	raw := new(big.Int).Mod(a.v, mod)
	return New(a.m, new(big.Int).Rsh(raw, reduceShift(a.m, amt)))
}

// Shrs is an arithmetic (sign-propagating) right shift.
func Shrs(a Tarval, amt uint) Tarval {
	return New(a.m, new(big.Int).Rsh(a.v, reduceShift(a.m, amt)))
}

func reduceShift(m *mode.Mode, amt uint) uint {
	if m.ModuloShift == 0 {
		return amt
	}
	return amt % uint(m.ModuloShift)
}

// String renders t in the mode's decimal form; round-tripping through
// Parse(t.Mode(), t.String()) reproduces t exactly.
func (t Tarval) String() string {
	if t.bad {
		return "<bad>"
	}
	switch t.m.Sort {
	case mode.SortFloat:
		return t.f.Text('g', -1)
	case mode.SortBoolean:
		if t.b {
			return "true"
		}
		return "false"
	default:
		return t.v.String()
	}
}

// Parse reads a tarval back out of its decimal text form for mode m.
func Parse(m *mode.Mode, s string) (Tarval, error) {
	switch m.Sort {
	case mode.SortFloat:
		f, _, err := big.ParseFloat(s, 10, uint(m.MantBits)+1, big.ToNearestEven)
		if err != nil {
			return Bad, fmt.Errorf("tarval: parse float %q: %w", s, err)
		}
		return NewFloat(m, f), nil
	case mode.SortBoolean:
		switch s {
		case "true":
			return BTrue, nil
		case "false":
			return BFalse, nil
		}
		return Bad, fmt.Errorf("tarval: parse bool %q: not true/false", s)
	default:
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return Bad, fmt.Errorf("tarval: parse int %q: invalid decimal", s)
		}
		return New(m, v), nil
	}
}
