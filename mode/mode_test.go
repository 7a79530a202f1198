package mode

import "testing"

func TestBuiltinModesRegistered(t *testing.T) {
	for _, name := range []string{"Bu", "Bs", "Hu", "Hs", "Iu", "Is", "Lu", "Ls", "P", "F", "D", "b", "X", "M", "T", "ANY"} {
		if Lookup(name) == nil {
			t.Errorf("built-in mode %q not registered", name)
		}
	}
}

func TestIsPredicates(t *testing.T) {
	cases := []struct {
		m                     *Mode
		isInt, isRef, isFloat bool
	}{
		{Is, true, false, false},
		{P, false, true, false},
		{F, false, false, true},
		{M, false, false, false},
	}
	for _, c := range cases {
		if got := c.m.IsInt(); got != c.isInt {
			t.Errorf("%s.IsInt() = %v, want %v", c.m.Name, got, c.isInt)
		}
		if got := c.m.IsReference(); got != c.isRef {
			t.Errorf("%s.IsReference() = %v, want %v", c.m.Name, got, c.isRef)
		}
		if got := c.m.IsFloat(); got != c.isFloat {
			t.Errorf("%s.IsFloat() = %v, want %v", c.m.Name, got, c.isFloat)
		}
	}
	if !M.IsDataM() {
		t.Errorf("M.IsDataM() = false, want true")
	}
	if M.IsData() {
		t.Errorf("M.IsData() = true, want false")
	}
}

func TestIsDoubleWordAndSubdivide(t *testing.T) {
	if !Ls.IsDoubleWord(32) {
		t.Errorf("Ls.IsDoubleWord(32) = false, want true")
	}
	if Is.IsDoubleWord(32) {
		t.Errorf("Is.IsDoubleWord(32) = true, want false")
	}

	low, high := Ls.Subdivide()
	if low != Iu {
		t.Errorf("Ls low half = %s, want Iu", low.Name)
	}
	if high != Is {
		t.Errorf("Ls high half = %s, want Is", high.Name)
	}

	low, high = Lu.Subdivide()
	if low != Iu || high != Iu {
		t.Errorf("Lu halves = (%s, %s), want (Iu, Iu)", low.Name, high.Name)
	}
}

func TestSubdivideNonIntModePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Subdivide on non-int mode did not panic")
		}
	}()
	P.Subdivide()
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Register with a duplicate name did not panic")
		}
	}()
	Register(&Mode{Name: "Is", Sort: SortInt, Bits: 32, Signed: Signed, ModuloShift: 32})
}

func TestRelationInverseAndString(t *testing.T) {
	cases := []struct {
		r    Relation
		want string
	}{
		{RelLess, "less"},
		{RelEqual, "equal"},
		{RelGreater, "greater"},
		{RelLessEqual, "less_equal"},
		{RelGreaterEq, "greater_equal"},
		{RelNotEqual, "not_equal"},
		{RelUnordered, "unordered"},
		{RelTrue, "true"},
		{RelFalse, "false"},
	}
	for _, c := range cases {
		if got := c.r.String(); got != c.want {
			t.Errorf("%03b.String() = %q, want %q", uint8(c.r), got, c.want)
		}
		parsed, ok := ParseRelation(c.want)
		if !ok || parsed != c.r {
			t.Errorf("ParseRelation(%q) = (%03b, %v), want (%03b, true)", c.want, uint8(parsed), ok, uint8(c.r))
		}
	}

	if RelEqual.Inverse() != RelNotEqual {
		t.Errorf("RelEqual.Inverse() = %s, want %s", RelEqual.Inverse(), RelNotEqual)
	}
	if RelNotEqual.Inverse() != RelEqual {
		t.Errorf("RelNotEqual.Inverse() = %s, want %s", RelNotEqual.Inverse(), RelEqual)
	}
	for _, r := range []Relation{RelLess, RelEqual, RelGreater, RelLessEqual, RelGreaterEq, RelUnordered, RelTrue, RelFalse} {
		if r.Inverse().Inverse() != r {
			t.Errorf("%03b.Inverse().Inverse() != itself", uint8(r))
		}
	}
}

func TestParseRelationRejectsUnknown(t *testing.T) {
	if _, ok := ParseRelation("bogus"); ok {
		t.Error("ParseRelation(\"bogus\") should fail")
	}
}
