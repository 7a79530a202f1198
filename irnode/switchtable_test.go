package irnode

import "testing"

func TestSwitchTableCaseForSingleton(t *testing.T) {
	tbl := &SwitchTable{
		NOuts: 3,
		Entries: []SwitchEntry{
			{PN: 0, Min: -1 << 62, Max: 1<<62 - 1}, // default
			{PN: 1, Min: 5, Max: 5},
			{PN: 2, Min: 10, Max: 20},
		},
	}

	if v, ok := tbl.CaseFor(1); !ok || v != 5 {
		t.Fatalf("CaseFor(1) = (%d, %v), want (5, true)", v, ok)
	}
	if _, ok := tbl.CaseFor(2); ok {
		t.Fatal("CaseFor(2) should not be a singleton (range 10..20)")
	}
	if _, ok := tbl.CaseFor(0); ok {
		t.Fatal("CaseFor(0) should not report singleton for a huge default range")
	}
}

func TestSwitchTableCaseForRequiresExactlyOneEntry(t *testing.T) {
	tbl := &SwitchTable{
		NOuts: 2,
		Entries: []SwitchEntry{
			{PN: 1, Min: 5, Max: 5},
			{PN: 1, Min: 7, Max: 7},
		},
	}
	if _, ok := tbl.CaseFor(1); ok {
		t.Fatal("CaseFor should fail when pn is reached through more than one entry")
	}
}

func TestSwitchTableValidate(t *testing.T) {
	tbl := &SwitchTable{NOuts: 2, Entries: []SwitchEntry{{PN: 0, Min: 5, Max: 1}}}
	if err := tbl.Validate(); err == nil {
		t.Fatal("expected Validate to reject Min > Max")
	}

	tbl2 := &SwitchTable{NOuts: 2, Entries: []SwitchEntry{{PN: 5, Min: 1, Max: 1}}}
	if err := tbl2.Validate(); err == nil {
		t.Fatal("expected Validate to reject pn out of range")
	}
}
