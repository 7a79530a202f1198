package irnode

import "fmt"

// SwitchEntry is one ordered entry of a Switch node's table: outgoing
// projection pn fires for any selector value in [Min, Max].
type SwitchEntry struct {
	PN  int
	Min int64
	Max int64
}

// SwitchTable is the ordered list of entries attached to a Switch
// node. pn == 0 is reserved for the default case.
type SwitchTable struct {
	Entries []SwitchEntry
	NOuts   int // number of outgoing projections, including the default
}

// Validate checks the table invariants: Min <= Max for every entry
// and every pn in [0, NOuts).
func (t *SwitchTable) Validate() error {
	for i, e := range t.Entries {
		if e.Min > e.Max {
			return fmt.Errorf("irnode: switch table entry %d: min %d > max %d", i, e.Min, e.Max)
		}
		if e.PN < 0 || e.PN >= t.NOuts {
			return fmt.Errorf("irnode: switch table entry %d: pn %d out of range [0,%d)", i, e.PN, t.NOuts)
		}
	}
	return nil
}

// CaseFor reports whether projection pn is reached through exactly one
// table entry and that entry is a singleton (Min == Max), the
// condition irconfirm looks for before it substitutes a constant for
// the selector's dominated users.
func (t *SwitchTable) CaseFor(pn int) (value int64, ok bool) {
	count := 0
	for _, e := range t.Entries {
		if e.PN == pn {
			count++
			value = e.Min
		}
	}
	if count != 1 {
		return 0, false
	}
	for _, e := range t.Entries {
		if e.PN == pn {
			return e.Min, e.Min == e.Max
		}
	}
	return 0, false
}
