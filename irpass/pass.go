// Package irpass is the pass/property manager: each pass declares the
// properties it requires, the properties it guarantees on success, and
// the properties it invalidates unconditionally; the manager resolves
// prerequisites in dependency order before running a pass and
// reconciles the graph's property bitset afterward.
package irpass

import (
	"fmt"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/ssaerr"
)

// Pass is one named transformation or analysis over a graph.
type Pass struct {
	Name        string
	Requires    irnode.Property
	Provides    irnode.Property
	Invalidates irnode.Property
	Run         func(g *irnode.Graph) error
}

// Manager resolves a pass's prerequisites, via its registered
// producers, before running it.
type Manager struct {
	producers map[irnode.Property]*Pass
	passes    []*Pass
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{producers: make(map[irnode.Property]*Pass)}
}

// Register adds p to the manager, making it available as a producer
// for every bit in p.Provides. Registering a second pass that provides
// a bit already claimed replaces the claim (last registration wins);
// callers that care about determinism should register in a fixed
// order.
func (m *Manager) Register(p *Pass) {
	m.passes = append(m.passes, p)
	for bit := irnode.Property(1); bit != 0; bit <<= 1 {
		if p.Provides.Has(bit) {
			m.producers[bit] = p
		}
	}
}

// Ensure makes every bit of want held on g, running producers in
// dependency order as needed, without running want's own pass (use Run
// for that; Ensure just satisfies Requires).
func (m *Manager) Ensure(g *irnode.Graph, want irnode.Property) error {
	return m.ensure(g, want, nil)
}

func (m *Manager) ensure(g *irnode.Graph, want irnode.Property, chain []*Pass) error {
	for bit := irnode.Property(1); bit != 0; bit <<= 1 {
		if !want.Has(bit) || g.Properties().Has(bit) {
			continue
		}
		producer, ok := m.producers[bit]
		if !ok {
			return &ssaerr.PreconditionError{Pass: "irpass.Ensure", Property: fmt.Sprintf("0x%x", uint32(bit))}
		}
		for _, inChain := range chain {
			if inChain == producer {
				return fmt.Errorf("irpass: dependency cycle involving pass %q", producer.Name)
			}
		}
		if err := m.ensure(g, producer.Requires, append(chain, producer)); err != nil {
			return err
		}
		if err := m.run(g, producer); err != nil {
			return err
		}
	}
	return nil
}

// Run ensures p's prerequisites, runs p, then clears invalidated bits
// and sets provided bits, recovering any panic raised by p.Run into a
// plain error via ssaerr.Recover.
func (m *Manager) Run(g *irnode.Graph, p *Pass) error {
	if err := m.ensure(g, p.Requires, nil); err != nil {
		return err
	}
	return m.run(g, p)
}

func (m *Manager) run(g *irnode.Graph, p *Pass) (err error) {
	defer ssaerr.Recover(&err)
	if runErr := p.Run(g); runErr != nil {
		return fmt.Errorf("irpass: pass %q failed: %w", p.Name, runErr)
	}
	props := g.Properties().Without(p.Invalidates).With(p.Provides)
	g.SetProperties(props)
	return nil
}
