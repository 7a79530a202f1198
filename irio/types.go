package irio

import (
	"fmt"
	"io"
	"sort"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
)

var typeKindNames = map[irnode.TypeKind]string{
	irnode.TypeUnknown:     "Unknown",
	irnode.TypeClass:       "class",
	irnode.TypeUnion:       "union",
	irnode.TypeStruct:      "struct",
	irnode.TypeArray:       "array",
	irnode.TypeMethod:      "method",
	irnode.TypePointer:     "pointer",
	irnode.TypePrimitive:   "primitive",
	irnode.TypeEnumeration: "enumeration",
}

var typeKindByName = func() map[string]irnode.TypeKind {
	m := make(map[string]irnode.TypeKind, len(typeKindNames))
	for k, v := range typeKindNames {
		m[v] = k
	}
	return m
}()

// typegraphBuilder collects every Type/MethodType/Entity reachable from
// a graph's entity, frame type, and per-node Entity()/MethodType()
// attributes, assigns each a stable textual id, and emits them in
// dependency order (children before parents) so the reader, which
// does not delay typegraph references the way it delays irg node
// predecessors, can resolve every reference on first sight.
type typegraphBuilder struct {
	typeIDs   map[*irnode.Type]string
	methodIDs map[*irnode.MethodType]string
	entityIDs map[*irnode.Entity]string
	order     []any // emitted in order: *irnode.Type, *irnode.MethodType, or *irnode.Entity
	visiting  map[any]bool
}

func newTypegraphBuilder() *typegraphBuilder {
	return &typegraphBuilder{
		typeIDs:   map[*irnode.Type]string{},
		methodIDs: map[*irnode.MethodType]string{},
		entityIDs: map[*irnode.Entity]string{},
		visiting:  map[any]bool{},
	}
}

func (b *typegraphBuilder) addType(t *irnode.Type) string {
	if t == nil {
		return "NULL"
	}
	if id, ok := b.typeIDs[t]; ok {
		return id
	}
	if b.visiting[t] {
		// A genuine type cycle (e.g. a self-referential struct pointer)
		// has no acyclic emission order; this format doesn't model
		// struct field layout, so no in-pack Type graph actually needs
		// one.
		panic(fmt.Sprintf("irio: cyclic type %q", t.Name))
	}
	b.visiting[t] = true
	if t.Method != nil {
		b.addMethod(t.Method)
	}
	if t.PointsTo != nil {
		b.addType(t.PointsTo)
	}
	delete(b.visiting, t)

	id := fmt.Sprintf("T%d", len(b.typeIDs))
	b.typeIDs[t] = id
	b.order = append(b.order, t)
	return id
}

func (b *typegraphBuilder) addMethod(mt *irnode.MethodType) string {
	if mt == nil {
		return "NULL"
	}
	if id, ok := b.methodIDs[mt]; ok {
		return id
	}
	for _, p := range mt.Params {
		b.addType(p.Type)
	}
	for _, p := range mt.Results {
		b.addType(p.Type)
	}
	id := fmt.Sprintf("M%d", len(b.methodIDs))
	b.methodIDs[mt] = id
	b.order = append(b.order, mt)
	return id
}

func (b *typegraphBuilder) addEntity(e *irnode.Entity) string {
	if e == nil {
		return "NULL"
	}
	if id, ok := b.entityIDs[e]; ok {
		return id
	}
	b.addType(e.Type)
	b.addType(e.Owner)
	id := fmt.Sprintf("E%d", len(b.entityIDs))
	b.entityIDs[e] = id
	b.order = append(b.order, e)
	return id
}

func modeNameOrNull(m *mode.Mode) string {
	if m == nil {
		return "NULL"
	}
	return m.Name
}

func quote(s string) string {
	var sb []byte
	sb = append(sb, '"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			sb = append(sb, '\\', 'n')
		case '\\':
			sb = append(sb, '\\', '\\')
		case '"':
			sb = append(sb, '\\', '"')
		default:
			sb = append(sb, s[i])
		}
	}
	sb = append(sb, '"')
	return string(sb)
}

// write emits every collected record, in dependency order, as the
// typegraph{} block body.
func (b *typegraphBuilder) write(w io.Writer) error {
	for _, item := range b.order {
		switch v := item.(type) {
		case *irnode.Type:
			if err := b.writeType(w, v); err != nil {
				return err
			}
		case *irnode.MethodType:
			if err := b.writeMethod(w, v); err != nil {
				return err
			}
		case *irnode.Entity:
			if err := b.writeEntity(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *typegraphBuilder) writeType(w io.Writer, t *irnode.Type) error {
	kind := typeKindNames[t.Kind]
	_, err := fmt.Fprintf(w, "type %s %s %s %d %d %s %s %s\n",
		b.typeIDs[t], quote(t.Name), kind, t.Size, t.Align,
		idOrNull(b.methodIDs, t.Method), idOrNull(b.typeIDs, t.PointsTo), modeNameOrNull(t.ElemMode))
	return err
}

func idOrNull[K comparable](ids map[K]string, k K) string {
	var zero K
	if k == zero {
		return "NULL"
	}
	return ids[k]
}

func (b *typegraphBuilder) writeMethod(w io.Writer, mt *irnode.MethodType) error {
	variadic := 0
	if mt.Variadic {
		variadic = 1
	}
	if _, err := fmt.Fprintf(w, "methodtype %s %s %s %d %d %d\n",
		b.methodIDs[mt], quote(mt.Name), quote(mt.CallConv), variadic, len(mt.Params), len(mt.Results)); err != nil {
		return err
	}
	for _, p := range mt.Params {
		if err := writeParam(w, "param", b, p); err != nil {
			return err
		}
	}
	for _, p := range mt.Results {
		if err := writeParam(w, "result", b, p); err != nil {
			return err
		}
	}
	return nil
}

func writeParam(w io.Writer, kind string, b *typegraphBuilder, p irnode.Param) error {
	_, err := fmt.Fprintf(w, "%s %s %s %s\n", kind, quote(p.Name), idOrNull(b.typeIDs, p.Type), modeNameOrNull(p.Mode))
	return err
}

func (b *typegraphBuilder) writeEntity(w io.Writer, e *irnode.Entity) error {
	_, err := fmt.Fprintf(w, "entity %s %s %s %s %d %s\n",
		b.entityIDs[e], quote(e.Name), idOrNull(b.typeIDs, e.Type), idOrNull(b.typeIDs, e.Owner),
		e.ParamNumber, modeNameOrNull(e.LowHalfMode))
	return err
}

// typegraphTable holds the decoded id->object maps a reader consults
// while resolving irg-section entity=/methodtype= attribute references.
type typegraphTable struct {
	types    map[string]*irnode.Type
	methods  map[string]*irnode.MethodType
	entities map[string]*irnode.Entity
}

func newTypegraphTable() *typegraphTable {
	return &typegraphTable{
		types:    map[string]*irnode.Type{},
		methods:  map[string]*irnode.MethodType{},
		entities: map[string]*irnode.Entity{},
	}
}

func (t *typegraphTable) resolveType(id string) (*irnode.Type, error) {
	if id == "NULL" {
		return nil, nil
	}
	ty, ok := t.types[id]
	if !ok {
		return nil, fmt.Errorf("unknown type id %q", id)
	}
	return ty, nil
}

func (t *typegraphTable) resolveMethod(id string) (*irnode.MethodType, error) {
	if id == "NULL" {
		return nil, nil
	}
	mt, ok := t.methods[id]
	if !ok {
		return nil, fmt.Errorf("unknown methodtype id %q", id)
	}
	return mt, nil
}

func (t *typegraphTable) resolveEntity(id string) (*irnode.Entity, error) {
	if id == "NULL" {
		return nil, nil
	}
	e, ok := t.entities[id]
	if !ok {
		return nil, fmt.Errorf("unknown entity id %q", id)
	}
	return e, nil
}

func resolveMode(name string) (*mode.Mode, error) {
	if name == "NULL" {
		return nil, nil
	}
	m := mode.Lookup(name)
	if m == nil {
		return nil, fmt.Errorf("unknown mode %q", name)
	}
	return m, nil
}

// sortedModeNames is used by the writer's modes{} block: every mode
// actually used by the graph being written, sorted for determinism.
func sortedModeNames(used map[*mode.Mode]bool) []string {
	names := make([]string, 0, len(used))
	for m := range used {
		if m != nil {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names
}
