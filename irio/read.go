package irio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
	"github.com/oisee/ssagraph/ssaerr"
	"github.com/oisee/ssagraph/tarval"
)

// ReadResult reports how many recoverable parse errors ReadGraph
// swallowed via its skip-to-newline recovery: a caller that wants
// best-effort behavior can ignore a non-zero Errors count; one that
// wants strict parsing can treat it as failure.
type ReadResult struct {
	Errors int
}

// ReadGraph parses a single modes{}/typegraph{}/irg{} document read
// from r (the file name is used only for error messages) and returns
// the reconstructed graph. It is a two-phase parser: phase 1 walks the
// irg{} node lines and creates every node with placeholder (possibly
// still-unresolved) block/predecessor slots, since a Phi, Block or
// Anchor predecessor may name a node number not yet seen; phase 2
// resolves every slot against the now-complete id table. Malformed
// lines are skipped to the next newline and counted in the returned
// ReadResult rather than aborting the whole parse.
func ReadGraph(r io.Reader, file string) (*irnode.Graph, ReadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ReadResult{}, err
	}
	toks := tokenize(string(data))
	c := &cursor{toks: toks, file: file}
	res := ReadResult{}

	if err := expectWord(c, "modes"); err != nil {
		return nil, res, err
	}
	if err := expectWord(c, "{"); err != nil {
		return nil, res, err
	}
	skipBlock(c) // modes{} is informational only; every name it lists
	// must already be registered process-wide for the graph to use it,
	// so there's nothing further to materialize here.

	if err := expectWord(c, "typegraph"); err != nil {
		return nil, res, err
	}
	if err := expectWord(c, "{"); err != nil {
		return nil, res, err
	}
	tt, terrs := parseTypegraph(c)
	res.Errors += terrs

	if err := expectWord(c, "irg"); err != nil {
		return nil, res, err
	}
	entityTok, _ := c.next()
	frameTok, _ := c.next()
	pinTok, _ := c.next()
	propsTok, _ := c.next()
	if err := expectWord(c, "{"); err != nil {
		return nil, res, err
	}

	entity, err := tt.resolveEntity(entityTok.text)
	if err != nil {
		return nil, res, &ssaerr.ParseError{File: file, Line: entityTok.line, Context: err.Error()}
	}
	frameType, err := tt.resolveType(frameTok.text)
	if err != nil {
		return nil, res, &ssaerr.ParseError{File: file, Line: frameTok.line, Context: err.Error()}
	}

	g := irnode.NewEmptyGraph(entity, frameType)
	if pin, perr := strconv.Atoi(pinTok.text); perr == nil {
		g.SetPinDefault(irnode.PinState(pin))
	}
	if props, perr := strconv.ParseUint(strings.TrimPrefix(propsTok.text, "0x"), 16, 32); perr == nil {
		g.SetProperties(irnode.Property(props))
	}

	specs, nerrs := parseNodeLines(c, file)
	res.Errors += nerrs

	byID := make(map[string]*irnode.Node, len(specs))
	var anchor, start, end *irnode.Node
	for _, sp := range specs {
		m, merr := resolveMode(sp.modeTok)
		if merr != nil {
			res.Errors++
			continue
		}
		n := g.NewNode(sp.op, m, nil, make([]*irnode.Node, len(sp.predToks))...)
		byID[sp.idTok] = n
		applyAttrs(n, sp, tt, file, &res)
		switch sp.op {
		case irnode.OpAnchor:
			anchor = n
		case irnode.OpStart:
			start = n
		case irnode.OpEnd:
			end = n
		}
	}

	// A missing forward reference is recovered locally by materializing
	// a Bad placeholder, never a nil input: callers downstream
	// (irverify, irdom, irwalk, irdump) expect every non-NULL slot to
	// hold a real node.
	resolveRef := func(idTok string, line int) *irnode.Node {
		if idTok == "NULL" {
			return nil
		}
		n, ok := byID[idTok]
		if !ok {
			res.Errors++
			return g.NewNode(irnode.OpBad, mode.ANY, nil)
		}
		return n
	}

	for _, sp := range specs {
		n := byID[sp.idTok]
		if n == nil {
			continue
		}
		if sp.op != irnode.OpBlock && sp.op != irnode.OpAnchor {
			n.SetInput(-1, resolveRef(sp.blockTok, sp.line))
		}
		for i, predTok := range sp.predToks {
			n.SetInput(i, resolveRef(predTok, sp.line))
		}
	}

	if anchor != nil && start != nil && end != nil {
		g.SetAnchorStructure(anchor, start, end)
	} else {
		return nil, res, &ssaerr.ParseError{File: file, Line: 0, Context: "irg section missing Anchor/Start/End node"}
	}

	return g, res, nil
}

type nodeSpec struct {
	op       irnode.Op
	idTok    string
	blockTok string
	modeTok  string
	attrs    map[string]string
	predToks []string
	line     int
}

func parseNodeLines(c *cursor, file string) ([]nodeSpec, int) {
	var specs []nodeSpec
	errs := 0
	for {
		t, ok := c.peek()
		if !ok {
			break
		}
		if t.text == "}" {
			c.next()
			break
		}
		sp, err := parseOneNode(c)
		if err != nil {
			errs++
			c.skipToNextLine()
			continue
		}
		specs = append(specs, sp)
	}
	_ = file
	return specs, errs
}

func parseOneNode(c *cursor) (nodeSpec, error) {
	opTok, ok := c.next()
	if !ok {
		return nodeSpec{}, fmt.Errorf("unexpected end of input in irg body")
	}
	op, ok := irnode.ParseOp(opTok.text)
	if !ok {
		return nodeSpec{}, fmt.Errorf("unknown node opcode %q", opTok.text)
	}
	idTok, ok := c.next()
	if !ok {
		return nodeSpec{}, fmt.Errorf("node %s: missing index", opTok.text)
	}
	blockTok, ok := c.next()
	if !ok {
		return nodeSpec{}, fmt.Errorf("node %s: missing block ref", opTok.text)
	}
	modeTok, ok := c.next()
	if !ok {
		return nodeSpec{}, fmt.Errorf("node %s: missing mode", opTok.text)
	}

	sp := nodeSpec{op: op, idTok: idTok.text, blockTok: blockTok.text, modeTok: modeTok.text, attrs: map[string]string{}, line: opTok.line}

	for {
		t, ok := c.peek()
		if !ok {
			return sp, fmt.Errorf("node %s: unterminated (missing predecessor list)", opTok.text)
		}
		if t.text == "[" {
			c.next()
			break
		}
		c.next()
		if key, val, isAttr := strings.Cut(t.text, "="); isAttr {
			sp.attrs[key] = val
		}
	}

	for {
		t, ok := c.next()
		if !ok {
			return sp, fmt.Errorf("node %s: unterminated predecessor list", opTok.text)
		}
		if t.text == "]" {
			break
		}
		sp.predToks = append(sp.predToks, t.text)
	}
	return sp, nil
}

func applyAttrs(n *irnode.Node, sp nodeSpec, tt *typegraphTable, file string, res *ReadResult) {
	if v, ok := sp.attrs["const"]; ok {
		t, err := tarval.Parse(n.Mode(), v)
		if err != nil {
			res.Errors++
		} else {
			n.SetConstValue(t)
		}
	}
	if v, ok := sp.attrs["entity"]; ok {
		e, err := tt.resolveEntity(v)
		if err != nil {
			res.Errors++
		} else {
			n.SetEntity(e)
		}
	}
	if v, ok := sp.attrs["methodtype"]; ok {
		mt, err := tt.resolveMethod(v)
		if err != nil {
			res.Errors++
		} else {
			n.SetMethodType(mt)
		}
	}
	if v, ok := sp.attrs["proj"]; ok {
		if pn, err := strconv.Atoi(v); err == nil {
			n.SetProjNum(pn)
		} else {
			res.Errors++
		}
	}
	if v, ok := sp.attrs["rel"]; ok {
		if rel, ok := mode.ParseRelation(v); ok {
			n.SetRelation(rel)
		} else {
			res.Errors++
		}
	}
	if v, ok := sp.attrs["builtin"]; ok {
		if b, ok := irnode.ParseBuiltin(v); ok {
			n.SetBuiltin(b)
		} else {
			res.Errors++
		}
	}
	if v, ok := sp.attrs["table"]; ok {
		tbl, err := decodeTable(v)
		if err != nil {
			res.Errors++
		} else {
			n.SetTable(tbl)
		}
	}
	if v, ok := sp.attrs["dbg"]; ok {
		n.SetDebugInfo(v)
	}
}

func decodeTable(s string) (*irnode.SwitchTable, error) {
	parts := strings.Split(s, ",")
	nouts, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("table nouts: %w", err)
	}
	t := &irnode.SwitchTable{NOuts: nouts}
	for _, p := range parts[1:] {
		f := strings.Split(p, ":")
		if len(f) != 3 {
			return nil, fmt.Errorf("malformed table entry %q", p)
		}
		pn, err1 := strconv.Atoi(f[0])
		min, err2 := strconv.ParseInt(f[1], 10, 64)
		max, err3 := strconv.ParseInt(f[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("malformed table entry %q", p)
		}
		t.Entries = append(t.Entries, irnode.SwitchEntry{PN: pn, Min: min, Max: max})
	}
	return t, nil
}

func expectWord(c *cursor, word string) error {
	t, ok := c.next()
	if !ok || t.text != word {
		got := "<eof>"
		if ok {
			got = t.text
		}
		return &ssaerr.ParseError{File: c.file, Line: c.line(), Context: fmt.Sprintf("expected %q, got %q", word, got)}
	}
	return nil
}

// skipBlock discards tokens up to and including the matching closing
// brace for a block whose opening brace was just consumed, handling
// nested braces.
func skipBlock(c *cursor) {
	depth := 1
	for depth > 0 {
		t, ok := c.next()
		if !ok {
			return
		}
		switch t.text {
		case "{":
			depth++
		case "}":
			depth--
		}
	}
}

func parseTypegraph(c *cursor) (*typegraphTable, int) {
	tt := newTypegraphTable()
	errs := 0
	for {
		t, ok := c.peek()
		if !ok {
			break
		}
		if t.text == "}" {
			c.next()
			break
		}
		kindTok, _ := c.next()
		switch kindTok.text {
		case "type":
			if err := parseTypeLine(c, tt); err != nil {
				errs++
				c.skipToNextLine()
			}
		case "methodtype":
			if err := parseMethodLine(c, tt); err != nil {
				errs++
				c.skipToNextLine()
			}
		case "entity":
			if err := parseEntityLine(c, tt); err != nil {
				errs++
				c.skipToNextLine()
			}
		default:
			errs++
			c.skipToNextLine()
		}
	}
	return tt, errs
}

func parseTypeLine(c *cursor, tt *typegraphTable) error {
	id, _ := c.next()
	name, _ := c.next()
	kindTok, _ := c.next()
	sizeTok, _ := c.next()
	alignTok, _ := c.next()
	methodTok, _ := c.next()
	pointsToTok, _ := c.next()
	elemModeTok, _ := c.next()

	kind, ok := typeKindByName[kindTok.text]
	if !ok {
		return fmt.Errorf("unknown type kind %q", kindTok.text)
	}
	size, _ := strconv.ParseUint(sizeTok.text, 10, 64)
	align, _ := strconv.ParseUint(alignTok.text, 10, 64)
	elemMode, err := resolveMode(elemModeTok.text)
	if err != nil {
		return err
	}
	ty := &irnode.Type{Kind: kind, Name: name.text, Size: size, Align: align, ElemMode: elemMode}
	tt.types[id.text] = ty
	if mt, err := tt.resolveMethod(methodTok.text); err == nil {
		ty.Method = mt
	}
	if pt, err := tt.resolveType(pointsToTok.text); err == nil {
		ty.PointsTo = pt
	}
	return nil
}

func parseMethodLine(c *cursor, tt *typegraphTable) error {
	id, _ := c.next()
	name, _ := c.next()
	callConv, _ := c.next()
	variadicTok, _ := c.next()
	nparamsTok, _ := c.next()
	nresultsTok, _ := c.next()

	nparams, _ := strconv.Atoi(nparamsTok.text)
	nresults, _ := strconv.Atoi(nresultsTok.text)
	mt := &irnode.MethodType{Name: name.text, CallConv: callConv.text, Variadic: variadicTok.text == "1"}
	tt.methods[id.text] = mt

	for i := 0; i < nparams; i++ {
		p, err := parseParamLine(c, tt, "param")
		if err != nil {
			return err
		}
		mt.Params = append(mt.Params, p)
	}
	for i := 0; i < nresults; i++ {
		p, err := parseParamLine(c, tt, "result")
		if err != nil {
			return err
		}
		mt.Results = append(mt.Results, p)
	}
	return nil
}

func parseParamLine(c *cursor, tt *typegraphTable, want string) (irnode.Param, error) {
	kw, ok := c.next()
	if !ok || kw.text != want {
		return irnode.Param{}, fmt.Errorf("expected %q line, got %q", want, kw.text)
	}
	name, _ := c.next()
	typeTok, _ := c.next()
	modeTok, _ := c.next()
	ty, err := tt.resolveType(typeTok.text)
	if err != nil {
		return irnode.Param{}, err
	}
	m, err := resolveMode(modeTok.text)
	if err != nil {
		return irnode.Param{}, err
	}
	return irnode.Param{Name: name.text, Type: ty, Mode: m}, nil
}

func parseEntityLine(c *cursor, tt *typegraphTable) error {
	id, _ := c.next()
	name, _ := c.next()
	typeTok, _ := c.next()
	ownerTok, _ := c.next()
	paramNumTok, _ := c.next()
	lowHalfTok, _ := c.next()

	ty, err := tt.resolveType(typeTok.text)
	if err != nil {
		return err
	}
	owner, err := tt.resolveType(ownerTok.text)
	if err != nil {
		return err
	}
	paramNum, _ := strconv.Atoi(paramNumTok.text)
	lowHalf, err := resolveMode(lowHalfTok.text)
	if err != nil {
		return err
	}
	tt.entities[id.text] = &irnode.Entity{Name: name.text, Type: ty, Owner: owner, ParamNumber: paramNum, LowHalfMode: lowHalf}
	return nil
}
