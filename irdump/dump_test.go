package irdump_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oisee/ssagraph/internal/irtest"
	"github.com/oisee/ssagraph/irdump"
	"github.com/oisee/ssagraph/mode"
)

func TestWriteGraphReturnConst(t *testing.T) {
	g := irtest.ReturnConst("f", 42)

	var buf bytes.Buffer
	if err := irdump.WriteGraph(&buf, g); err != nil {
		t.Fatalf("WriteGraph: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, `graph: { title: "f"`) {
		t.Errorf("missing graph header, got:\n%s", out)
	}
	if !strings.Contains(out, "node: {") {
		t.Errorf("no node records emitted")
	}
	if !strings.Contains(out, "Const") {
		t.Errorf("expected a Const node label, got:\n%s", out)
	}
	if !strings.Contains(out, "edge: {") {
		t.Errorf("no edge records emitted")
	}
	if !strings.HasSuffix(strings.TrimRight(out, "\n"), "}") {
		t.Errorf("dump does not end with closing brace, got:\n%s", out)
	}
}

func TestWriteGraphDiamondRendersCondAndEveryNode(t *testing.T) {
	d := irtest.Diamond("g", 5, mode.RelLess)

	var buf bytes.Buffer
	if err := irdump.WriteGraph(&buf, d.G); err != nil {
		t.Fatalf("WriteGraph: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Cond") {
		t.Errorf("expected Cond node rendered, got:\n%s", out)
	}
	if got, want := strings.Count(out, "node: {"), d.G.NumNodes(); got != want {
		t.Errorf("node record count = %d, want %d", got, want)
	}
}
