package irbatch

import (
	"errors"
	"testing"

	"github.com/oisee/ssagraph/internal/irtest"
	"github.com/oisee/ssagraph/irnode"
)

func TestRunProcessesEveryTask(t *testing.T) {
	tasks := make([]Task, 0, 5)
	for i := 0; i < 5; i++ {
		tasks = append(tasks, Task{Name: "g", Graph: irtest.ReturnConst("g", int64(i))})
	}

	p := NewPool(2)
	results := p.Run(tasks, func(g *irnode.Graph) error { return nil })
	if len(results) != len(tasks) {
		t.Fatalf("got %d results, want %d", len(results), len(tasks))
	}
	checked, failed := p.Stats()
	if checked != int64(len(tasks)) {
		t.Errorf("checked = %d, want %d", checked, len(tasks))
	}
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
}

func TestRunReportsPerTaskErrors(t *testing.T) {
	tasks := []Task{
		{Name: "ok", Graph: irtest.ReturnConst("ok", 1)},
		{Name: "bad", Graph: irtest.ReturnConst("bad", 2)},
	}
	p := NewPool(1)
	results := p.Run(tasks, func(g *irnode.Graph) error {
		if g.Entity().Name == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	var failures int
	for _, r := range results {
		if r.Err != nil {
			failures++
			if r.Name != "bad" {
				t.Errorf("unexpected failing task %q", r.Name)
			}
		}
	}
	if failures != 1 {
		t.Errorf("got %d failures, want 1", failures)
	}
	_, failed := p.Stats()
	if failed != 1 {
		t.Errorf("Stats().failed = %d, want 1", failed)
	}
}

func TestNewPoolDefaultsWorkerCount(t *testing.T) {
	p := NewPool(0)
	if p.NumWorkers <= 0 {
		t.Errorf("NewPool(0).NumWorkers = %d, want > 0", p.NumWorkers)
	}
}
