// Command ssagraph ties the graph/dominance/pass/verify/confirm/lower
// packages together behind one cobra.Command tree, one subcommand per
// pipeline stage: each subcommand builds or reads a graph, runs one
// stage, and reports. The batch subcommand runs the
// dominance/verify/confirm pipeline across many textual-IR files at
// once, using internal/irbatch's worker pool.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oisee/ssagraph/internal/irbatch"
	"github.com/oisee/ssagraph/internal/irtest"
	"github.com/oisee/ssagraph/irconfirm"
	"github.com/oisee/ssagraph/irdom"
	"github.com/oisee/ssagraph/irdump"
	"github.com/oisee/ssagraph/irdword"
	"github.com/oisee/ssagraph/irio"
	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/irverify"
	"github.com/oisee/ssagraph/mode"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ssagraph",
		Short: "Sea-of-Nodes SSA graph tool: verify, confirm, lower-dword, dump",
	}

	var input string
	var demo string

	addGraphFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&input, "input", "", "textual-IR file to read; takes precedence over --demo")
		cmd.Flags().StringVar(&demo, "demo", "return-const", "built-in demo graph: return-const, diamond, dword-add (used when --input is empty)")
	}

	// verify command
	var onVerifyFail string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Compute dominance and run the structural/mode verifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(input, demo)
			if err != nil {
				return err
			}
			policy, err := parsePolicy(onVerifyFail)
			if err != nil {
				return err
			}
			dom := irdom.Compute(g)
			g.SetProperties(g.Properties().With(irnode.PropConsistentDominance))
			if err := irverify.Verify(g, dom, policy); err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			fmt.Println("verify: ok")
			return nil
		},
	}
	addGraphFlags(verifyCmd)
	verifyCmd.Flags().StringVar(&onVerifyFail, "on-verify-fail", "report", "continuation policy on verify failure: off, report, abort")

	// confirm command
	confirmCmd := &cobra.Command{
		Use:   "confirm",
		Short: "Insert Confirm nodes along dominated branch edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(input, demo)
			if err != nil {
				return err
			}
			dom := irdom.Compute(g)
			g.SetProperties(g.Properties().With(irnode.PropConsistentDominance))
			irconfirm.Insert(g, dom)
			fmt.Printf("confirm: inserted on %q (%d nodes total)\n", describeGraph(g), g.NumNodes())
			return nil
		},
	}
	addGraphFlags(confirmCmd)

	// lower-dword command
	var wordBits int
	var littleEndian bool
	lowerCmd := &cobra.Command{
		Use:   "lower-dword",
		Short: "Lower double-word (2x word-width) arithmetic to word-pair operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(input, demo)
			if err != nil {
				return err
			}
			params := irdword.Params{
				WordBits:     uint8(wordBits),
				LittleEndian: littleEndian,
				Factory:      runtimeIntrinsic,
			}
			if err := irdword.Lower(g, params); err != nil {
				return fmt.Errorf("lower-dword: %w", err)
			}
			fmt.Printf("lower-dword: ok (%d nodes after lowering)\n", g.NumNodes())
			return nil
		},
	}
	addGraphFlags(lowerCmd)
	lowerCmd.Flags().IntVar(&wordBits, "word-bits", 32, "target machine word width in bits")
	lowerCmd.Flags().BoolVar(&littleEndian, "little-endian", true, "target byte order, for Load/Store half splitting")

	// dump command
	var dumpOutput string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Write a VCG-style graph dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(input, demo)
			if err != nil {
				return err
			}
			out := os.Stdout
			if dumpOutput != "" {
				f, err := os.Create(dumpOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := irdump.WriteGraph(out, g); err != nil {
				return fmt.Errorf("dump: %w", err)
			}
			return nil
		},
	}
	addGraphFlags(dumpCmd)
	dumpCmd.Flags().StringVar(&dumpOutput, "output", "", "output file path (default stdout)")

	// batch command
	var workers int
	var batchOnVerifyFail string
	batchCmd := &cobra.Command{
		Use:   "batch <file.ir> [more-files.ir...]",
		Short: "Run dominance+verify+confirm across many textual-IR files concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := parsePolicy(batchOnVerifyFail)
			if err != nil {
				return err
			}

			tasks := make([]irbatch.Task, 0, len(args))
			for _, path := range args {
				g, err := loadGraph(path, "")
				if err != nil {
					return err
				}
				tasks = append(tasks, irbatch.Task{Name: path, Graph: g})
			}

			pool := irbatch.NewPool(workers)
			pipeline := func(g *irnode.Graph) error {
				dom := irdom.Compute(g)
				g.SetProperties(g.Properties().With(irnode.PropConsistentDominance))
				if err := irverify.Verify(g, dom, policy); err != nil {
					return err
				}
				irconfirm.Insert(g, dom)
				return nil
			}
			results := pool.Run(tasks, pipeline)

			var failed int
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "batch: %s: %v\n", r.Name, r.Err)
				}
			}
			checked, failedCount := pool.Stats()
			fmt.Printf("batch: checked %d, failed %d (workers=%d)\n", checked, failedCount, pool.NumWorkers)
			if failed > 0 {
				return fmt.Errorf("batch: %d of %d graphs failed", failed, len(tasks))
			}
			return nil
		},
	}
	batchCmd.Flags().IntVar(&workers, "workers", 0, "worker goroutine count (default runtime.NumCPU())")
	batchCmd.Flags().StringVar(&batchOnVerifyFail, "on-verify-fail", "report", "continuation policy on verify failure: off, report, abort")

	rootCmd.AddCommand(verifyCmd, confirmCmd, lowerCmd, dumpCmd, batchCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadGraph reads a graph from an --input textual-IR file, or else
// builds one of the internal/irtest demo shapes named by --demo.
func loadGraph(input, demo string) (*irnode.Graph, error) {
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		g, res, err := irio.ReadGraph(f, input)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", input, err)
		}
		if res.Errors > 0 {
			fmt.Fprintf(os.Stderr, "read %s: %d non-fatal parse error(s)\n", input, res.Errors)
		}
		return g, nil
	}

	switch strings.ToLower(demo) {
	case "return-const", "":
		return irtest.ReturnConst("demo_return_const", 42), nil
	case "diamond":
		return irtest.Diamond("demo_diamond", 5, mode.RelLess).G, nil
	case "dword-add":
		return irtest.DoubleWordAdd("demo_dword_add", 1<<40, 7), nil
	default:
		return nil, fmt.Errorf("unknown --demo value %q: use return-const, diamond, or dword-add", demo)
	}
}

func describeGraph(g *irnode.Graph) string {
	if g.Entity() != nil {
		return g.Entity().Name
	}
	return "<unnamed>"
}

func parsePolicy(s string) (irverify.ContinuePolicy, error) {
	switch strings.ToLower(s) {
	case "off":
		return irverify.PolicyOff, nil
	case "report", "":
		return irverify.PolicyReport, nil
	case "abort":
		return irverify.PolicyAbort, nil
	default:
		return 0, fmt.Errorf("invalid --on-verify-fail value %q: use off, report, or abort", s)
	}
}

// runtimeIntrinsic is the Factory the CLI uses when a demo graph needs
// a doubleword emulation routine: it synthesizes a named entity for
// the would-be runtime routine, which is all the lowering itself needs
// (no code is generated here, so the entity never has to resolve to a
// real symbol).
func runtimeIntrinsic(mt *irnode.MethodType, op irnode.Op, imode, omode *mode.Mode, ctx any) (*irnode.Entity, error) {
	return &irnode.Entity{
		Name: mt.Name,
		Type: &irnode.Type{Kind: irnode.TypeMethod, Name: mt.Name, Method: mt},
	}, nil
}
