// Package ssaerr defines the typed error kinds shared across the
// repository: verify failures, parse errors, unsupported constructs,
// precondition violations and resource collisions. The fatal kinds are
// reported through glog before propagating as a panic; recoverable
// kinds (VerifyError in report-only mode, ParseError) are returned as
// plain errors, never logged here by the package itself.
package ssaerr

import (
	"fmt"

	"github.com/golang/glog"
)

// VerifyError reports a structural or mode error found by the
// verifier, naming the offending node and (if applicable) predecessor.
type VerifyError struct {
	Node  string
	Pred  string
	Cause string
}

func (e *VerifyError) Error() string {
	if e.Pred != "" {
		return fmt.Sprintf("verify: node %s (pred %s): %s", e.Node, e.Pred, e.Cause)
	}
	return fmt.Sprintf("verify: node %s: %s", e.Node, e.Cause)
}

// ParseError reports a textual-IR read failure at a specific location.
type ParseError struct {
	File    string
	Line    int
	Context string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s:%d: %s", e.File, e.Line, e.Context)
}

// UnsupportedError reports a construct the implementation cannot
// lower/execute (e.g. a doubleword switch selector, a non-two's-
// complement doubleword mode).
type UnsupportedError struct {
	What string
}

func (e *UnsupportedError) Error() string { return "unsupported: " + e.What }

// PreconditionError reports a pass invoked on a graph that does not
// satisfy the pass's declared required properties.
type PreconditionError struct {
	Pass     string
	Property string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violation: pass %q requires %q", e.Pass, e.Property)
}

// ResourceError reports two passes contending for the same link slot.
type ResourceError struct {
	Kind    string
	Holder  string
	Claimer string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource collision: %q already reserved by %q, claimed by %q", e.Kind, e.Holder, e.Claimer)
}

// Fatal logs err at error level via glog and panics with it. Used for
// the error kinds that must propagate as a fatal condition to the
// caller: unsupported construct, precondition violation, resource
// collision. A pass-boundary recover() (see irpass.Manager.Run) turns
// the panic back into a returned error for embedders, while a bare CLI
// invocation terminates through the panic.
func Fatal(err error) {
	glog.Errorf("fatal: %v", err)
	panic(err)
}

// Recover turns a panic carrying one of this package's error types (or
// any error) into a returned error. Call via `defer` at a pass
// boundary: `defer ssaerr.Recover(&err)`. Re-panics anything that isn't
// an error, since those are genuine programming-error bugs, not the
// modeled fatal conditions.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if err, ok := r.(error); ok {
		*errp = err
		return
	}
	panic(r)
}
