// Package irdword implements double-word lowering: eliminating the
// two "high" integer modes (signed/unsigned, twice the word width) in
// favor of word-width pairs, run before target-specific lowering. One
// handler per opcode, each producing a node's low/high replacement
// pair.
package irdword

import (
	"fmt"
	"sync"

	"github.com/oisee/ssagraph/irnode"
	"github.com/oisee/ssagraph/mode"
)

// IntrinsicFactory supplies the emulation routine entity for a given
// arithmetic op at a given (input-mode, output-mode) pair, e.g. "call
// the runtime's __adddi3 for Add on Ls". Called at most once per
// distinct (op, imode, omode) key; the returned entity is cached.
type IntrinsicFactory func(mt *irnode.MethodType, op irnode.Op, imode, omode *mode.Mode, ctx any) (*irnode.Entity, error)

type intrinsicKey struct {
	op    irnode.Op
	imode *mode.Mode
	omode *mode.Mode
}

// intrinsicCache is the (op,imode,omode)->entity map behind
// IntrinsicFactory's called-at-most-once guarantee.
type intrinsicCache struct {
	mu      sync.Mutex
	factory IntrinsicFactory
	ctx     any
	entries map[intrinsicKey]*irnode.Entity
}

func newIntrinsicCache(factory IntrinsicFactory, ctx any) *intrinsicCache {
	return &intrinsicCache{factory: factory, ctx: ctx, entries: make(map[intrinsicKey]*irnode.Entity)}
}

func (c *intrinsicCache) lookup(mt *irnode.MethodType, op irnode.Op, imode, omode *mode.Mode) (*irnode.Entity, error) {
	key := intrinsicKey{op, imode, omode}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e, nil
	}
	if c.factory == nil {
		return nil, fmt.Errorf("irdword: no intrinsic factory configured for %s(%s->%s)", op, imode.Name, omode.Name)
	}
	e, err := c.factory(mt, op, imode, omode, c.ctx)
	if err != nil {
		return nil, fmt.Errorf("irdword: intrinsic factory for %s(%s->%s): %w", op, imode.Name, omode.Name, err)
	}
	c.entries[key] = e
	return e, nil
}

// Params configures one lowering run: the target's word width,
// its endianness (governs pair order for parameters, call arguments
// and Load/Store addressing), and the intrinsic factory + opaque
// context it is called with.
type Params struct {
	WordBits     uint8
	LittleEndian bool
	Factory      IntrinsicFactory
	Ctx          any
}
