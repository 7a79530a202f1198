package irnode

import (
	"sync"

	"github.com/oisee/ssagraph/ssaerr"
)

// ResourceKind names a per-graph link/scratch slot a pass may reserve
// for its exclusive use: IRN_LINK, PHI_LIST, IRN_VISITED,
// TYPE_VISITED. Overlapping reservations within one graph are
// forbidden; a conflicting Reserve is a ResourceError.
type ResourceKind int

const (
	ResourceLink ResourceKind = iota
	ResourcePhiList
	ResourceNodeVisited
	ResourceTypeVisited
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceLink:
		return "IRN_LINK"
	case ResourcePhiList:
		return "PHI_LIST"
	case ResourceNodeVisited:
		return "IRN_VISITED"
	case ResourceTypeVisited:
		return "TYPE_VISITED"
	}
	return "Resource(?)"
}

// ResourceSet is a mutex-guarded map from ResourceKind to the name of
// whichever pass currently holds it.
type ResourceSet struct {
	mu   sync.Mutex
	held map[ResourceKind]string
}

func newResourceSet() *ResourceSet {
	return &ResourceSet{held: make(map[ResourceKind]string)}
}

// Reserve claims kind on behalf of pass, fatally reporting via
// ssaerr.Fatal if another pass already holds it.
func (r *ResourceSet) Reserve(kind ResourceKind, pass string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, busy := r.held[kind]; busy {
		ssaerr.Fatal(&ssaerr.ResourceError{Kind: kind.String(), Holder: holder, Claimer: pass})
	}
	r.held[kind] = pass
}

// Free releases kind. Freeing an unreserved kind is a no-op.
func (r *ResourceSet) Free(kind ResourceKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, kind)
}

// HeldBy reports which pass currently holds kind, or "" if free.
func (r *ResourceSet) HeldBy(kind ResourceKind) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[kind]
}
