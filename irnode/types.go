package irnode

import "github.com/oisee/ssagraph/mode"

// TypeKind enumerates the type tags the textual format round-trips:
// array, class, method, pointer, primitive, struct, union,
// enumeration, or the reserved Unknown tag.
type TypeKind int

const (
	TypeUnknown TypeKind = iota
	TypeClass
	TypeUnion
	TypeStruct
	TypeArray
	TypeMethod
	TypePointer
	TypePrimitive
	TypeEnumeration
)

// Type describes a class, union, struct, array, method, pointer,
// primitive or enumeration.
type Type struct {
	Kind  TypeKind
	Name  string
	Size  uint64
	Align uint64

	// Method is populated when Kind == TypeMethod.
	Method *MethodType
	// PointsTo is populated when Kind == TypePointer.
	PointsTo *Type
	// ElemMode is populated when Kind == TypePrimitive.
	ElemMode *mode.Mode
}

// Param is one entry of a method type's parameter or result list.
type Param struct {
	Name string
	Type *Type
	Mode *mode.Mode
}

// MethodType describes a function signature: parameter and result
// type lists, a calling convention tag, and variadicity. Once
// double-word lowering rewrites a method type, Lowered caches the
// rewritten form so repeated lowering of the same type (e.g. at every
// call site) is idempotent.
type MethodType struct {
	Name     string
	Params   []Param
	Results  []Param
	CallConv string
	Variadic bool

	// Lowered caches this type's doubleword-lowered form, populated by
	// irdword.LowerMethodType the first time it is asked to lower this
	// *MethodType and reused thereafter.
	Lowered *MethodType
}

// Entity represents a linker-visible object: a method, a global, a
// struct field, or a parameter.
type Entity struct {
	Name string
	Type *Type

	// Owner is, for fields, the containing struct/class/union type;
	// for parameters, the frame type they live in.
	Owner *Type

	// ParamNumber is meaningful for parameter entities only: their
	// position in the (possibly already-lowered) frame layout.
	ParamNumber int

	// LowHalfMode records, for a parameter entity produced by
	// splitting a doubleword parameter, the mode of that entity's low
	// half. Calling-convention fix-up needs it later: the entity
	// itself now has a word-width mode, and the original doubleword
	// parameter it came from no longer appears anywhere once the
	// method type is rewritten.
	LowHalfMode *mode.Mode
}
