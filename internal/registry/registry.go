// Package registry holds the global, insertion-ordered tables the
// analyzer populates as it walks a translation unit (tables, views,
// indices, triggers, regions, enums, constants, procedures, and so on),
// plus the CTE scope stack pushed and popped around each WITH block. One
// Registry has a lifecycle tied to exactly one compilation; it is never
// shared across runs.
package registry

import (
	"sqlfront/internal/ast"
	"sqlfront/internal/sem"
	"sqlfront/internal/symtab"
)

// Object pairs a registered name with the AST node that declared it and
// its analyzed struct, when the object is a shape. Procedures additionally
// carry their argument list, DML classification, and accumulated
// dependency sets; other object kinds leave those fields nil.
type Object struct {
	Name   string
	Node   *ast.Node
	Struct *sem.Struct

	Args  []Arg
	Class ProcClass
	Deps  *DepSets
}

// Arg is one procedure argument as the JSON emitter reports it. Origin
// records how a shape-expanded argument was derived ("" for an explicit
// argument, "<bundle> <shape> <col>" for one minted by LIKE expansion).
type Arg struct {
	Name   string
	Type   sem.Type
	Origin string
}

// ProcClass buckets a procedure by the statement shape of its body, the
// classification the JSON emitter uses to pick an output section.
type ProcClass int

const (
	ProcGeneral ProcClass = iota
	ProcQuery
	ProcSimpleInsert
	ProcGeneralInsert
	ProcUpdate
	ProcDelete
)

// DepSets is the flattened, sorted form of the dependency visitor's
// accumulated sets, attached to a procedure's Object once analysis of its
// body finishes. UsesTables is always the union of the four per-context
// table sets.
type DepSets struct {
	FromTables     []string
	InsertTables   []string
	UpdateTables   []string
	DeleteTables   []string
	UsesProcedures []string
	UsesViews      []string
	UsesTables     []string
}

// OperatorKey is a lookup key into the operator-dispatch registry: an
// operation name (array/call/functor/arrow/lshift/rshift/concat) paired
// with the type-kind qualifiers used for most-specific-first resolution.
type OperatorKey struct {
	Op        string
	LeftKind  string // "" means unqualified/"all"
	RightKind string // "" means unqualified/"all"
}

// Registry is the complete set of global tables populated during
// analysis of one translation unit.
type Registry struct {
	Tables      *symtab.Table[*Object]
	Views       *symtab.Table[*Object]
	Indices     *symtab.Table[*Object]
	Triggers    *symtab.Table[*Object]
	Regions     *symtab.Table[*Object]
	Enums       *symtab.Table[*Object]
	Constants   *symtab.Table[*Object]
	ConstGroups *symtab.Table[*Object]

	SelectFuncs   *symtab.Table[*Object]
	Functions     *symtab.Table[*Object]
	UncheckedFns  *symtab.Table[*Object]
	Procedures    *symtab.Table[*Object]
	NamedTypes    *symtab.Table[*Object]
	ArgBundles    *symtab.Table[*Object]

	AdHocMigrations *symtab.Table[*Object]
	Subscriptions   *symtab.Table[*Object]
	BackedBy        *symtab.Table[string] // backed column/table name -> backing table name
	RecreateGroups  *symtab.Table[[]string]

	Operators *symtab.Table[string] // OperatorKey.String() -> replacement function name

	// DeclOrder preserves the full declaration sequence across all
	// registries, independent of which table an object landed in, for
	// emitters that must walk the tree in source order rather than
	// per-kind order.
	DeclOrder []*Object
}

// New returns an empty Registry ready for one compilation.
func New() *Registry {
	return &Registry{
		Tables:          symtab.New[*Object](),
		Views:           symtab.New[*Object](),
		Indices:         symtab.New[*Object](),
		Triggers:        symtab.New[*Object](),
		Regions:         symtab.New[*Object](),
		Enums:           symtab.New[*Object](),
		Constants:       symtab.New[*Object](),
		ConstGroups:     symtab.New[*Object](),
		SelectFuncs:     symtab.New[*Object](),
		Functions:       symtab.New[*Object](),
		UncheckedFns:    symtab.New[*Object](),
		Procedures:      symtab.New[*Object](),
		NamedTypes:      symtab.New[*Object](),
		ArgBundles:      symtab.New[*Object](),
		AdHocMigrations: symtab.New[*Object](),
		Subscriptions:   symtab.New[*Object](),
		BackedBy:        symtab.New[string](),
		RecreateGroups:  symtab.New[[]string](),
		Operators:       symtab.New[string](),
	}
}

// Declare records obj in table and appends it to DeclOrder, reporting
// false (without mutating anything) if name is already present: the
// first declaration of a global name always wins.
func (r *Registry) Declare(table *symtab.Table[*Object], obj *Object) bool {
	if !table.AddIfAbsent(obj.Name, obj) {
		return false
	}
	r.DeclOrder = append(r.DeclOrder, obj)
	return true
}

// String renders an OperatorKey the way the original compiler formats
// its dispatch keys: "<op>:<left-or-all>:<right-or-all>".
func (k OperatorKey) String() string {
	left, right := k.LeftKind, k.RightKind
	if left == "" {
		left = "all"
	}
	if right == "" {
		right = "all"
	}
	return k.Op + ":" + left + ":" + right
}

// ResolveOperator performs the most-specific-first lookup described for
// §4.7's dispatch table: kind-qualified on both sides, then left-only,
// then the unqualified fallback. It returns the replacement function name
// and true on a hit.
func (r *Registry) ResolveOperator(op, leftKind, rightKind string) (string, bool) {
	candidates := []OperatorKey{
		{Op: op, LeftKind: leftKind, RightKind: rightKind},
		{Op: op, LeftKind: leftKind},
		{Op: op},
	}
	for _, c := range candidates {
		if fn, ok := r.Operators.Find(c.String()); ok {
			return fn, true
		}
	}
	return "", false
}

// BindOperator installs fn as the replacement for key, overwriting any
// existing binding for the same key.
func (r *Registry) BindOperator(key OperatorKey, fn string) {
	r.Operators.Set(key.String(), fn)
}

// CTEScope is a stack of per-WITH-block maps from CTE name to its
// analyzed struct, per spec §3.4. Nested selects see outer scopes; the
// analyzer pushes one frame on entering a WITH clause and pops it on
// exit.
type CTEScope struct {
	frames []*symtab.Table[*sem.Struct]
}

// NewCTEScope returns an empty scope stack.
func NewCTEScope() *CTEScope {
	return &CTEScope{}
}

// Push opens a new WITH-block frame.
func (c *CTEScope) Push() {
	c.frames = append(c.frames, symtab.New[*sem.Struct]())
}

// Pop closes the innermost frame. It panics if the stack is empty,
// mirroring the arena location stack's discipline: callers must always
// pair Push with Pop.
func (c *CTEScope) Pop() {
	if len(c.frames) == 0 {
		panic("registry: CTEScope.Pop with no open frame")
	}
	c.frames = c.frames[:len(c.frames)-1]
}

// Bind registers name in the innermost frame. It panics if no frame is
// open.
func (c *CTEScope) Bind(name string, s *sem.Struct) {
	if len(c.frames) == 0 {
		panic("registry: CTEScope.Bind with no open frame")
	}
	c.frames[len(c.frames)-1].Set(name, s)
}

// Lookup searches from the innermost frame outward, so a nested WITH
// can shadow an outer one by name.
func (c *CTEScope) Lookup(name string) (*sem.Struct, bool) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if s, ok := c.frames[i].Find(name); ok {
			return s, true
		}
	}
	return nil, false
}

// Depth reports how many WITH blocks are currently open.
func (c *CTEScope) Depth() int { return len(c.frames) }
