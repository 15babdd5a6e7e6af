// Package resolve implements the name-resolution chain described in spec
// component E: a fixed sequence of "try-resolve" stages consulted in
// order for every bare name and dotted name the analyzer encounters.
// Each stage either resolves the name, reports a definite error, or
// declines so the next stage gets a turn.
package resolve

import (
	"fmt"

	"sqlfront/internal/sem"
)

// Verdict is what a single stage decided.
type Verdict int

const (
	// Continue means this stage has no opinion; try the next one.
	Continue Verdict = iota
	// Stop means this stage consumed the name, with or without error.
	Stop
)

// Result is what resolution of one name produced.
type Result struct {
	Verdict Verdict
	Type    sem.Type
	Err     error
}

var continued = Result{Verdict: Continue}

// Stage is one link in the resolution chain. name is the bare identifier
// being looked up; scope carries whatever context stages need (current
// procedure, current FROM join, enclosing arg bundle, and so on) without
// resolve needing to know the analyzer's internal types.
type Stage func(name string, scope *Scope) Result

// Scope is the read-only view of analyzer state a Stage consults. It is
// populated by internal/analyzer before each name lookup; resolve itself
// holds no state between calls.
type Scope struct {
	Locals        map[string]sem.Type
	ProcParams    map[string]sem.Type
	ArgBundles    map[string]*sem.Struct // bundle name -> its fields
	CursorFields  *sem.Struct            // non-nil only in cursor-scoped position
	FromJoin      *sem.Join              // current FROM-clause join, may be nil
	OuterJoin     *sem.Join              // enclosing join for correlated subqueries, may be nil
	Enums         map[string]*sem.Struct
	ConstGroups   map[string]*sem.Struct
	NamedTypes    map[string]sem.Type
	Globals       map[string]sem.Type
	ProcAsFunc    map[string]sem.Type
	Functions     map[string]sem.Type
	SelectFuncs   map[string]sem.Type
	Regions       map[string]struct{}
	InRegionList  bool // true only while resolving a region-list context
}

// Chain is the fixed, ordered stage sequence from spec §4.5. It is
// exported as a value (not a function) so a caller can splice in a test
// double for one stage without rebuilding the whole chain.
var Chain = []Stage{
	resolveLocal,
	resolveProcParam,
	resolveArgBundleField,
	resolveCursorField,
	resolveFromColumn,
	resolveOuterJoinColumn,
	resolveEnumMember,
	resolveConstGroupMember,
	resolveNamedType,
	resolveGlobal,
	resolveProcAsFunc,
	resolveFunction,
	resolveSelectFunction,
	resolveRegion,
}

// Resolve runs name through Chain in order and returns the first stage's
// decisive Result, or an "unresolved name" error if every stage declines.
func Resolve(name string, scope *Scope) Result {
	for _, stage := range Chain {
		r := stage(name, scope)
		if r.Verdict == Stop {
			return r
		}
	}
	return Result{Verdict: Stop, Err: fmt.Errorf("resolve: unresolved name %q", name)}
}

func resolveLocal(name string, scope *Scope) Result {
	if t, ok := scope.Locals[name]; ok {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

func resolveProcParam(name string, scope *Scope) Result {
	if t, ok := scope.ProcParams[name]; ok {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

// resolveArgBundleField matches only a bare name that is itself a key of
// scope.ArgBundles, and resolves it to a struct type. A dotted
// `bundle.field` access is handled by ResolveDotted (below), which does
// not call any stage.
func resolveArgBundleField(name string, scope *Scope) Result {
	if s, ok := scope.ArgBundles[name]; ok && s != nil {
		return Result{Verdict: Stop, Type: sem.NewType(sem.CoreStruct)}
	}
	return continued
}

func resolveCursorField(name string, scope *Scope) Result {
	if scope.CursorFields == nil {
		return continued
	}
	if i := scope.CursorFields.IndexOf(name); i >= 0 {
		return Result{Verdict: Stop, Type: scope.CursorFields.Types[i]}
	}
	return continued
}

func resolveFromColumn(name string, scope *Scope) Result {
	if scope.FromJoin == nil {
		return continued
	}
	t, found, ambiguous := lookupInJoin(scope.FromJoin, name)
	if ambiguous {
		return Result{Verdict: Stop, Err: fmt.Errorf("resolve: ambiguous column %q in FROM clause", name)}
	}
	if found {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

func resolveOuterJoinColumn(name string, scope *Scope) Result {
	if scope.OuterJoin == nil {
		return continued
	}
	t, found, ambiguous := lookupInJoin(scope.OuterJoin, name)
	if ambiguous {
		return Result{Verdict: Stop, Err: fmt.Errorf("resolve: ambiguous correlated column %q", name)}
	}
	if found {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

// lookupInJoin finds name across every table/view struct in j, returning
// an error verdict if more than one table defines it without
// disambiguating alias qualification.
func lookupInJoin(j *sem.Join, name string) (t sem.Type, found, ambiguous bool) {
	matches := 0
	for _, s := range j.Structs {
		if i := s.IndexOf(name); i >= 0 {
			matches++
			t = s.Types[i]
		}
	}
	switch matches {
	case 0:
		return sem.Type(0), false, false
	case 1:
		return t, true, false
	default:
		return sem.Type(0), false, true
	}
}

func resolveEnumMember(name string, scope *Scope) Result {
	if _, ok := scope.Enums[name]; ok {
		return Result{Verdict: Stop, Type: sem.NewType(sem.CoreInt64)}
	}
	return continued
}

func resolveConstGroupMember(name string, scope *Scope) Result {
	if _, ok := scope.ConstGroups[name]; ok {
		return Result{Verdict: Stop, Type: sem.NewType(sem.CoreInt64)}
	}
	return continued
}

func resolveNamedType(name string, scope *Scope) Result {
	if t, ok := scope.NamedTypes[name]; ok {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

func resolveGlobal(name string, scope *Scope) Result {
	if t, ok := scope.Globals[name]; ok {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

func resolveProcAsFunc(name string, scope *Scope) Result {
	if t, ok := scope.ProcAsFunc[name]; ok {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

func resolveFunction(name string, scope *Scope) Result {
	if t, ok := scope.Functions[name]; ok {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

func resolveSelectFunction(name string, scope *Scope) Result {
	if t, ok := scope.SelectFuncs[name]; ok {
		return Result{Verdict: Stop, Type: t}
	}
	return continued
}

func resolveRegion(name string, scope *Scope) Result {
	if !scope.InRegionList {
		return continued
	}
	if _, ok := scope.Regions[name]; ok {
		return Result{Verdict: Stop, Type: sem.NewType(sem.CoreRegion)}
	}
	return continued
}

// DottedKind classifies how `A.B` was resolved, per spec §4.5's fallback
// order: alias-qualified column, enum member, arg-bundle field, or a
// sugared method call the rewriter must still expand.
type DottedKind int

const (
	DottedColumn DottedKind = iota
	DottedEnumMember
	DottedArgBundleField
	DottedMethodCall
)

// ResolveDotted implements the `A.B` fallback chain: alias-qualified
// column lookup, then enum member, then arg-bundle field, then (if none
// match) a sugared object-method call left for the rewriter.
func ResolveDotted(alias, field string, scope *Scope) (DottedKind, sem.Type, error) {
	if scope.FromJoin != nil {
		if i := scope.FromJoin.IndexOf(alias); i >= 0 {
			s := scope.FromJoin.Structs[i]
			if fi := s.IndexOf(field); fi >= 0 {
				return DottedColumn, s.Types[fi], nil
			}
			return 0, 0, fmt.Errorf("resolve: %q has no column %q", alias, field)
		}
	}
	if enumStruct, ok := scope.Enums[alias]; ok {
		if i := enumStruct.IndexOf(field); i >= 0 {
			return DottedEnumMember, enumStruct.Types[i], nil
		}
		return 0, 0, fmt.Errorf("resolve: enum %q has no member %q", alias, field)
	}
	if bundle, ok := scope.ArgBundles[alias]; ok {
		if i := bundle.IndexOf(field); i >= 0 {
			return DottedArgBundleField, bundle.Types[i], nil
		}
		return 0, 0, fmt.Errorf("resolve: arg bundle %q has no field %q", alias, field)
	}
	// Neither a known alias, enum, nor bundle: treat as a call the
	// rewriter may still turn into `field(alias, ...)`.
	return DottedMethodCall, sem.NewType(sem.CorePending), nil
}
