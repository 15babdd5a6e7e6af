package analyzer

import "fmt"

// CursorPhase is one state in the cursor lifecycle from spec §4.6 "State
// machines": {declared, opened-statement-bound, opened-value-bound,
// has-row, fetched-into}.
type CursorPhase int

const (
	CursorDeclared CursorPhase = iota
	CursorOpenedStatementBound
	CursorOpenedValueBound
	CursorHasRow
	CursorFetchedInto
)

func (p CursorPhase) String() string {
	switch p {
	case CursorDeclared:
		return "declared"
	case CursorOpenedStatementBound:
		return "opened-statement-bound"
	case CursorOpenedValueBound:
		return "opened-value-bound"
	case CursorHasRow:
		return "has-row"
	case CursorFetchedInto:
		return "fetched-into"
	default:
		return "unknown-cursor-phase"
	}
}

// CursorState tracks one declared cursor's current phase.
type CursorState struct {
	Name  string
	Phase CursorPhase
}

// cursorTransitions enumerates, for each operation, the phases it may be
// applied from. An operation attempted from any other phase is a static
// error (spec §4.6: "the analyzer enforces these transitions
// statically").
var cursorTransitions = map[string][]CursorPhase{
	"open_statement": {CursorDeclared},
	"open_value":     {CursorDeclared},
	"fetch":          {CursorOpenedStatementBound, CursorHasRow},
	"fetch_into":     {CursorOpenedStatementBound, CursorFetchedInto},
	"close":          {CursorOpenedStatementBound, CursorOpenedValueBound, CursorHasRow, CursorFetchedInto},
}

// cursorResultPhase is the phase an operation leaves the cursor in.
var cursorResultPhase = map[string]CursorPhase{
	"open_statement": CursorOpenedStatementBound,
	"open_value":     CursorOpenedValueBound,
	"fetch":          CursorHasRow,
	"fetch_into":     CursorFetchedInto,
	"close":          CursorDeclared,
}

// DeclareCursor registers a fresh cursor in the declared phase. It
// reports false if name is already declared; cursor names are kept in
// one analyzer-wide table, not per scope.
func (az *Analyzer) DeclareCursor(name string) bool {
	if _, ok := az.cursors[name]; ok {
		return false
	}
	az.cursors[name] = &CursorState{Name: name, Phase: CursorDeclared}
	return true
}

// CursorOp validates and applies op (one of the cursorTransitions keys)
// to the named cursor, returning an error if the cursor doesn't exist or
// isn't in a phase the operation permits.
func (az *Analyzer) CursorOp(name, op string) error {
	cs, ok := az.cursors[name]
	if !ok {
		return fmt.Errorf("analyzer: cursor %q is not declared", name)
	}
	allowed, ok := cursorTransitions[op]
	if !ok {
		return fmt.Errorf("analyzer: unknown cursor operation %q", op)
	}
	for _, p := range allowed {
		if cs.Phase == p {
			cs.Phase = cursorResultPhase[op]
			return nil
		}
	}
	return fmt.Errorf("analyzer: cursor %q cannot %s from phase %s", name, op, cs.Phase)
}

// CursorPhaseOf reports the current phase of a declared cursor.
func (az *Analyzer) CursorPhaseOf(name string) (CursorPhase, bool) {
	cs, ok := az.cursors[name]
	if !ok {
		return 0, false
	}
	return cs.Phase, true
}

// OutUnionState tracks whether a procedure has ever emitted an OUT UNION
// row, per spec §4.6: {not-yet-emitted, emitted-at-least-once}. Mixing
// OUT and OUT UNION in one procedure is forbidden, so the analyzer
// checks this alongside a separate "used OUT" flag kept by the caller.
type OutUnionState int

const (
	OutUnionNotYetEmitted OutUnionState = iota
	OutUnionEmittedAtLeastOnce
)

// OutUnionEmit records that proc emitted a row via OUT UNION.
func (az *Analyzer) OutUnionEmit(proc string) {
	az.outUnion[proc] = OutUnionEmittedAtLeastOnce
}

// OutUnionStateOf reports proc's current out-union state.
func (az *Analyzer) OutUnionStateOf(proc string) OutUnionState {
	return az.outUnion[proc]
}

// CheckNoMixedOutForms returns an error if proc has used plain OUT and
// also attempts to use OUT UNION, or vice versa; usedPlainOut is supplied
// by the caller, which tracks it per-procedure alongside the semantic
// record (spec §4.6's uses-out / uses-out-union flags).
func CheckNoMixedOutForms(proc string, usedPlainOut bool, az *Analyzer) error {
	if usedPlainOut && az.OutUnionStateOf(proc) == OutUnionEmittedAtLeastOnce {
		return fmt.Errorf("analyzer: procedure %q mixes OUT and OUT UNION", proc)
	}
	return nil
}
