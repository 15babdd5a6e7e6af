package analyzer

import "sqlfront/internal/sem"

// NullFacts is a per-control-flow-path map from variable name to whether
// it is currently known not-null by inference, independent of its
// declared type. Spec §4.6 step 4: "inferred-not-null" may only be added
// along a path that proves it and is never removed within that path,
// matching the monotone-inference invariant in spec §3.2.
type NullFacts struct {
	known map[string]bool
}

// NewNullFacts returns an empty fact set.
func NewNullFacts() *NullFacts { return &NullFacts{known: map[string]bool{}} }

// Fork returns an independent copy of f, used when analysis splits into
// two branches (the THEN and ELSE arms of an IF) that must not leak
// inferences into each other.
func (f *NullFacts) Fork() *NullFacts {
	c := make(map[string]bool, len(f.known))
	for k, v := range f.known {
		c[k] = v
	}
	return &NullFacts{known: c}
}

// Promote marks name as inferred-not-null on this path. It is a no-op if
// already set: promotion is monotone, never reversed within one path.
func (f *NullFacts) Promote(name string) { f.known[name] = true }

// Demote clears a prior inference for name, used when a reassignment or
// passing name to an out-parameter invalidates what was previously known.
// Unlike Promote, this is not the common case Promote/Demote cycles
// guard against — spec §3.2 only promises monotonicity *along one
// control-flow path*; a reassignment starts a new path for name.
func (f *NullFacts) Demote(name string) { delete(f.known, name) }

// IsInferredNotNull reports whether name currently carries the
// inference.
func (f *NullFacts) IsInferredNotNull(name string) bool { return f.known[name] }

// Merge intersects two fact sets (e.g. after an IF/ELSE): a fact only
// survives if both branches (or all paths through a join point) agree on
// it, since code after the join point can have taken either path.
func Merge(a, b *NullFacts) *NullFacts {
	out := NewNullFacts()
	for k := range a.known {
		if b.known[k] {
			out.known[k] = true
		}
	}
	return out
}

// ApplyTo returns t with FlagInferredNotNull set if facts currently infer
// name not-null, unchanged otherwise. Handlers call this after resolving
// a bare-name expression's base type, before attaching the final Record.
func ApplyTo(t sem.Type, name string, facts *NullFacts) sem.Type {
	if facts != nil && facts.IsInferredNotNull(name) {
		return t.WithFlag(sem.FlagInferredNotNull)
	}
	return t
}
