package analyzer

import (
	"fmt"
	"sort"
)

// AnnotationKind is the schema-annotation classification from spec
// §4.6's "Schema-versioning model", ordered the way annotations must be
// processed: unsub first, then creates, then deletes in tag order, then
// ad hoc last. The numeric order matters, not just the names.
type AnnotationKind int

const (
	AnnotationUnsub AnnotationKind = iota + 1
	AnnotationCreateTable
	AnnotationCreateColumn
	AnnotationDeleteTrigger
	AnnotationDeleteView
	AnnotationDeleteIndex
	AnnotationDeleteColumn
	AnnotationDeleteTable
	AnnotationAdHoc
)

// VersionAnnotation is one @create/@delete/@recreate directive attached
// to a schema object or column.
type VersionAnnotation struct {
	Ordinal       int // original declaration order
	Kind          AnnotationKind
	Version       int32
	TargetName    string
	ColumnOrdinal int // -1 if not a column annotation
	Migrator      string
}

// RecreateAnnotation is one @recreate directive, tracked separately
// because recreate groups are ordered by a topological sort over their
// foreign-key dependencies rather than by version number.
type RecreateAnnotation struct {
	TargetName   string
	GroupName    string // "" if the target is not in a named group
	Ordinal      int
	GroupOrdinal int // assigned by SortRecreateGroups
}

// VersionModel accumulates every schema-versioning directive seen during
// analysis of one translation unit and produces the two ordered
// annotation streams spec §4.6 hands to the schema-upgrade backend.
type VersionModel struct {
	annotations []VersionAnnotation
	recreate    []RecreateAnnotation
	nextOrdinal int
}

// NewVersionModel returns an empty model.
func NewVersionModel() *VersionModel { return &VersionModel{} }

// AddCreate validates createVersion/deleteVersion ordering and records a
// create annotation; pass deleteVersion <= 0 if the object has no
// @delete.
func (m *VersionModel) AddCreate(kind AnnotationKind, target string, createVersion, deleteVersion int32, columnOrdinal int) error {
	if deleteVersion > 0 && deleteVersion <= createVersion {
		return fmt.Errorf("analyzer: %q has @delete(%d) not greater than @create(%d)", target, deleteVersion, createVersion)
	}
	m.annotations = append(m.annotations, VersionAnnotation{
		Ordinal: m.nextOrdinal, Kind: kind, Version: createVersion,
		TargetName: target, ColumnOrdinal: columnOrdinal,
	})
	m.nextOrdinal++
	return nil
}

// AddDelete records a @delete annotation of the given kind.
func (m *VersionModel) AddDelete(kind AnnotationKind, target string, version int32, columnOrdinal int, migrator string) {
	m.annotations = append(m.annotations, VersionAnnotation{
		Ordinal: m.nextOrdinal, Kind: kind, Version: version,
		TargetName: target, ColumnOrdinal: columnOrdinal, Migrator: migrator,
	})
	m.nextOrdinal++
}

// AddAdHoc records an ad hoc migration procedure's version annotation.
func (m *VersionModel) AddAdHoc(target string, version int32, migrator string) {
	m.annotations = append(m.annotations, VersionAnnotation{
		Ordinal: m.nextOrdinal, Kind: AnnotationAdHoc, Version: version,
		TargetName: target, ColumnOrdinal: -1, Migrator: migrator,
	})
	m.nextOrdinal++
}

// AddRecreate records a @recreate directive, optionally naming a group.
func (m *VersionModel) AddRecreate(target, group string) {
	m.recreate = append(m.recreate, RecreateAnnotation{
		TargetName: target, GroupName: group, Ordinal: len(m.recreate),
	})
}

// UpgradeStream returns version annotations in
// (annotation_type, version, target_ordinal) order, per spec §5
// "Ordering guarantees".
func (m *VersionModel) UpgradeStream() []VersionAnnotation {
	out := append([]VersionAnnotation(nil), m.annotations...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out
}

// SortRecreateGroups topologically sorts recreate groups by the supplied
// foreign-key dependency edges (group -> groups it depends on) and
// assigns each annotation's GroupOrdinal. It returns an error if the
// dependency graph has a cycle among recreate groups, per spec §4.6.
func (m *VersionModel) SortRecreateGroups(deps map[string][]string) ([]RecreateAnnotation, error) {
	groups := map[string]bool{}
	for _, r := range m.recreate {
		if r.GroupName != "" {
			groups[r.GroupName] = true
		}
	}

	order, err := topoSort(groups, deps)
	if err != nil {
		return nil, err
	}
	rank := make(map[string]int, len(order))
	for i, g := range order {
		rank[g] = i
	}

	out := append([]RecreateAnnotation(nil), m.recreate...)
	for i := range out {
		if out[i].GroupName == "" {
			out[i].GroupOrdinal = -1
			continue
		}
		out[i].GroupOrdinal = rank[out[i].GroupName]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GroupOrdinal != out[j].GroupOrdinal {
			return out[i].GroupOrdinal < out[j].GroupOrdinal
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out, nil
}

// topoSort orders nodes (a set of names) by deps (name -> names it must
// come after), detecting cycles via the standard three-color DFS.
func topoSort(nodes map[string]bool, deps map[string][]string) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(nodes))
	var order []string

	var visit func(n string) error
	visit = func(n string) error {
		switch color[n] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("analyzer: cycle detected among recreate groups at %q", n)
		}
		color[n] = gray
		for _, d := range deps[n] {
			if !nodes[d] {
				continue
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		color[n] = black
		order = append(order, n)
		return nil
	}

	names := make([]string, 0, len(nodes))
	for n := range nodes {
		names = append(names, n)
	}
	sort.Strings(names) // deterministic visiting order for reproducible output
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}
