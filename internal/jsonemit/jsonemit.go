// Package jsonemit is the JSON emitter, spec component H: a pure,
// read-only walker over an analyzed tree that produces one top-level
// object describing every schema object, procedure, and query the
// translation unit declared. It never mutates the tree or the
// registries; internal/analyzer and internal/rewrite must have already
// finished before this package runs.
package jsonemit

import (
	"encoding/json"

	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
	"sqlfront/internal/sem"
)

// Schema is the top-level emitted object. Field names match the key set
// spec §4.8 lists; omitempty keeps the common case (a file declaring only
// a handful of these categories) from padding the output with empty
// arrays.
type Schema struct {
	Tables               []*TableInfo    `json:"tables,omitempty"`
	VirtualTables        []*TableInfo    `json:"virtualTables,omitempty"`
	Views                []*ObjectInfo   `json:"views,omitempty"`
	Indices              []*ObjectInfo   `json:"indices,omitempty"`
	Triggers             []*ObjectInfo   `json:"triggers,omitempty"`
	Queries              []*ProcInfo     `json:"queries,omitempty"`
	Inserts              []*ProcInfo     `json:"inserts,omitempty"`
	GeneralInserts       []*ProcInfo     `json:"generalInserts,omitempty"`
	Updates              []*ProcInfo     `json:"updates,omitempty"`
	Deletes              []*ProcInfo     `json:"deletes,omitempty"`
	General              []*ProcInfo     `json:"general,omitempty"`
	DeclareProcs         []*ProcInfo     `json:"declareProcs,omitempty"`
	DeclareFuncs         []*FuncInfo     `json:"declareFuncs,omitempty"`
	DeclareProcsNoCheck  []*ProcInfo     `json:"declareProcsNoCheck,omitempty"`
	DeclareSelectFuncs   []*FuncInfo     `json:"declareSelectFuncs,omitempty"`
	Interfaces           []*ObjectInfo   `json:"interfaces,omitempty"`
	Regions              []*RegionInfo   `json:"regions,omitempty"`
	AdHocMigrationProcs  []*ProcInfo     `json:"adHocMigrationProcs,omitempty"`
	Enums                []*EnumInfo     `json:"enums,omitempty"`
	ConstantGroups       []*EnumInfo     `json:"constantGroups,omitempty"`
	Subscriptions        []string        `json:"subscriptions,omitempty"`
	Attributes           map[string]any  `json:"attributes,omitempty"`
}

// ColumnInfo describes one field of a struct-typed object.
type ColumnInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	Type     string `json:"type"`
	IsNotNull bool  `json:"isNotNull,omitempty"`
}

// TableInfo is one emitted table, including its precomputed CRC and type
// hash for downstream change detection (spec §4.8 "A CRC and a stable
// type hash accompany each schema object").
type TableInfo struct {
	Name      string        `json:"name"`
	CRC       uint32        `json:"crc"`
	TypeHash  int64         `json:"typeHash"`
	Columns   []*ColumnInfo `json:"columns"`
	Indices   []string      `json:"indices,omitempty"`
	Region    string        `json:"region,omitempty"`
	// Backed and BackingTable surface a declare_backed_by_stmt binding
	// (spec §3.1 backed variant, §4.7.4) so a JSON consumer can tell a
	// logical backed table from the generic (k blob, v blob) table that
	// actually stores its rows.
	Backed        bool   `json:"backed,omitempty"`
	BackingTable  string `json:"backingTable,omitempty"`
}

// ObjectInfo is the minimal emission for views/indices/triggers/
// interfaces: just enough identity for the JSON consumer to cross-
// reference against the detailed procedure entries.
type ObjectInfo struct {
	Name string `json:"name"`
	CRC  uint32 `json:"crc"`
}

// RegionInfo is one emitted region, with its computed deployment per
// spec §4.6.
type RegionInfo struct {
	Name         string `json:"name"`
	IsDeployable bool   `json:"isDeployableRegion"`
	DeployedIn   string `json:"deployedInRegion"`
}

// EnumInfo is one emitted enum or constant group.
type EnumInfo struct {
	Name    string       `json:"name"`
	Values  []*ColumnInfo `json:"values"`
}

// FuncInfo is one emitted declared function.
type FuncInfo struct {
	Name       string        `json:"name"`
	Args       []*ColumnInfo `json:"args,omitempty"`
	ReturnType string        `json:"returnType"`
}

// ArgInfo is one procedure argument, with argOrigin describing how a
// shape-expanded argument was derived (spec §4.8: "argOrigin describing
// how shape-expanded args were derived").
type ArgInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ArgOrigin string `json:"argOrigin,omitempty"` // "<bundle> <shape> <col>" for LIKE-expanded args, "" for explicit ones
}

// ProcInfo is one emitted procedure, carrying its dependency sets and
// either a flat statement or a structured DML form.
type ProcInfo struct {
	Name            string     `json:"name"`
	Args            []*ArgInfo `json:"args,omitempty"`
	FromTables      []string   `json:"fromTables,omitempty"`
	InsertTables    []string   `json:"insertTables,omitempty"`
	UpdateTables    []string   `json:"updateTables,omitempty"`
	DeleteTables    []string   `json:"deleteTables,omitempty"`
	UsesProcedures  []string   `json:"usesProcedures,omitempty"`
	UsesViews       []string   `json:"usesViews,omitempty"`
	UsesTables      []string   `json:"usesTables,omitempty"`
	Statement       string     `json:"statement,omitempty"`
	StatementArgs   []string   `json:"statementArgs,omitempty"`
}

// Emitter walks an analyzed registry and produces a Schema. It holds no
// mutable tree state of its own; Emit is safe to call more than once on
// the same registry.
type Emitter struct {
	Registry    *registry.Registry
	Regions     *regionLookup
	TextOf      func(n *ast.Node) (text string, args []string) // sqltext boundary, see internal/sqltext
}

// regionLookup is the minimal region-deployment view the emitter needs;
// it is built by NewRegionLookup from two plain functions (for example a
// RegionGraph's methods), so jsonemit does not import analyzer. No import
// cycle forces this, since analyzer does not depend on jsonemit; it keeps
// the emitters dependency-light.
type regionLookup struct {
	IsDeployable func(name string) bool
	DeployedIn   func(name string) string
}

// NewRegionLookup adapts two plain functions into the shape Emitter
// wants, so a caller backed by internal/analyzer's RegionGraph can wire
// it up without either package importing the other.
func NewRegionLookup(isDeployable func(string) bool, deployedIn func(string) string) *regionLookup {
	return &regionLookup{IsDeployable: isDeployable, DeployedIn: deployedIn}
}

// NewEmitter returns an emitter over reg. textOf, if non-nil, supplies
// the rendered SQL text and referenced variable list for a procedure's
// body (internal/sqltext); with textOf nil, ProcInfo.Statement is left
// empty, useful for tests that only check the dependency-set shape.
func NewEmitter(reg *registry.Registry, regions *regionLookup, textOf func(*ast.Node) (string, []string)) *Emitter {
	return &Emitter{Registry: reg, Regions: regions, TextOf: textOf}
}

// Emit walks the registry's declaration order and classifies every
// object into its Schema bucket.
func (e *Emitter) Emit() *Schema {
	s := &Schema{}
	e.Registry.Tables.Each(func(name string, obj *registry.Object) {
		t := e.table(obj)
		if rec := sem.Of(obj.Node); rec != nil && rec.Type.Has(sem.FlagVirtual) {
			s.VirtualTables = append(s.VirtualTables, t)
			return
		}
		s.Tables = append(s.Tables, t)
	})
	e.Registry.Views.Each(func(name string, obj *registry.Object) {
		s.Views = append(s.Views, e.object(obj))
	})
	e.Registry.Indices.Each(func(name string, obj *registry.Object) {
		s.Indices = append(s.Indices, e.object(obj))
	})
	e.Registry.Triggers.Each(func(name string, obj *registry.Object) {
		s.Triggers = append(s.Triggers, e.object(obj))
	})
	e.Registry.Enums.Each(func(name string, obj *registry.Object) {
		s.Enums = append(s.Enums, e.enum(obj))
	})
	e.Registry.ConstGroups.Each(func(name string, obj *registry.Object) {
		s.ConstantGroups = append(s.ConstantGroups, e.enum(obj))
	})
	e.Registry.Procedures.Each(func(name string, obj *registry.Object) {
		p := e.proc(obj)
		switch obj.Class {
		case registry.ProcQuery:
			s.Queries = append(s.Queries, p)
		case registry.ProcSimpleInsert:
			s.Inserts = append(s.Inserts, p)
		case registry.ProcGeneralInsert:
			s.GeneralInserts = append(s.GeneralInserts, p)
		case registry.ProcUpdate:
			s.Updates = append(s.Updates, p)
		case registry.ProcDelete:
			s.Deletes = append(s.Deletes, p)
		default:
			s.General = append(s.General, p)
		}
	})
	e.Registry.Functions.Each(func(name string, obj *registry.Object) {
		s.DeclareFuncs = append(s.DeclareFuncs, e.function(obj))
	})
	e.Registry.SelectFuncs.Each(func(name string, obj *registry.Object) {
		s.DeclareSelectFuncs = append(s.DeclareSelectFuncs, e.function(obj))
	})
	e.Registry.UncheckedFns.Each(func(name string, obj *registry.Object) {
		s.DeclareProcsNoCheck = append(s.DeclareProcsNoCheck, e.proc(obj))
	})
	e.Registry.AdHocMigrations.Each(func(name string, obj *registry.Object) {
		s.AdHocMigrationProcs = append(s.AdHocMigrationProcs, &ProcInfo{Name: name})
	})
	e.Registry.Regions.Each(func(name string, obj *registry.Object) {
		s.Regions = append(s.Regions, e.region(obj))
	})
	e.Registry.Subscriptions.Each(func(name string, obj *registry.Object) {
		s.Subscriptions = append(s.Subscriptions, name)
	})
	return s
}

func (e *Emitter) table(obj *registry.Object) *TableInfo {
	t := &TableInfo{Name: obj.Name, CRC: e.crcOf(obj)}
	if obj.Struct != nil {
		t.Columns = columnsOf(obj.Struct)
	}
	rec := sem.Of(obj.Node)
	if rec != nil {
		t.Region = rec.Region
		if rec.Table != nil {
			t.TypeHash = rec.Table.TypeHash
			t.Indices = rec.Table.IndexNames
			t.Backed = rec.Table.Backed
			t.BackingTable = rec.Table.BackingTable
		}
	}
	return t
}

func (e *Emitter) object(obj *registry.Object) *ObjectInfo {
	return &ObjectInfo{Name: obj.Name, CRC: e.crcOf(obj)}
}

// crcOf checksums the object's canonical echo so downstream consumers
// detect changes (spec §8: "CRC emitted for a schema object S is ...
// dependent only on the canonical echo of S"). With no text generator
// wired, the name alone feeds the checksum.
func (e *Emitter) crcOf(obj *registry.Object) uint32 {
	b := ast.NewCharBuf()
	if e.TextOf != nil && obj.Node != nil {
		text, _ := e.TextOf(obj.Node)
		b.Printf("%s", text)
	} else {
		b.Printf("%s", obj.Name)
	}
	return b.CRC32()
}

func (e *Emitter) function(obj *registry.Object) *FuncInfo {
	out := &FuncInfo{Name: obj.Name}
	for _, a := range obj.Args {
		out.Args = append(out.Args, &ColumnInfo{
			Name: a.Name, Type: a.Type.Core().String(), IsNotNull: a.Type.Has(sem.FlagNotNull),
		})
	}
	if rec := sem.Of(obj.Node); rec != nil {
		out.ReturnType = rec.Type.Core().String()
	}
	return out
}

func (e *Emitter) region(obj *registry.Object) *RegionInfo {
	out := &RegionInfo{Name: obj.Name}
	if e.Regions != nil {
		if e.Regions.IsDeployable != nil {
			out.IsDeployable = e.Regions.IsDeployable(obj.Name)
		}
		if e.Regions.DeployedIn != nil {
			out.DeployedIn = e.Regions.DeployedIn(obj.Name)
		}
	}
	return out
}

func (e *Emitter) enum(obj *registry.Object) *EnumInfo {
	out := &EnumInfo{Name: obj.Name}
	if obj.Struct != nil {
		out.Values = columnsOf(obj.Struct)
	}
	return out
}

func (e *Emitter) proc(obj *registry.Object) *ProcInfo {
	p := &ProcInfo{Name: obj.Name}
	for _, a := range obj.Args {
		p.Args = append(p.Args, &ArgInfo{Name: a.Name, Type: a.Type.Core().String(), ArgOrigin: a.Origin})
	}
	if d := obj.Deps; d != nil {
		p.FromTables = d.FromTables
		p.InsertTables = d.InsertTables
		p.UpdateTables = d.UpdateTables
		p.DeleteTables = d.DeleteTables
		p.UsesProcedures = d.UsesProcedures
		p.UsesViews = d.UsesViews
		p.UsesTables = d.UsesTables
	}
	if e.TextOf != nil {
		p.Statement, p.StatementArgs = e.TextOf(obj.Node)
	}
	return p
}

func columnsOf(s *sem.Struct) []*ColumnInfo {
	out := make([]*ColumnInfo, 0, len(s.Names))
	for i, name := range s.Names {
		t := s.Types[i]
		kind := ""
		if i < len(s.Kinds) {
			kind = s.Kinds[i]
		}
		out = append(out, &ColumnInfo{
			Name: name, Kind: kind, Type: t.Core().String(), IsNotNull: t.Has(sem.FlagNotNull),
		})
	}
	return out
}

// MarshalIndent renders s the way the JSON emitter's consumers expect:
// stable key order (via struct field order, not map iteration) and
// two-space indentation so the output is diff-friendly across runs.
func MarshalIndent(s *Schema) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
