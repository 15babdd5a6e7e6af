// Package sem holds the semantic record attached to every analyzed AST
// node: a core type code, a 64-bit flag set, and (for shapes and joins)
// the struct/join descriptors that describe the columns visible at that
// point in the tree. internal/analyzer populates these records; the later
// stages (rewrite, jsonemit, queryplan, sqltext) read them, and the
// rewriter also stamps operator records on the nodes it mints.
package sem

import (
	"fmt"

	"sqlfront/internal/ast"
)

// CoreType is the unitary type carried by a semantic record, independent
// of any flags. It occupies the low byte of Type.
type CoreType uint8

const (
	CoreNull CoreType = iota
	CoreBool
	CoreInt32
	CoreInt64
	CoreReal
	CoreText
	CoreBlob
	CoreObject
	CoreStruct
	CoreJoin
	CoreError
	CoreOK
	CorePending
	CoreRegion
	CoreCursorFormal

	coreMax
)

func (c CoreType) String() string {
	names := [...]string{
		"null", "bool", "int32", "int64", "real", "text", "blob", "object",
		"struct", "join", "error", "ok", "pending", "region", "cursor-formal",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("coretype(%d)", c)
}

// Flag is one bit of the 64-bit flag set that rides alongside a CoreType
// inside Type. Names and bit positions follow the original implementation's
// SEM_TYPE_* constants so that a reader already familiar with that layout
// recognizes these immediately.
type Flag uint64

const (
	FlagNotNull Flag = 1 << (iota + 8)
	FlagHasDefault
	FlagAutoIncrement
	FlagVariable
	FlagInParameter
	FlagOutParameter
	FlagDMLProc
	FlagHasShapeStorage
	FlagCreateFunc
	FlagSelectFunc
	FlagDeleted
	FlagValidated
	FlagUsesOut
	FlagUsesOutUnion
	FlagPK
	FlagFK
	FlagUK
	FlagValueCursor
	FlagSensitive
	FlagDeployable
	FlagBoxed
	FlagHasCheck
	FlagHasCollate
	FlagInferredNotNull
	FlagVirtual
	FlagHiddenColumn
	FlagTVF
	FlagImplicit
	FlagCallsOutUnion
	FlagAlias
	FlagInitRequired
	FlagInitComplete
	FlagInlineCall
	FlagSerialize
	FlagHasRow
	FlagFetchInto
	FlagWasSet
	FlagBacking
	FlagBacked
	FlagPartialPK
	FlagQID
	FlagConstant
)

// coreMask isolates the CoreType from the flag bits packed above it.
const coreMask = 0xff

// Type is a core type plus a flag set, stored together the way the
// original compiler packs them into one 64-bit word: the low byte is the
// CoreType, the remaining bits are Flag values.
type Type uint64

// NewType builds a Type from a core type with no flags set.
func NewType(c CoreType) Type { return Type(c) }

// Core extracts the CoreType component.
func (t Type) Core() CoreType { return CoreType(t & coreMask) }

// WithFlag returns t with f set.
func (t Type) WithFlag(f Flag) Type { return t | Type(f) }

// WithoutFlag returns t with f cleared.
func (t Type) WithoutFlag(f Flag) Type { return t &^ Type(f) }

// Has reports whether f is set on t.
func (t Type) Has(f Flag) bool { return t&Type(f) != 0 }

// WithCore returns t with its core type replaced by c, flags untouched.
func (t Type) WithCore(c CoreType) Type { return (t &^ coreMask) | Type(c) }

func (t Type) String() string {
	return fmt.Sprintf("%s%s", t.Core(), flagSuffix(t))
}

func flagSuffix(t Type) string {
	names := map[Flag]string{
		FlagNotNull: "notnull", FlagHasDefault: "has_default",
		FlagAutoIncrement: "autoinc", FlagVariable: "variable",
		FlagInParameter: "in", FlagOutParameter: "out",
		FlagDMLProc: "dml_proc", FlagHasShapeStorage: "shape_storage",
		FlagCreateFunc: "create_func", FlagSelectFunc: "select_func",
		FlagDeleted: "deleted", FlagValidated: "validated",
		FlagUsesOut: "uses_out", FlagUsesOutUnion: "uses_out_union",
		FlagPK: "pk", FlagFK: "fk", FlagUK: "uk",
		FlagValueCursor: "value_cursor", FlagSensitive: "sensitive",
		FlagDeployable: "deployable", FlagBoxed: "boxed",
		FlagHasCheck: "has_check", FlagHasCollate: "has_collate",
		FlagInferredNotNull: "inferred_notnull", FlagVirtual: "virtual",
		FlagHiddenColumn: "hidden_col", FlagTVF: "tvf",
		FlagImplicit: "implicit", FlagCallsOutUnion: "calls_out_union",
		FlagAlias: "alias", FlagInitRequired: "init_required",
		FlagInitComplete: "init_complete", FlagInlineCall: "inline_call",
		FlagSerialize: "serialize", FlagHasRow: "has_row",
		FlagFetchInto: "fetch_into", FlagWasSet: "was_set",
		FlagBacking: "backing", FlagBacked: "backed",
		FlagPartialPK: "partial_pk", FlagQID: "qid",
		FlagConstant: "constant",
	}
	out := ""
	for f := Flag(1 << 8); f != 0 && f < (1 << 63); f <<= 1 {
		if t.Has(f) {
			if n, ok := names[f]; ok {
				out += " " + n
			}
		}
	}
	return out
}

// Struct describes the column list of a shape: a table, view, cursor,
// proc result, proc arg bundle, or named type usable as the right
// operand of LIKE.
type Struct struct {
	Name     string
	Names    []string
	Kinds    []string // the "Foo" in object<Foo>; empty if none
	Types    []Type
	IsBacked bool
}

// IndexOf returns the ordinal of name within s, or -1.
func (s *Struct) IndexOf(name string) int {
	for i, n := range s.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Count reports the number of fields in s.
func (s *Struct) Count() int { return len(s.Names) }

// Join describes the type of (part of) a FROM clause: an ordered list of
// table/view names each paired with its Struct.
type Join struct {
	Names   []string
	Structs []*Struct
}

// IndexOf returns the ordinal of name within j, or -1.
func (j *Join) IndexOf(name string) int {
	for i, n := range j.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// TableInfo carries the extra bookkeeping tables (but not views) need:
// precomputed key/not-null/value column indices, a type hash used to
// discriminate rows of different backed tables sharing one backing
// table, and the indices defined on it.
type TableInfo struct {
	TypeHash     int64
	KeyCols      []int
	NotNullCols  []int
	ValueCols    []int
	IndexNames   []string

	// Backed and BackingTable record a declare_backed_by_stmt binding
	// (spec §3.1 backed variant, §4.7.4): Backed is true for the logical
	// table whose rows live in BackingTable's generic (k blob, v blob)
	// storage.
	Backed       bool
	BackingTable string
}

// Record is the semantic payload attached to an ast.Node via its Sem
// field. Only the fields relevant to the node's kind are populated; the
// rest are left at their zero values.
type Record struct {
	Type Type

	Name         string // for named expressions: select-list aliases, etc.
	Kind         string // the "Foo" in object<Foo>, not a variable/column name
	Error        string // diagnostic text, set only when Type.Core() == CoreError
	BackedTable  string // name of the backing table, if this is a backed column

	Struct *Struct // non-nil iff Type.Core() == CoreStruct
	Join   *Join   // non-nil iff Type.Core() == CoreJoin

	CreateVersion int32
	DeleteVersion int32
	Unsubscribed  bool
	Recreate      bool
	RecreateGroup string
	Region        string

	Table *TableInfo // non-nil only for CREATE TABLE nodes
}

// IsError reports whether r represents a failed analysis. ast.IsError
// type-asserts for exactly this method, so its signature must not change
// without updating internal/ast/predicates.go.
func (r *Record) IsError() bool {
	return r != nil && r.Type.Core() == CoreError
}

// ErrorRecord builds a Record marking a node as unanalyzable, carrying msg
// for diagnostic output.
func ErrorRecord(msg string) *Record {
	return &Record{Type: NewType(CoreError), Error: msg}
}

// OKRecord is the sentinel record for statements that analyze successfully
// but carry no type information of their own (e.g. most DDL).
func OKRecord() *Record {
	return &Record{Type: NewType(CoreOK)}
}

// Attach stores r on n.Sem. It exists alongside Of purely for symmetry;
// most callers just write n.Sem = rec directly.
func Attach(n *ast.Node, r *Record) {
	n.Sem = r
}

// Of returns n's attached Record, or nil if n is nil or carries no Record
// (or something else entirely, which should not happen past analysis).
func Of(n *ast.Node) *Record {
	if n == nil || n.Sem == nil {
		return nil
	}
	if r, ok := n.Sem.(*Record); ok {
		return r
	}
	return nil
}
