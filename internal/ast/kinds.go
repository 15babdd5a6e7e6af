package ast

// Kind constants. Every tag a handler in internal/analyzer or
// internal/rewrite switches on is interned here exactly once; the grouping
// mirrors the original ast.h layout (schema DDL, procedural control flow,
// cursors, expressions, shape sugar) but the name and arity are chosen for
// this Go port rather than transliterated byte-for-byte from the C macros.

// Top-level list and program structure.
var (
	KindStmtList  = Intern("stmt_list", Arity2)  // left: stmt, right: stmt_list tail
	KindNameList  = Intern("name_list", Arity2)  // left: name (str), right: tail
	KindExprList  = Intern("expr_list", Arity2)  // left: expr, right: tail
	KindArgList   = Intern("arg_list", Arity2)   // left: arg expr, right: tail
	KindTypedName = Intern("typed_name", Arity2) // left: name str, right: type node
)

// Schema object declarations.
var (
	KindCreateTable  = Intern("create_table_stmt", Arity2)  // left: name str, right: col_def_list
	KindColDefList   = Intern("col_def_list", Arity2)       // left: col_def, right: tail
	KindColDef       = Intern("col_def", Arity2)             // left: name str, right: col_attrs
	KindColAttrs     = Intern("col_attrs", Arity2)           // left: type node, right: str leaf of space-separated flag tokens
	KindCreateView   = Intern("create_view_stmt", Arity2)    // left: name str, right: select stmt
	KindCreateIndex  = Intern("create_index_stmt", Arity2)   // left: name str, right: index_on
	KindIndexOn      = Intern("index_on", Arity2)            // left: table name str, right: name_list of columns
	KindCreateTrig   = Intern("create_trigger_stmt", Arity2) // left: name str, right: trigger_body
	KindTrigBody     = Intern("trigger_body", Arity2)        // left: table name str, right: stmt_list
	KindDeclareEnum  = Intern("declare_enum_stmt", Arity2)   // left: name str, right: enum_values
	KindEnumValues   = Intern("enum_values", Arity2)         // left: typed_name, right: tail
	KindDeclareConst = Intern("declare_const_group_stmt", Arity2)
	KindConstValues  = Intern("const_values", Arity2)
	KindRegionStmt   = Intern("declare_region_stmt", Arity2) // left: name str, right: using list (region_spec chain)
	KindRegionDeploy = Intern("declare_deployable_region_stmt", Arity1)
	KindRegionSpec   = Intern("region_spec", Arity2)       // left: parent name str, right: non-nil marks private
	KindBeginRegion  = Intern("begin_schema_region_stmt", Arity1) // left: region name str
	KindEndRegion    = Intern("end_schema_region_stmt", Arity0)
	KindNamedType    = Intern("declare_named_type_stmt", Arity2)
	KindSchemaVers   = Intern("schema_annotation", Arity2) // left: directive str (create/delete/recreate/unsub/ad_hoc), right: arg_list (target name first, then version args)
	KindBackedByAttr = Intern("declare_backed_by_stmt", Arity2) // left: backed table name str, right: backing table name str
)

// Procedures, functions, arg bundles.
var (
	KindCreateProc     = Intern("create_proc_stmt", Arity2) // left: name str, right: proc_params_and_body
	KindProcParamsBody = Intern("proc_params_and_body", Arity2)
	KindParamList      = Intern("param_list", Arity2) // left: param, right: tail
	KindParam          = Intern("param", Arity2)      // left: name str, right: type node (or LIKE-shape ref)
	KindArgBundle      = Intern("arg_bundle", Arity1)  // left: shape name str
	KindDeclareFunc    = Intern("declare_func_stmt", Arity2)
	KindDeclareSelFunc = Intern("declare_select_func_stmt", Arity2)
	KindCallStmt       = Intern("call_stmt", Arity2) // left: name str, right: arg_list
	KindCallExpr       = Intern("call_expr", Arity2)
)

// Cursors and result production.
var (
	KindDeclareCursor   = Intern("declare_cursor_stmt", Arity2)       // left: name str, right: source (select/call/like)
	KindDeclareCursorLk = Intern("declare_cursor_like_stmt", Arity2)  // left: name str, right: shape ref
	KindFetchStmt       = Intern("fetch_stmt", Arity2)                // left: cursor name str, right: into name_list (optional)
	KindFetchCallStmt   = Intern("fetch_values_stmt", Arity2)
	KindCloseStmt       = Intern("close_stmt", Arity1) // left: cursor name str
	KindOutStmt         = Intern("out_stmt", Arity1)   // left: cursor name str
	KindOutUnionStmt    = Intern("out_union_stmt", Arity1)
	KindOutUnionParent  = Intern("out_union_parent_child_stmt", Arity2) // left: parent call, right: child join list
	KindChildCallList   = Intern("child_call_list", Arity2)
	KindChildCall       = Intern("child_call", Arity2) // left: call_expr, right: using name_list
)

// Procedural control flow.
var (
	KindIfStmt      = Intern("if_stmt", Arity2) // left: cond, right: then/else chain (elseif_list, else)
	KindElseIfList  = Intern("elseif_list", Arity2)
	KindElseStmt    = Intern("else_stmt", Arity1)
	KindWhileStmt   = Intern("while_stmt", Arity2)
	KindLoopStmt    = Intern("loop_stmt", Arity2)
	KindTryStmt     = Intern("try_stmt", Arity2) // left: try body, right: catch body (nil if none)
	KindLeaveStmt   = Intern("leave_stmt", Arity0)
	KindContinueSt  = Intern("continue_stmt", Arity0)
	KindReturnStmt  = Intern("return_stmt", Arity0)
	KindThrowStmt   = Intern("throw_stmt", Arity0)
	KindDeclareVar  = Intern("declare_vars_stmt", Arity2) // left: name str, right: col_attrs type node
	KindLetStmt     = Intern("let_stmt", Arity2) // left: name str, right: expr
	KindSetStmt     = Intern("set_stmt", Arity2) // left: target name str, right: expr
	KindCompoundAsn = Intern("compound_assign_stmt", Arity2)
	KindGuardStmt   = Intern("guard_stmt", Arity2) // sugar: IF expr stmt -> rewritten to if_stmt
)

// Expressions.
var (
	KindBinaryExpr  = Intern("binary_expr", Arity2) // Sem carries operator text
	KindUnaryExpr   = Intern("unary_expr", Arity1)
	KindNameExpr    = Intern("name_expr", Arity1) // left: identifier str leaf
	KindDotExpr     = Intern("dot_expr", Arity2)  // left: qualifier expr, right: member name str
	KindIifExpr     = Intern("iif_expr", Arity2)  // sugar, left: cond, right: (then,else) pair
	KindCaseExpr    = Intern("case_expr", Arity2)
	KindWhenList    = Intern("when_list", Arity2)
	KindCastExpr    = Intern("cast_expr", Arity2)
	KindPrintfCall  = Intern("printf_call", Arity2) // left: fmt expr, right: expr_list
	KindReverseAply = Intern("reverse_apply_expr", Arity2)  // x:f(args) sugar
	KindPolyReverse = Intern("reverse_apply_poly_expr", Arity2)
	KindIsExpr      = Intern("is_expr", Arity2)
	KindIsNotExpr   = Intern("is_not_expr", Arity2)
	KindArrayGet    = Intern("array_get_expr", Arity2)
	KindArraySet    = Intern("array_set_expr", Arity2)
)

// FROM-clause / select shape.
var (
	KindSelectStmt = Intern("select_stmt", Arity2) // left: select_core, right: compound tail
	KindSelectCore = Intern("select_core", Arity2) // left: select_list, right: from_etc
	KindFromEtc    = Intern("from_etc", Arity2)    // left: join_clause, right: where/groupby/etc chain
	KindJoinClause = Intern("join_clause", Arity2) // left: table_or_subquery, right: join tail
	KindLikeShape  = Intern("like_shape_expr", Arity1)  // LIKE T sugar, left: shape name str
	KindFromShape  = Intern("from_shape_expr", Arity2)  // FROM shape sugar
	KindColumnsMac = Intern("columns_macro_expr", Arity2) // @COLUMNS(...) sugar
	KindWithClause = Intern("with_clause", Arity2)        // left: cte_binding_list, right: select/insert/update/delete/upsert stmt
	KindCteBinding = Intern("cte_binding", Arity2)        // left: name str, right: select
	KindCteList    = Intern("cte_binding_list", Arity2)
)

// DML.
var (
	KindInsertStmt = Intern("insert_stmt", Arity2)
	KindUpdateStmt = Intern("update_stmt", Arity2)
	KindDeleteStmt = Intern("delete_stmt", Arity2)
	KindUpsertStmt = Intern("upsert_stmt", Arity2)
	KindUpdateBody = Intern("update_body", Arity2) // left: set assignments (expr_list), right: rowid-scoped where
)

// Macro nodes (component D).
var (
	KindMacroDef    = Intern("macro_def", Arity2) // left: name+formals, right: body
	KindMacroFormal = Intern("macro_formal_list", Arity2)
	KindMacroRef    = Intern("macro_ref", Arity2)    // left: name str, right: arg_list
	KindMacroArgRef = Intern("macro_arg_ref", Arity1) // left: formal name str
)

// Leaf kinds.
var (
	KindIntLit  = Intern("int_literal", ArityLeaf)
	KindNumLit  = Intern("num_literal", ArityLeaf)
	KindStrLit  = Intern("str_literal", ArityLeaf)
	KindBlobLit = Intern("blob_literal", ArityLeaf)
	KindNullLit = Intern("null_literal", Arity0)
)
