// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
	"sqlfront/internal/bootstrap"
	"sqlfront/internal/jsonemit"
	"sqlfront/internal/macro"
	"sqlfront/internal/queryplan"
	"sqlfront/internal/registry"
	"sqlfront/internal/rewrite"
	"sqlfront/internal/sem"
	"sqlfront/internal/sqltext"
)

type compileFlags struct {
	outFile string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sqlfront",
		Short: "CQL-style schema compiler front end",
	}

	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(queryPlanCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func compileCmd() *cobra.Command {
	flags := &compileFlags{}
	cmd := &cobra.Command{
		Use:   "compile <schema.sql>",
		Short: "Parse, analyze and emit the JSON schema description for a SQL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCompile(args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.outFile, "output", "o", "", "Output file for the emitted JSON")
	return cmd
}

func runCompile(path string, flags *compileFlags) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	arena := ast.NewArena()
	stmtList, err := bootstrap.NewParser(arena, path).Parse(string(content))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	az := analyzer.New(arena)
	az.Rewrite = rewrite.New(arena)
	expander := macro.New(arena)
	az.AnalyzeProgramWithMacros(expander, stmtList)

	textOf := func(n *ast.Node) (string, []string) {
		return sqltext.New(sqltext.ModeSQL, sqltext.Callbacks{Variable: func(*ast.Node) {}}).Render(n)
	}
	regions := jsonemit.NewRegionLookup(az.Regions.IsDeployable, az.Regions.DeployedInRegion)
	emitter := jsonemit.NewEmitter(az.Registry, regions, textOf)
	schema := emitter.Emit()

	out, err := jsonemit.MarshalIndent(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return writeOutput(string(out), flags.outFile)
}

func queryPlanCmd() *cobra.Command {
	flags := &compileFlags{}
	cmd := &cobra.Command{
		Use:   "queryplan <schema.sql>",
		Short: "Synthesize a plan-capture program for every DML statement in a SQL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runQueryPlan(args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.outFile, "output", "o", "", "Output file for the synthesized program")
	return cmd
}

func runQueryPlan(path string, flags *compileFlags) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	arena := ast.NewArena()
	stmtList, err := bootstrap.NewParser(arena, path).Parse(string(content))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	az := analyzer.New(arena)
	rw := rewrite.New(arena)
	az.Rewrite = rw
	expander := macro.New(arena)
	az.AnalyzeProgramWithMacros(expander, stmtList)

	rewritten := ast.BuildList(arena, ast.KindStmtList, ast.Location{Filename: path}, rewriteTopLevel(az, rw, stmtList))

	textOf := func(n *ast.Node) (string, []string) {
		return sqltext.New(sqltext.ModeSQL, sqltext.Callbacks{Variable: func(*ast.Node) {}}).Render(n)
	}
	program := queryplan.CollectStatements(rewritten, textOf)
	az.Registry.SelectFuncs.Each(func(name string, obj *registry.Object) {
		ret := "TEXT"
		if rec := sem.Of(obj.Node); rec != nil {
			ret = strings.ToUpper(rec.Type.Core().String())
		}
		program.AddSelectFunctionStub(name, ret)
	})
	return writeOutput(program.Render(), flags.outFile)
}

// rewriteTopLevel re-runs the same rewrite-until-fixpoint loop
// analyzer.analyzeOne drives internally, but keeps the rewritten form
// instead of discarding it, so a top-level statement that the rewriter
// restructures (a backed-table SELECT wrapped in a WITH clause, an
// out-union parent-child expansion) is what the query-plan emitter
// actually walks.
func rewriteTopLevel(az *analyzer.Analyzer, rw *rewrite.Rewriter, stmtList *ast.Node) []*ast.Node {
	var out []*ast.Node
	for _, stmt := range ast.ListElements(stmtList, ast.KindStmtList) {
		cur := stmt
		for {
			next, changed := rw.Rewrite(az, cur)
			if !changed {
				break
			}
			cur = next
		}
		out = append(out, cur)
	}
	return out
}

func writeOutput(content, outFile string) error {
	if outFile == "" {
		fmt.Println(strings.TrimRight(content, "\n"))
		return nil
	}
	if err := os.WriteFile(outFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Printf("output saved to %s\n", outFile)
	return nil
}
