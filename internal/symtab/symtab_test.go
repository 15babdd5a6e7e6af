package symtab_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/symtab"
)

func TestAddIfAbsentPreservesFirstDeclaration(t *testing.T) {
	st := symtab.New[int]()
	require.True(t, st.AddIfAbsent("a", 1))
	require.False(t, st.AddIfAbsent("a", 2))
	v, ok := st.Find("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestInsertionOrderPreserved(t *testing.T) {
	st := symtab.New[int]()
	st.AddIfAbsent("z", 1)
	st.AddIfAbsent("a", 2)
	st.AddIfAbsent("m", 3)
	require.Equal(t, []string{"z", "a", "m"}, st.Keys())
}

func TestDeleteCompactsAndKeepsOrder(t *testing.T) {
	st := symtab.New[int]()
	st.AddIfAbsent("a", 1)
	st.AddIfAbsent("b", 2)
	st.AddIfAbsent("c", 3)
	require.True(t, st.Delete("b"))
	require.Equal(t, []string{"a", "c"}, st.Keys())
	require.False(t, st.Has("b"))
}

func TestSortedCopyIsLexicographic(t *testing.T) {
	st := symtab.New[int]()
	st.AddIfAbsent("banana", 2)
	st.AddIfAbsent("apple", 1)
	st.AddIfAbsent("cherry", 3)
	sorted := st.SortedCopy(func(a, b string) bool { return a < b })
	require.Equal(t, []string{"apple", "banana", "cherry"}, []string{sorted[0].Key, sorted[1].Key, sorted[2].Key})
}

func TestCharBufTableEnsure(t *testing.T) {
	c := symtab.NewCharBufTable()
	c.Ensure("users", "used by proc_a")
	c.Ensure("users", "used by proc_b")
	c.Ensure("orders", "used by proc_c")
	require.Equal(t, []string{"used by proc_a", "used by proc_b"}, c.Lines("users"))
	require.Equal(t, []string{"users", "orders"}, c.Keys())
}
