package resolve_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/resolve"
	"sqlfront/internal/sem"
)

func TestResolveLocalWinsOverGlobal(t *testing.T) {
	scope := &resolve.Scope{
		Locals:  map[string]sem.Type{"x": sem.NewType(sem.CoreInt32)},
		Globals: map[string]sem.Type{"x": sem.NewType(sem.CoreText)},
	}
	r := resolve.Resolve("x", scope)
	require.Equal(t, resolve.Stop, r.Verdict)
	require.NoError(t, r.Err)
	require.Equal(t, sem.CoreInt32, r.Type.Core())
}

func TestResolveFallsThroughToGlobal(t *testing.T) {
	scope := &resolve.Scope{
		Globals: map[string]sem.Type{"g": sem.NewType(sem.CoreReal)},
	}
	r := resolve.Resolve("g", scope)
	require.Equal(t, resolve.Stop, r.Verdict)
	require.Equal(t, sem.CoreReal, r.Type.Core())
}

func TestResolveUnknownNameIsError(t *testing.T) {
	r := resolve.Resolve("nope", &resolve.Scope{})
	require.Equal(t, resolve.Stop, r.Verdict)
	require.Error(t, r.Err)
}

func TestResolveFromColumnAmbiguous(t *testing.T) {
	users := &sem.Struct{Names: []string{"id"}, Types: []sem.Type{sem.NewType(sem.CoreInt64)}}
	orders := &sem.Struct{Names: []string{"id"}, Types: []sem.Type{sem.NewType(sem.CoreInt64)}}
	scope := &resolve.Scope{
		FromJoin: &sem.Join{Names: []string{"users", "orders"}, Structs: []*sem.Struct{users, orders}},
	}
	r := resolve.Resolve("id", scope)
	require.Error(t, r.Err)
}

func TestResolveFromColumnUnambiguous(t *testing.T) {
	users := &sem.Struct{Names: []string{"id", "name"}, Types: []sem.Type{sem.NewType(sem.CoreInt64), sem.NewType(sem.CoreText)}}
	scope := &resolve.Scope{
		FromJoin: &sem.Join{Names: []string{"users"}, Structs: []*sem.Struct{users}},
	}
	r := resolve.Resolve("name", scope)
	require.NoError(t, r.Err)
	require.Equal(t, sem.CoreText, r.Type.Core())
}

func TestResolveDottedColumnThenEnumThenBundle(t *testing.T) {
	users := &sem.Struct{Names: []string{"id"}, Types: []sem.Type{sem.NewType(sem.CoreInt64)}}
	scope := &resolve.Scope{
		FromJoin: &sem.Join{Names: []string{"u"}, Structs: []*sem.Struct{users}},
		Enums: map[string]*sem.Struct{
			"color": {Names: []string{"red"}, Types: []sem.Type{sem.NewType(sem.CoreInt64)}},
		},
		ArgBundles: map[string]*sem.Struct{
			"args": {Names: []string{"limit"}, Types: []sem.Type{sem.NewType(sem.CoreInt32)}},
		},
	}

	kind, _, err := resolve.ResolveDotted("u", "id", scope)
	require.NoError(t, err)
	require.Equal(t, resolve.DottedColumn, kind)

	kind, _, err = resolve.ResolveDotted("color", "red", scope)
	require.NoError(t, err)
	require.Equal(t, resolve.DottedEnumMember, kind)

	kind, _, err = resolve.ResolveDotted("args", "limit", scope)
	require.NoError(t, err)
	require.Equal(t, resolve.DottedArgBundleField, kind)

	kind, _, err = resolve.ResolveDotted("thing", "method", scope)
	require.NoError(t, err)
	require.Equal(t, resolve.DottedMethodCall, kind)
}

func TestResolveRegionOnlyInRegionListContext(t *testing.T) {
	scope := &resolve.Scope{Regions: map[string]struct{}{"r1": {}}}
	r := resolve.Resolve("r1", scope)
	require.Error(t, r.Err, "region names are not visible outside a region-list context")

	scope.InRegionList = true
	r = resolve.Resolve("r1", scope)
	require.NoError(t, r.Err)
	require.Equal(t, sem.CoreRegion, r.Type.Core())
}
