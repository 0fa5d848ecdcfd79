package functions

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/rbac"
)

func ptr(id int64) *int64 { return &id }

var (
	permP1 = rbac.Permission{ID: 1, AppLabel: "blasbase", Codename: "p1"}
	permP2 = rbac.Permission{ID: 2, AppLabel: "blasbase", Codename: "p2"}
	permP3 = rbac.Permission{ID: 3, AppLabel: "blasbase", Codename: "p3"}
)

// orchestra
// ├── board (p1, p2)
// │   └── treasurer (p3)
// └── members (membership)
//
//	└── trumpets
func sampleFunctions() []Function {
	return []Function{
		{ID: 1, Name: "Orchestra"},
		{ID: 2, ParentID: ptr(1), Name: "Board", Permissions: []rbac.Permission{permP1, permP2}},
		{ID: 3, ParentID: ptr(2), Name: "Treasurer", Permissions: []rbac.Permission{permP3}},
		{ID: 4, ParentID: ptr(1), Name: "Members", Membership: true},
		{ID: 5, ParentID: ptr(4), Name: "Trumpets", Engagement: true},
	}
}

func TestTreeNavigation(t *testing.T) {
	tree := NewTree(sampleFunctions())

	require.Equal(t, 5, tree.Len())
	roots := tree.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "Orchestra", roots[0].Name)

	parent, ok := tree.Parent(3)
	require.True(t, ok)
	assert.Equal(t, int64(2), parent.ID)
	_, ok = tree.Parent(1)
	assert.False(t, ok)

	assert.Equal(t, []int64{1, 2, 3}, ids(tree.Ancestors(3, true)))
	assert.Equal(t, []int64{1, 2}, ids(tree.Ancestors(3, false)))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(tree.Descendants(1, true)))
	assert.Equal(t, []int64{5}, ids(tree.Descendants(4, false)))
	assert.Nil(t, tree.Descendants(99, true))

	assert.True(t, tree.IsDescendant(5, 1))
	assert.True(t, tree.IsDescendant(4, 4))
	assert.False(t, tree.IsDescendant(1, 4))

	child, ok := tree.ChildNamed(ptr(1), "Members")
	require.True(t, ok)
	assert.Equal(t, int64(4), child.ID)
	_, ok = tree.ChildNamed(nil, "Board")
	assert.False(t, ok)

	assert.True(t, tree.IsMembership(4))
	assert.False(t, tree.IsMembership(5))
	assert.True(t, tree.IsEngagement(5))
}

func TestInheritedPermissionsAreMonotonic(t *testing.T) {
	tree := NewTree(sampleFunctions())

	tree.Walk(func(f Function, _ int) {
		parent, ok := tree.Parent(f.ID)
		if !ok {
			return
		}
		childSet := tree.InheritedPermissions(f.ID)
		for key := range tree.InheritedPermissions(parent.ID) {
			assert.True(t, childSet.Has(key), "%s missing %s", f.Name, key)
		}
	})

	assert.Equal(t, []string{"blasbase.p1", "blasbase.p2", "blasbase.p3"}, tree.InheritedPermissions(3).Keys())
	assert.Equal(t, []string{"blasbase.p1", "blasbase.p2"}, tree.InheritedPermissions(2).Keys())
	assert.Equal(t, 0, tree.InheritedPermissions(5).Len())
	assert.Equal(t, 0, tree.InheritedPermissions(42).Len())
}

func TestTreeIndependentOfInputOrder(t *testing.T) {
	want := NewTree(sampleFunctions())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		fns := sampleFunctions()
		rng.Shuffle(len(fns), func(a, b int) { fns[a], fns[b] = fns[b], fns[a] })
		got := NewTree(fns)

		assert.Equal(t, ids(want.Descendants(1, true)), ids(got.Descendants(1, true)))
		for _, f := range fns {
			assert.Equal(t, want.InheritedPermissions(f.ID).Keys(), got.InheritedPermissions(f.ID).Keys())
		}
	}
}

func TestChildrenUseSwedishCollation(t *testing.T) {
	tree := NewTree([]Function{
		{ID: 1, Name: "Sektioner"},
		{ID: 2, ParentID: ptr(1), Name: "Östra"},
		{ID: 3, ParentID: ptr(1), Name: "Ålderspresident"},
		{ID: 4, ParentID: ptr(1), Name: "Zon"},
		{ID: 5, ParentID: ptr(1), Name: "Arkiv"},
		{ID: 6, ParentID: ptr(1), Name: "Ärende"},
	})

	names := make([]string, 0)
	for _, c := range tree.Children(1) {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Arkiv", "Zon", "Ålderspresident", "Ärende", "Östra"}, names)
}

func TestTreeToleratesOrphansAndLoops(t *testing.T) {
	tree := NewTree([]Function{
		{ID: 1, Name: "Root"},
		{ID: 2, ParentID: ptr(99), Name: "Orphan", Permissions: []rbac.Permission{permP1}},
		{ID: 3, ParentID: ptr(4), Name: "A"},
		{ID: 4, ParentID: ptr(3), Name: "B", Permissions: []rbac.Permission{permP2}},
	})

	assert.Equal(t, []int64{2, 1}, ids(tree.Roots()))
	assert.Equal(t, []string{"blasbase.p1"}, tree.InheritedPermissions(2).Keys())
	assert.Equal(t, []string{"blasbase.p2"}, tree.InheritedPermissions(3).Keys())
	assert.Len(t, tree.Ancestors(3, true), 2)
}

func ids(fns []Function) []int64 {
	out := make([]int64, 0, len(fns))
	for _, f := range fns {
		out = append(out, f.ID)
	}
	return out
}
