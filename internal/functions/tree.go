package functions

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/blasbase/blasbase/internal/rbac"
)

const rootKey int64 = 0

// Tree is an immutable snapshot of the role hierarchy.
// Functions whose parent is absent from the snapshot are treated as roots.
type Tree struct {
	nodes    map[int64]Function
	children map[int64][]int64
}

// NewTree builds a snapshot from fns in any order.
func NewTree(fns []Function) *Tree {
	t := &Tree{
		nodes:    make(map[int64]Function, len(fns)),
		children: make(map[int64][]int64),
	}
	for _, f := range fns {
		t.nodes[f.ID] = f
	}
	for _, f := range fns {
		parent := rootKey
		if f.ParentID != nil {
			if _, ok := t.nodes[*f.ParentID]; ok && *f.ParentID != f.ID {
				parent = *f.ParentID
			}
		}
		t.children[parent] = append(t.children[parent], f.ID)
	}
	// collate.Collator is not safe for concurrent use; one per build.
	col := collate.New(language.Swedish)
	for parent := range t.children {
		ids := t.children[parent]
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := t.nodes[ids[i]], t.nodes[ids[j]]
			if c := col.CompareString(a.Name, b.Name); c != 0 {
				return c < 0
			}
			return a.ID < b.ID
		})
	}
	return t
}

// Len returns the number of functions.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Get returns the function with id.
func (t *Tree) Get(id int64) (Function, bool) {
	f, ok := t.nodes[id]
	return f, ok
}

// Parent returns the parent of id. Roots have none.
func (t *Tree) Parent(id int64) (Function, bool) {
	f, ok := t.nodes[id]
	if !ok || f.ParentID == nil || *f.ParentID == f.ID {
		return Function{}, false
	}
	return t.Get(*f.ParentID)
}

// Roots returns top-level functions ordered by name.
func (t *Tree) Roots() []Function {
	return t.collect(t.children[rootKey])
}

// Children returns the direct children of id ordered by name.
func (t *Tree) Children(id int64) []Function {
	if _, ok := t.nodes[id]; !ok {
		return nil
	}
	return t.collect(t.children[id])
}

// Ancestors returns the chain from the root down to id.
func (t *Tree) Ancestors(id int64, includeSelf bool) []Function {
	chain := t.upwards(id)
	if len(chain) == 0 {
		return nil
	}
	if !includeSelf {
		chain = chain[1:]
	}
	out := make([]Function, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, t.nodes[chain[i]])
	}
	return out
}

// Descendants returns id's subtree in pre-order, children ordered by name.
func (t *Tree) Descendants(id int64, includeSelf bool) []Function {
	ids := t.DescendantIDs(id, includeSelf)
	if ids == nil {
		return nil
	}
	return t.collect(ids)
}

// DescendantIDs is Descendants without materialising the functions.
func (t *Tree) DescendantIDs(id int64, includeSelf bool) []int64 {
	if _, ok := t.nodes[id]; !ok {
		return nil
	}
	var out []int64
	visited := make(map[int64]struct{})
	var walk func(int64)
	walk = func(n int64) {
		if _, seen := visited[n]; seen {
			return
		}
		visited[n] = struct{}{}
		out = append(out, n)
		for _, c := range t.children[n] {
			walk(c)
		}
	}
	walk(id)
	if !includeSelf {
		out = out[1:]
	}
	return out
}

// IsDescendant reports whether id lies in the subtree rooted at of, of included.
func (t *Tree) IsDescendant(id, of int64) bool {
	for _, a := range t.upwards(id) {
		if a == of {
			return true
		}
	}
	return false
}

// InheritedPermissions unions the permissions of id and every ancestor.
func (t *Tree) InheritedPermissions(id int64) rbac.Set {
	set := rbac.NewSet()
	for _, a := range t.upwards(id) {
		for _, p := range t.nodes[a].Permissions {
			set.Add(p)
		}
	}
	return set
}

// ChildNamed finds the child of parent called name. A nil parent searches roots.
func (t *Tree) ChildNamed(parent *int64, name string) (Function, bool) {
	key := rootKey
	if parent != nil {
		key = *parent
	}
	for _, id := range t.children[key] {
		if t.nodes[id].Name == name {
			return t.nodes[id], true
		}
	}
	return Function{}, false
}

// IsMembership reports whether id is flagged as a membership role.
func (t *Tree) IsMembership(id int64) bool {
	return t.nodes[id].Membership
}

// IsEngagement reports whether id is flagged as an engagement role.
func (t *Tree) IsEngagement(id int64) bool {
	return t.nodes[id].Engagement
}

// Walk visits every function in pre-order with its depth.
func (t *Tree) Walk(fn func(f Function, depth int)) {
	visited := make(map[int64]struct{}, len(t.nodes))
	var walk func(id int64, depth int)
	walk = func(id int64, depth int) {
		if _, seen := visited[id]; seen {
			return
		}
		visited[id] = struct{}{}
		fn(t.nodes[id], depth)
		for _, c := range t.children[id] {
			walk(c, depth+1)
		}
	}
	for _, r := range t.children[rootKey] {
		walk(r, 0)
	}
}

// upwards returns id followed by its ancestors up to the root.
func (t *Tree) upwards(id int64) []int64 {
	var chain []int64
	visited := make(map[int64]struct{})
	cur, ok := t.nodes[id]
	for ok {
		if _, seen := visited[cur.ID]; seen {
			break
		}
		visited[cur.ID] = struct{}{}
		chain = append(chain, cur.ID)
		if cur.ParentID == nil {
			break
		}
		cur, ok = t.nodes[*cur.ParentID]
	}
	return chain
}

func (t *Tree) collect(ids []int64) []Function {
	out := make([]Function, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[id])
	}
	return out
}
