package functions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/shared"
)

const seedYAML = `
functions:
  - name: Orchestra
    children:
      - name: Board
        permissions: [blasbase.p1, blasbase.p2]
        children:
          - name: Treasurer
            permissions: [blasbase.p3]
      - name: Members
        membership: true
        children:
          - name: Trumpets
            engagement: true
`

func TestLoadSeed(t *testing.T) {
	nodes, err := LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Orchestra", nodes[0].Name)
	require.Len(t, nodes[0].Children, 2)
	assert.True(t, nodes[0].Children[1].Membership)
	assert.Equal(t, []string{"blasbase.p1", "blasbase.p2"}, nodes[0].Children[0].Permissions)
}

func TestLoadSeedRejectsBadDocuments(t *testing.T) {
	_, err := LoadSeed(strings.NewReader("functions:\n  - name: A\n  - name: A\n"))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = LoadSeed(strings.NewReader("functions:\n  - description: nameless\n"))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = LoadSeed(strings.NewReader("functions:\n  - name: A\n    colour: red\n"))
	assert.Error(t, err)

	nodes, err := LoadSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestSeedIsIdempotent(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()
	nodes, err := LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	res, err := svc.Seed(ctx, 1, nodes)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Created: 5, Granted: 3}, res)

	tree, err := svc.Tree(ctx)
	require.NoError(t, err)
	board, ok := tree.ChildNamed(ptr(mustChild(t, tree, nil, "Orchestra").ID), "Board")
	require.True(t, ok)
	child, ok := tree.ChildNamed(&board.ID, "Treasurer")
	require.True(t, ok)
	assert.Equal(t, []string{"blasbase.p1", "blasbase.p2", "blasbase.p3"}, tree.InheritedPermissions(child.ID).Keys())

	res, err = svc.Seed(ctx, 1, nodes)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 5, res.Existing)
	assert.Len(t, repo.functions, 5)
}

func mustChild(t *testing.T, tree *Tree, parent *int64, name string) Function {
	t.Helper()
	f, ok := tree.ChildNamed(parent, name)
	require.True(t, ok, name)
	return f
}

func TestShippedSeedLoads(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", "deploy", "seed", "functions.yml"))
	require.NoError(t, err)
	defer f.Close()

	nodes, err := LoadSeed(f)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Orchestra", nodes[0].Name)

	known := make(map[string]bool)
	for _, k := range shared.CoreScopes() {
		known[k] = true
	}
	count := 0
	var walk func([]SeedNode)
	walk = func(ns []SeedNode) {
		for _, n := range ns {
			count++
			for _, k := range n.Permissions {
				assert.True(t, known[k], "%s grants unknown permission %s", n.Name, k)
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	assert.Equal(t, 15, count)
}
