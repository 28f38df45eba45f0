package proxy

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdbproxy/symdb"
)

func nodeNames(nodes []*UdtNode) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Sanitized)
	}
	return out
}

func deps(n *UdtNode) map[string]EdgeKind {
	out := make(map[string]EdgeKind)
	for el := n.Deps.Front(); el != nil; el = el.Next() {
		out[el.Key] = el.Value
	}
	return out
}

func TestBuildGraph(t *testing.T) {
	g := BuildGraph(loadFixture(t, "graph.yaml"))

	// Unions and anonymous types have no node.
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"Node", "Payload", "Tree", "ns__Leaf"}, nodeNames(slices.Collect(g.Nodes())))

	node, ok := g.Node("Node")
	require.True(t, ok)
	assert.Equal(t, "Node", node.Name)
	assert.Equal(t, map[string]EdgeKind{
		"Payload": EdgeValue | EdgePointer,
		"Node":    EdgePointer,
		"Tree":    EdgePointer,
	}, deps(node))
	assert.False(t, EdgeKind(EdgeValue|EdgePointer).PointerOnly())
	assert.Equal(t, "value|pointer", EdgeKind(EdgeValue|EdgePointer).String())

	payload, ok := g.Node("Payload")
	require.True(t, ok)
	assert.Equal(t, map[string]EdgeKind{
		"int":  EdgeValue,
		"Tree": EdgePointer,
	}, deps(payload))

	leaf, ok := g.Node("ns__Leaf")
	require.True(t, ok)
	assert.Equal(t, "ns::Leaf", leaf.Name)
	assert.Equal(t, map[string]EdgeKind{"void": EdgePointer}, deps(leaf))
}

func TestBuildGraphTemplateInstantiations(t *testing.T) {
	g := BuildGraph(loadFixture(t, "templates.yaml"))
	assert.Equal(t, []string{"Box_Tint_E", "Box_Tint_P_E", "Holder"}, nodeNames(slices.Collect(g.Nodes())))

	holder, ok := g.Node("Holder")
	require.True(t, ok)
	assert.Equal(t, map[string]EdgeKind{"Box_Tint_P_E": EdgeValue}, deps(holder))
}

func TestBuildGraphKeepsFirstOfCollidingNames(t *testing.T) {
	db, err := symdb.ParseYAML([]byte(`
udts:
  - {name: "Box<int>", size: 4}
  - {name: Box_Tint_E, size: 8}
`))
	require.NoError(t, err)

	g := BuildGraph(db)
	require.Equal(t, 1, g.Len())
	n, ok := g.Node("Box_Tint_E")
	require.True(t, ok)
	assert.Equal(t, "Box<int>", n.Name)
}

func TestBuildGraphBaseEdges(t *testing.T) {
	g := BuildGraph(loadFixture(t, "shapes.yaml"))

	circle, ok := g.Node("Circle")
	require.True(t, ok)
	d := deps(circle)
	assert.Equal(t, EdgeValue, d["Shape"])
	assert.Equal(t, EdgePointer, d["Circle"])
}

func TestResolve(t *testing.T) {
	g := BuildGraph(loadFixture(t, "graph.yaml"))

	tests := []struct {
		name  string
		roots []string
		want  []string
		decls []string
	}{
		{
			name:  "all",
			want:  []string{"Payload", "Node", "Tree", "ns__Leaf"},
			decls: []string{"struct Tree;", "struct Node;"},
		},
		{
			name:  "pointer deps are not followed",
			roots: []string{"Tree"},
			want:  []string{"Tree"},
			decls: []string{"struct Node;"},
		},
		{
			name:  "value deps come first",
			roots: []string{"Node"},
			want:  []string{"Payload", "Node"},
			decls: []string{"struct Tree;", "struct Node;"},
		},
		{
			name:  "raw name",
			roots: []string{"ns::Leaf"},
			want:  []string{"ns__Leaf"},
		},
		{
			name:  "repeated roots",
			roots: []string{"Node", "Payload", "Node"},
			want:  []string{"Payload", "Node"},
			decls: []string{"struct Tree;", "struct Node;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(g, tt.roots...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, nodeNames(r.Nodes))

			for i, n := range r.Nodes {
				pos, ok := r.Position(n.Sanitized)
				assert.True(t, ok)
				assert.Equal(t, i, pos)
			}

			decls, _ := ForwardDeclarations(r, g, nil)
			assert.Equal(t, tt.decls, decls)
		})
	}
}

func TestResolveUnknownRoot(t *testing.T) {
	g := BuildGraph(loadFixture(t, "graph.yaml"))

	_, err := Resolve(g, "Blob")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Resolve(g, "Missing")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), `"Missing"`)
}

func TestResolveValueCycle(t *testing.T) {
	db := loadFixture(t, "cycle.yaml")
	r, err := Resolve(BuildGraph(db))
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, nodeNames(r.Nodes))
}

func TestForwardDeclarationsShareSeen(t *testing.T) {
	g := BuildGraph(loadFixture(t, "graph.yaml"))
	r, err := Resolve(g, "Tree")
	require.NoError(t, err)

	first, seen := ForwardDeclarations(r, g, nil)
	assert.Equal(t, []string{"struct Node;"}, first)
	assert.True(t, seen.Has("Node"))

	again, seen := ForwardDeclarations(r, g, seen)
	assert.Empty(t, again)
	assert.True(t, seen.Has("Node"))
}

func TestForwardDeclarationsNoneWhenDefinedEarlier(t *testing.T) {
	g := BuildGraph(loadFixture(t, "shapes.yaml"))
	r, err := Resolve(g, "Shape")
	require.NoError(t, err)

	decls, _ := ForwardDeclarations(r, g, nil)
	assert.Empty(t, decls)
}
