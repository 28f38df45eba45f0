package proxy

import (
	"iter"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
	"go.uber.org/zap"

	"github.com/skdltmxn/pdbproxy/internal/logger"
	"github.com/skdltmxn/pdbproxy/symdb"
)

// EdgeKind is a set of ways a type depends on another.
type EdgeKind uint8

const (
	EdgeValue EdgeKind = 1 << iota
	EdgePointer
)

// PointerOnly reports whether the dependency is only ever held through a
// pointer or reference, so a forward declaration suffices.
func (k EdgeKind) PointerOnly() bool { return k == EdgePointer }

func (k EdgeKind) String() string {
	var parts []string
	if k&EdgeValue != 0 {
		parts = append(parts, "value")
	}
	if k&EdgePointer != 0 {
		parts = append(parts, "pointer")
	}
	return strings.Join(parts, "|")
}

// UdtNode is one struct or class in the graph.
type UdtNode struct {
	Name      string
	Sanitized string
	Kind      symdb.UDTKind
	Symbol    *symdb.Symbol

	// Deps maps dependency names, in first-seen order, to the edge kinds
	// observed across members and bases.
	Deps *orderedmap.OrderedMap[string, EdgeKind]
}

func (n *UdtNode) addDep(spelling string, kind EdgeKind) {
	name := depName(spelling)
	if name == "" {
		return
	}
	old, _ := n.Deps.Get(name)
	n.Deps.Set(name, old|kind)
}

// UdtGraph holds one node per emittable UDT keyed by sanitized name.
type UdtGraph struct {
	nodes *orderedmap.OrderedMap[string, *UdtNode]
}

// Node returns the node with the given sanitized name.
func (g *UdtGraph) Node(name string) (*UdtNode, bool) {
	return g.nodes.Get(name)
}

// Len returns the number of nodes.
func (g *UdtGraph) Len() int { return g.nodes.Len() }

// Nodes yields the nodes in database order.
func (g *UdtGraph) Nodes() iter.Seq[*UdtNode] {
	return func(yield func(*UdtNode) bool) {
		for el := g.nodes.Front(); el != nil; el = el.Next() {
			if !yield(el.Value) {
				return
			}
		}
	}
}

// BuildGraph scans every struct and class of db once. Each data member adds
// an edge to its type (array element type for arrays), a pointer edge when
// the member is held by pointer or reference and a value edge otherwise.
// Base classes add value edges.
func BuildGraph(db symdb.Database) *UdtGraph {
	log := logger.ComponentLogger("proxy")
	g := &UdtGraph{nodes: orderedmap.NewOrderedMap[string, *UdtNode]()}

	for u := range db.UDTs() {
		if u.Tag() != symdb.TagUDT || u.UDTKind() == symdb.UDTUnion {
			continue
		}
		name := Sanitize(u.Name())
		if name == "" {
			continue
		}
		if have, dup := g.nodes.Get(name); dup {
			log.Warnw("sanitized name already taken; type not emitted",
				logger.FieldType, u.Name(), "sanitized", name, "kept", have.Name)
			continue
		}

		node := &UdtNode{
			Name:      u.Name(),
			Sanitized: name,
			Kind:      u.UDTKind(),
			Symbol:    u,
			Deps:      orderedmap.NewOrderedMap[string, EdgeKind](),
		}
		for base := range u.Children(symdb.TagBaseClass) {
			node.addDep(Sanitize(base.Name()), EdgeValue)
		}
		for d := range u.Children(symdb.TagData) {
			if d.DataKind() != symdb.DataMember {
				continue
			}
			addMemberDep(node, d, log)
		}
		g.nodes.Set(name, node)
	}
	return g
}

func addMemberDep(node *UdtNode, d *symdb.Symbol, log *zap.SugaredLogger) {
	t := d.Type()
	for t != nil && t.Tag() == symdb.TagArray {
		t = t.Type()
	}
	if t == nil {
		return
	}
	// Opaque values are emitted as byte blobs and need nothing.
	if opaque(t) {
		return
	}
	spelling, err := MemberType(t)
	if err != nil {
		log.Debugw("skipping member dependency",
			logger.FieldType, node.Name, logger.FieldMember, d.Name(), logger.FieldError, err)
		return
	}
	kind := EdgeValue
	if strings.HasSuffix(spelling, "*") {
		kind = EdgePointer
	}
	node.addDep(spelling, kind)
}
