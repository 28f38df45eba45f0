package proxy

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/skdltmxn/pdbproxy/internal/logger"
)

// ErrUnknownType is returned when a requested root type is not in the graph.
var ErrUnknownType = errors.New("proxy: unknown type")

// ResolvedUdtGraph is the sequence of nodes to define, ordered so that every
// value dependency precedes its dependents. It shares nodes with the graph.
type ResolvedUdtGraph struct {
	Nodes []*UdtNode
	index map[string]int
}

// Position returns the index of the named node in emission order.
func (r *ResolvedUdtGraph) Position(name string) (int, bool) {
	i, ok := r.index[name]
	return i, ok
}

// Resolve orders the graph for emission by depth-first post-order over
// value edges, visiting nodes and dependencies in insertion order. With no
// roots every node is emitted; otherwise only the roots and the types they
// contain by value. A value cycle cannot occur in a real layout; if the
// data has one it is logged and the back edge ignored.
func Resolve(g *UdtGraph, roots ...string) (*ResolvedUdtGraph, error) {
	log := logger.ComponentLogger("proxy")
	r := &ResolvedUdtGraph{index: make(map[string]int)}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)

	var visit func(n *UdtNode)
	visit = func(n *UdtNode) {
		state[n.Sanitized] = visiting
		for el := n.Deps.Front(); el != nil; el = el.Next() {
			if el.Value&EdgeValue == 0 {
				continue
			}
			dep, ok := g.Node(el.Key)
			if !ok || dep == n {
				continue
			}
			switch state[dep.Sanitized] {
			case unvisited:
				visit(dep)
			case visiting:
				log.Warnw("value dependency cycle", logger.FieldType, n.Name, "dependency", dep.Name)
			}
		}
		state[n.Sanitized] = done
		r.index[n.Sanitized] = len(r.Nodes)
		r.Nodes = append(r.Nodes, n)
	}

	if len(roots) == 0 {
		for n := range g.Nodes() {
			if state[n.Sanitized] == unvisited {
				visit(n)
			}
		}
		return r, nil
	}

	for _, root := range roots {
		n, ok := g.Node(Sanitize(root))
		if !ok {
			return nil, errors.WithHint(
				errors.Wrapf(ErrUnknownType, "%q", root),
				fmt.Sprintf("the symbol database has %d struct and class types; list them with the udts command", g.Len()))
		}
		if state[n.Sanitized] == unvisited {
			visit(n)
		}
	}
	return r, nil
}
