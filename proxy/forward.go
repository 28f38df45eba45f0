package proxy

// NameSet is the set of names already forward-declared in one run.
type NameSet map[string]struct{}

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s NameSet) Add(name string) {
	s[name] = struct{}{}
}

// ForwardDeclarations returns a "struct X;" or "class X;" line for every
// dependency that is held only by pointer or reference, passes IsAllowed,
// has a non-empty sanitized name, exists in the graph and is not defined
// before the node that refers to it. Names already in seen are skipped;
// the returned set includes the new ones. A nil seen starts a new set.
func ForwardDeclarations(resolved *ResolvedUdtGraph, g *UdtGraph, seen NameSet) ([]string, NameSet) {
	if seen == nil {
		seen = make(NameSet)
	}

	var decls []string
	for i, node := range resolved.Nodes {
		for el := node.Deps.Front(); el != nil; el = el.Next() {
			if !el.Value.PointerOnly() || !IsAllowed(el.Key) {
				continue
			}
			name := Sanitize(el.Key)
			if name == "" || seen.Has(name) {
				continue
			}
			target, ok := g.Node(name)
			if !ok {
				continue
			}
			if pos, defined := resolved.Position(name); defined && pos < i {
				continue
			}
			seen.Add(name)
			decls = append(decls, target.Kind.String()+" "+name+";")
		}
	}
	return decls, seen
}
