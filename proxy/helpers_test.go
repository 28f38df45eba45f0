package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdbproxy/symdb"
)

func loadFixture(t *testing.T, name string) *symdb.Table {
	t.Helper()
	db, err := symdb.LoadYAMLFile("testdata/" + name)
	require.NoError(t, err)
	return db
}

func lookupUDT(t *testing.T, db *symdb.Table, name string) *symdb.Symbol {
	t.Helper()
	u := db.Lookup(name)
	require.NotNil(t, u, "udt %s", name)
	return u
}

// child returns the n-th direct child of u with the given tag and name.
func child(t *testing.T, u *symdb.Symbol, tag symdb.Tag, name string, n int) *symdb.Symbol {
	t.Helper()
	for c := range u.Children(tag) {
		if c.Name() != name {
			continue
		}
		if n == 0 {
			return c
		}
		n--
	}
	require.FailNow(t, "child not found", "%s %s in %s", tag, name, u.Name())
	return nil
}

func member(t *testing.T, u *symdb.Symbol, name string) *symdb.Symbol {
	t.Helper()
	return child(t, u, symdb.TagData, name, 0)
}

func method(t *testing.T, u *symdb.Symbol, name string) *symdb.Symbol {
	t.Helper()
	return child(t, u, symdb.TagFunction, name, 0)
}
