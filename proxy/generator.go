package proxy

import (
	"bufio"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/skdltmxn/pdbproxy/internal/logger"
	"github.com/skdltmxn/pdbproxy/symdb"
)

// sizedDB overrides the pointer width of a database.
type sizedDB struct {
	symdb.Database
	ptrSize int
}

func (d sizedDB) PointerSize() int { return d.ptrSize }

// Generator writes proxy headers for one symbol database. The dependency
// graph is built once and reused by every Generate call.
type Generator struct {
	db    symdb.Database
	opts  Options
	graph *UdtGraph
}

// NewGenerator prepares a generator over db.
func NewGenerator(db symdb.Database, opts Options) *Generator {
	if opts.PointerSize > 0 {
		db = sizedDB{Database: db, ptrSize: opts.PointerSize}
	}
	return &Generator{db: db, opts: opts, graph: BuildGraph(db)}
}

// Graph returns the dependency graph of every struct and class.
func (g *Generator) Graph() *UdtGraph { return g.graph }

// Generate writes the prelude, the used enums, the forward declarations and
// the definitions in dependency order. Output is identical for identical
// input and options.
func (g *Generator) Generate(w io.Writer) error {
	log := logger.ComponentLogger("proxy")
	start := time.Now()

	resolved, err := Resolve(g.graph, g.opts.Types...)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if g.opts.EmitPrelude {
		if _, err := bw.WriteString(Prelude); err != nil {
			return errors.Wrap(err, "writing prelude")
		}
	}

	if g.opts.EmitEnums {
		if err := writeEnums(bw, usedEnums(resolved)); err != nil {
			return errors.Wrap(err, "writing enums")
		}
	}

	decls, _ := ForwardDeclarations(resolved, g.graph, nil)
	for _, d := range decls {
		if _, err := bw.WriteString(d + "\n"); err != nil {
			return errors.Wrap(err, "writing forward declarations")
		}
	}
	if len(decls) > 0 {
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "writing forward declarations")
		}
	}

	for _, n := range resolved.Nodes {
		if err := EmitUDT(bw, g.db, n.Symbol, g.opts); err != nil {
			return errors.Wrapf(err, "emitting %s", n.Name)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing output")
	}

	log.Infow("generated proxies",
		logger.FieldCount, len(resolved.Nodes),
		"forward_declarations", len(decls),
		logger.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Generate is a shorthand for NewGenerator(db, opts).Generate(w).
func Generate(w io.Writer, db symdb.Database, opts Options) error {
	return NewGenerator(db, opts).Generate(w)
}
