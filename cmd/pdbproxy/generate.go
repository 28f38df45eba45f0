package main

import (
	"bytes"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdbproxy/internal/logger"
	"github.com/skdltmxn/pdbproxy/internal/watch"
	"github.com/skdltmxn/pdbproxy/proxy"
)

var generateWatch bool

var generateCmd = &cobra.Command{
	Use:   "generate <pdb-or-yaml>",
	Short: "Write C++ proxy definitions",
	Long: `Write C++ proxy definitions for the structs and classes in a symbol
database, ordered so that every type is defined after the types it contains
by value.

Use --type to emit only some types and what they contain by value. With
--watch the output is regenerated whenever the input file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.Bool("redirectors", false, "add slot-dispatching wrappers named after virtual functions")
	f.Bool("zero-init", false, "zero-initialize scalar, pointer and enum members")
	f.Bool("guards", false, "add static_assert checks of size and member offsets")
	f.Bool("prelude", false, "write the helper definitions the wrappers call")
	f.Bool("enums", false, "write definitions of enums used by members")
	f.Int("pointer-size", 0, "pointer size in bytes (0 = from the symbols)")
	f.StringSliceP("type", "t", nil, "emit only this type and its value dependencies (repeatable)")
	f.BoolVar(&generateWatch, "watch", false, "regenerate when the input changes")

	bindFlags(v, f, map[string]string{
		"generate.emit_virtual_redirectors": "redirectors",
		"generate.zero_initialize_members":  "zero-init",
		"generate.emit_layout_guards":       "guards",
		"generate.emit_prelude":             "prelude",
		"generate.emit_enums":               "enums",
		"generate.pointer_size":             "pointer-size",
		"generate.types":                    "type",
	})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	path := args[0]
	log := logger.ComponentLogger("cli")
	opts := cfg.Generate.Options()

	run := func() error {
		db, err := openDatabase(path)
		if err != nil {
			return err
		}
		// Generate fully before touching the output so a failed run
		// leaves the previous file in place.
		var buf bytes.Buffer
		if err := proxy.Generate(&buf, db, opts); err != nil {
			return err
		}
		return withOutput(func(w io.Writer) error {
			_, err := w.Write(buf.Bytes())
			return err
		})
	}

	if err := run(); err != nil {
		if !generateWatch {
			return err
		}
		log.Errorw("generation failed", logger.FieldFile, path, logger.FieldError, err)
	}
	if !generateWatch {
		return nil
	}

	w, err := watch.New(path, watch.DefaultDebounce)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log.Infow("watching for changes", logger.FieldFile, path)
	return w.Run(ctx, run)
}
