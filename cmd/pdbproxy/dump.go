package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdbproxy/symdb"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <pdb-or-yaml>",
	Short: "Write the symbol database as a YAML snapshot",
	Long: `Write the structs, classes and enums of a symbol database as a YAML
snapshot. Snapshots load faster than PDB files, can be edited by hand and
are accepted by every other command.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(args[0])
	if err != nil {
		return err
	}
	return withOutput(func(w io.Writer) error {
		return symdb.WriteYAML(w, db)
	})
}
