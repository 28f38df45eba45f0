package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdbproxy/pdb"
)

var infoCmd = &cobra.Command{
	Use:   "info <pdb-file>",
	Short: "Display PDB file information",
	Long:  `Display general information about a PDB file including version, GUID, age, target machine and type count.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	pdbPath := args[0]

	f, err := pdb.Open(pdbPath)
	if err != nil {
		return errors.Wrap(err, "failed to open PDB")
	}
	defer f.Close()

	info, err := f.Info()
	if err != nil {
		return errors.Wrap(err, "failed to read PDB info")
	}

	return withOutput(func(w io.Writer) error {
		fmt.Fprintf(w, "PDB File: %s\n", pdbPath)
		fmt.Fprintf(w, "Version: %d\n", info.Version)
		fmt.Fprintf(w, "Signature: 0x%08X\n", info.Signature)
		fmt.Fprintf(w, "Age: %d\n", info.Age)
		fmt.Fprintf(w, "GUID: {%s}\n", info.GUIDString())
		fmt.Fprintf(w, "Block Size: %d\n", f.BlockSize())
		fmt.Fprintf(w, "Number of Streams: %d\n", f.NumStreams())

		if machine, err := f.Machine(); err == nil {
			fmt.Fprintf(w, "Machine: 0x%04X\n", machine)
		}
		if ptr, err := f.PointerSize(); err == nil {
			fmt.Fprintf(w, "Pointer Size: %d\n", ptr)
		}
		if types, err := f.Types(); err == nil {
			fmt.Fprintf(w, "Types: %d\n", types.Count())
		}
		if procs, err := f.Procedures(); err == nil {
			fmt.Fprintf(w, "Procedures: %d\n", len(procs))
		}
		if pubs, err := f.Publics(); err == nil {
			fmt.Fprintf(w, "Public Symbols: %d\n", len(pubs))
		}
		return nil
	})
}
