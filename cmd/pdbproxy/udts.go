package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdbproxy/symdb"
)

var (
	udtsKind  string
	udtsLimit int
)

var udtsCmd = &cobra.Command{
	Use:   "udts <pdb-or-yaml>",
	Short: "List structs, classes and unions",
	Long: `List the user-defined types of a symbol database with their size and
member counts.

Use --kind to filter by kind (struct, class, union).`,
	Args: cobra.ExactArgs(1),
	RunE: runUDTs,
}

func init() {
	udtsCmd.Flags().StringVarP(&udtsKind, "kind", "k", "", "filter by kind (struct, class, union)")
	udtsCmd.Flags().IntVarP(&udtsLimit, "limit", "n", 0, "limit number of types shown (0 = unlimited)")
}

func runUDTs(cmd *cobra.Command, args []string) error {
	hasKindFilter := udtsKind != ""
	var kindFilter symdb.UDTKind
	switch strings.ToLower(udtsKind) {
	case "":
	case "struct":
		kindFilter = symdb.UDTStruct
	case "class":
		kindFilter = symdb.UDTClass
	case "union":
		kindFilter = symdb.UDTUnion
	default:
		return errors.Newf("unknown kind: %s", udtsKind)
	}

	db, err := openDatabase(args[0])
	if err != nil {
		return err
	}

	data := pterm.TableData{{"NAME", "KIND", "SIZE", "MEMBERS", "METHODS", "VIRTUALS"}}
	count := 0
	for u := range db.UDTs() {
		if hasKindFilter && u.UDTKind() != kindFilter {
			continue
		}
		data = append(data, udtRow(u))
		count++
		if udtsLimit > 0 && count >= udtsLimit {
			break
		}
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render table")
	}
	return withOutput(func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s\n\nTotal: %d types\n", table, count)
		return err
	})
}

func udtRow(u *symdb.Symbol) []string {
	members, virtuals := 0, 0
	for d := range u.Children(symdb.TagData) {
		if d.DataKind() == symdb.DataMember {
			members++
		}
	}
	for fn := range u.Children(symdb.TagFunction) {
		if fn.IsVirtual() {
			virtuals++
		}
	}
	return []string{
		u.Name(),
		u.UDTKind().String(),
		strconv.FormatUint(u.Length(), 10),
		strconv.Itoa(members),
		strconv.Itoa(u.ChildCount(symdb.TagFunction)),
		strconv.Itoa(virtuals),
	}
}
