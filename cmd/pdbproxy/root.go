package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/skdltmxn/pdbproxy/internal/config"
	"github.com/skdltmxn/pdbproxy/internal/logger"
	"github.com/skdltmxn/pdbproxy/pdb"
	"github.com/skdltmxn/pdbproxy/symdb"
)

var (
	outputFile string
	configFile string

	v   = config.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdbproxy",
	Short: "Generate C++ proxy classes from PDB debug symbols",
	Long: `pdbproxy reads the debug symbols of a Windows binary and writes C++
struct and class definitions with the same memory layout. Member functions
become inline wrappers that call the original code by address or through
its virtual table.

Symbols are read from a PDB file or from a YAML snapshot written by the
dump command. Settings come from pdbproxy.toml, PDBPROXY_* environment
variables and flags, in increasing priority.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = c
		return logger.Initialize(cfg.Log.JSON, cfg.Log.Verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	pf.StringVar(&configFile, "config", "", "config file (default: nearest "+config.FileName+")")
	pf.Bool("log-json", false, "log as JSON")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	bindFlags(v, pf, map[string]string{
		"log.json":    "log-json",
		"log.verbose": "verbose",
	})

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(udtsCmd)
	rootCmd.AddCommand(infoCmd)
}

// bindFlags maps config keys to flags so that a flag given on the command
// line overrides the file and the environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// withOutput runs fn against the --output file, or stdout.
func withOutput(fn func(w io.Writer) error) error {
	if outputFile == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func isSnapshot(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// openDatabase loads a symbol database from a YAML snapshot or a PDB file.
func openDatabase(path string) (*symdb.Table, error) {
	log := logger.ComponentLogger("cli")

	if isSnapshot(path) {
		return symdb.LoadYAMLFile(path)
	}

	f, err := pdb.Open(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "failed to open %s", path),
			"pass a PDB file, or a .yaml snapshot written by the dump command")
	}
	defer f.Close()

	db, err := symdb.FromPDB(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read symbols from %s", path)
	}
	log.Debugw("loaded symbols", logger.FieldFile, path, logger.FieldCount, db.Len())
	return db, nil
}
