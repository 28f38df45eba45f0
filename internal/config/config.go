// Package config loads pdbproxy settings from pdbproxy.toml, PDBPROXY_*
// environment variables and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/skdltmxn/pdbproxy/proxy"
)

// FileName is the project config file searched for from the working
// directory upward.
const FileName = "pdbproxy.toml"

// EnvPrefix prefixes environment overrides: generate.emit_prelude is read
// from PDBPROXY_GENERATE_EMIT_PRELUDE.
const EnvPrefix = "PDBPROXY"

type Config struct {
	Generate GenerateConfig `mapstructure:"generate"`
	Log      LogConfig      `mapstructure:"log"`
}

// GenerateConfig mirrors proxy.Options.
type GenerateConfig struct {
	EmitVirtualRedirectors bool     `mapstructure:"emit_virtual_redirectors"`
	ZeroInitializeMembers  bool     `mapstructure:"zero_initialize_members"`
	EmitLayoutGuards       bool     `mapstructure:"emit_layout_guards"`
	EmitPrelude            bool     `mapstructure:"emit_prelude"`
	EmitEnums              bool     `mapstructure:"emit_enums"`
	PointerSize            int      `mapstructure:"pointer_size"` // 0 = from the symbol database
	Types                  []string `mapstructure:"types"`
}

type LogConfig struct {
	JSON    bool `mapstructure:"json"`
	Verbose bool `mapstructure:"verbose"`
}

// SetDefaults registers every key so environment overrides apply to all of
// them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("generate.emit_virtual_redirectors", false)
	v.SetDefault("generate.zero_initialize_members", false)
	v.SetDefault("generate.emit_layout_guards", false)
	v.SetDefault("generate.emit_prelude", false)
	v.SetDefault("generate.emit_enums", false)
	v.SetDefault("generate.pointer_size", 0)
	v.SetDefault("generate.types", []string{})

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbose", false)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads path into v, or the nearest pdbproxy.toml when path is empty,
// and returns the merged configuration. A missing project file is not an
// error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path = FindProjectConfig(wd)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindProjectConfig returns the first pdbproxy.toml in dir or one of its
// parents, or "".
func FindProjectConfig(dir string) string {
	for {
		p := filepath.Join(dir, FileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (c *Config) Validate() error {
	switch c.Generate.PointerSize {
	case 0, 4, 8:
	default:
		return errors.WithHint(
			errors.Newf("generate.pointer_size must be 0, 4 or 8, got %d", c.Generate.PointerSize),
			"use 0 to take the pointer size from the symbol database")
	}
	return nil
}

// Options converts the generate section to generator options.
func (g GenerateConfig) Options() proxy.Options {
	return proxy.Options{
		EmitVirtualRedirectors: g.EmitVirtualRedirectors,
		ZeroInitializeMembers:  g.ZeroInitializeMembers,
		EmitLayoutGuards:       g.EmitLayoutGuards,
		EmitPrelude:            g.EmitPrelude,
		EmitEnums:              g.EmitEnums,
		PointerSize:            g.PointerSize,
		Types:                  g.Types,
	}
}
