// Package config defines the data structures related to configuration and
// includes functions for loading the config and turning it into optimizer
// requests.
package config

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/semiotic-ai/allocopt/pkg/constants"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for allocopt.
type Configuration struct {
	Indexer IndexerConfig `yaml:"indexer" mapstructure:"indexer"`
	Runtime RuntimeConfig `yaml:"runtime,omitempty" mapstructure:"runtime"`
	Logging LoggingConfig `yaml:"logging,omitempty" mapstructure:"logging"`
	Output  OutputConfig  `yaml:"output,omitempty" mapstructure:"output"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output

	// Rotation of OutputFile. Zero values keep the rotation defaults:
	// 100 MB files, every backup retained regardless of age.
	MaxSizeMB  int `yaml:"maxSizeMB,omitempty" mapstructure:"maxSizeMB"`
	MaxBackups int `yaml:"maxBackups,omitempty" mapstructure:"maxBackups"`
	MaxAgeDays int `yaml:"maxAgeDays,omitempty" mapstructure:"maxAgeDays"`
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

// GRTAmount is a decimal GRT amount. It must be quoted in YAML, e.g. "0.05";
// an unquoted number is rejected because it would be parsed as a float.
type GRTAmount string

// IndexerConfig holds the optimization parameters for one indexer.
type IndexerConfig struct {
	Address                 string    `yaml:"address" mapstructure:"address"`
	GasPerAllocation        GRTAmount `yaml:"gasPerAllocation" mapstructure:"gasPerAllocation"`
	AllocationLifetime      int       `yaml:"allocationLifetime" mapstructure:"allocationLifetime"`
	NetworkSubgraphEndpoint string    `yaml:"networkSubgraphEndpoint" mapstructure:"networkSubgraphEndpoint"`
	MaxNewAllocations       *int      `yaml:"maxNewAllocations,omitempty" mapstructure:"maxNewAllocations"`
	TauFactor               *float64  `yaml:"tauFactor,omitempty" mapstructure:"tauFactor"`
	MinSignal               GRTAmount `yaml:"minSignal,omitempty" mapstructure:"minSignal"`
	OptMode                 string    `yaml:"optMode,omitempty" mapstructure:"optMode"`
	Blacklist               []string  `yaml:"blacklist,omitempty" mapstructure:"blacklist"`
	Whitelist               []string  `yaml:"whitelist,omitempty" mapstructure:"whitelist"`
	Pinnedlist              []string  `yaml:"pinnedlist,omitempty" mapstructure:"pinnedlist"`
	Frozenlist              []string  `yaml:"frozenlist,omitempty" mapstructure:"frozenlist"`
}

// RuntimeConfig controls the julia runtime the optimizer runs in.
type RuntimeConfig struct {
	Binary           string          `yaml:"binary,omitempty" mapstructure:"binary"`
	ProjectDir       string          `yaml:"projectDir,omitempty" mapstructure:"projectDir"`
	ProvisionCommand []string        `yaml:"provisionCommand,omitempty" mapstructure:"provisionCommand"`
	SkipInstall      bool            `yaml:"skipInstall,omitempty" mapstructure:"skipInstall"`
	Packages         []PackageConfig `yaml:"packages,omitempty" mapstructure:"packages"`
}

// PackageConfig overrides one of the pinned julia packages.
type PackageConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url,omitempty" mapstructure:"url"`
	Rev  string `yaml:"rev,omitempty" mapstructure:"rev"`
}

// envKeys are the scalar keys that can be overridden with ALLOCOPT_*
// environment variables, e.g. ALLOCOPT_INDEXER_ADDRESS.
var envKeys = []string{
	"indexer.address",
	"indexer.gasPerAllocation",
	"indexer.allocationLifetime",
	"indexer.networkSubgraphEndpoint",
	"indexer.maxNewAllocations",
	"indexer.tauFactor",
	"indexer.minSignal",
	"indexer.optMode",
	"runtime.binary",
	"runtime.projectDir",
	"runtime.skipInstall",
	"logging.level",
	"logging.format",
	"logging.outputFile",
	"output.format",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			panic(fmt.Sprintf("failed to bind environment for %s: %v", key, err))
		}
	}
	return v
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	return decode(v)
}

// LoadConfigurationFromReader loads a YAML-formatted configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}

	return decode(v)
}

var grtAmountType = reflect.TypeOf(GRTAmount(""))

// grtAmountHook rejects GRT amounts that did not arrive as strings. Weak
// decoding would otherwise round a large unquoted number through float64.
func grtAmountHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != grtAmountType || from.Kind() == reflect.String {
		return data, nil
	}
	return nil, fmt.Errorf("GRT amount %v must be quoted, e.g. \"%v\"", data, data)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		grtAmountHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&configuration, hooks); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	return &configuration, nil
}

// ValidateConfiguration returns warnings about settings that are legal but
// probably unintended. Hard errors surface when the request is built.
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string
	idx := c.Indexer

	if strings.EqualFold(strings.TrimSpace(idx.OptMode), constants.OptModeFast) {
		warnings = append(warnings, "Optimizer mode 'fast' easily gets stuck in local optima and is not recommended for production")
	}

	if idx.AllocationLifetime > constants.MaxRewardedAllocationLifetime {
		warnings = append(warnings, fmt.Sprintf("Allocation lifetime of %d epochs exceeds the %d epochs an allocation earns indexing rewards for",
			idx.AllocationLifetime, constants.MaxRewardedAllocationLifetime))
	}

	if idx.MaxNewAllocations != nil && *idx.MaxNewAllocations == 0 {
		warnings = append(warnings, "maxNewAllocations is 0, no new allocations will be proposed")
	}

	if len(idx.Whitelist) > 0 {
		blacklisted := make(map[string]struct{}, len(idx.Blacklist))
		for _, id := range idx.Blacklist {
			blacklisted[id] = struct{}{}
		}
		for _, id := range idx.Whitelist {
			if _, ok := blacklisted[id]; ok {
				warnings = append(warnings, fmt.Sprintf("Deployment '%s' is both whitelisted and blacklisted", id))
			}
		}
	}

	if c.Runtime.SkipInstall && c.Runtime.ProjectDir == "" {
		warnings = append(warnings, "runtime.skipInstall is set without runtime.projectDir, the default project directory must already hold the optimizer packages")
	}

	return warnings
}
