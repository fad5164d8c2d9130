// Package constants provides shared constants for the allocopt application.
package constants

import "math"

// GRT token constants
const (
	// GRTDecimals is the number of decimal places of the GRT token.
	GRTDecimals = 18
)

// Optimizer request defaults
const (
	// DefaultMaxNewAllocations stands in for "no limit" on new allocations.
	DefaultMaxNewAllocations = math.MaxInt32

	// DefaultTauFactor is the default tau weighting passed to the optimizer.
	DefaultTauFactor = 0.2

	// DefaultMinSignal is the default minimum signal, in GRT, a subgraph needs
	// before the optimizer considers it.
	DefaultMinSignal = "100"

	// DefaultNumReportedOptions is the number of strategies requested from
	// the optimizer. The adapter expects exactly one back.
	DefaultNumReportedOptions = 1

	// MaxRewardedAllocationLifetime is the number of epochs an allocation
	// keeps earning indexing rewards.
	MaxRewardedAllocationLifetime = 28
)

// Optimizer modes
const (
	// OptModeOptimal is the recommended optimizer mode.
	OptModeOptimal = "optimal"

	// OptModeFast is quicker but easily stuck in local optima.
	OptModeFast = "fast"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix prefixes environment variables that override config keys.
	EnvPrefix = "ALLOCOPT"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxBodySizeBytes is the default maximum request body size (64 KB)
	DefaultMaxBodySizeBytes int64 = 64 * 1024
)

// Julia runtime defaults
const (
	// DefaultJuliaBinary is the executable looked up on PATH.
	DefaultJuliaBinary = "julia"

	// DefaultJuliaProjectDir is the project environment, relative to the
	// user cache directory, that holds the optimizer packages.
	DefaultJuliaProjectDir = "allocopt/julia-env"

	// SemioticOptURL and SemioticOptRev pin SemioticOpt.jl (v2.4.2).
	SemioticOptURL = "https://github.com/semiotic-ai/SemioticOpt.jl"
	SemioticOptRev = "8b3b127270a15402427883c577425d5a96c0fe98"

	// TheGraphDataURL and TheGraphDataRev pin TheGraphData.jl.
	TheGraphDataURL = "https://github.com/semiotic-ai/TheGraphData.jl"
	TheGraphDataRev = "2d674d72a541fae838c60417c92fb56fe1d92602"

	// AllocationOptURL and AllocationOptRev pin AllocationOpt.jl.
	AllocationOptURL = "https://github.com/graphprotocol/allocation-optimizer.git"
	AllocationOptRev = "ba26e3734d77fcf120b7f080469226896e44fd09"
)
