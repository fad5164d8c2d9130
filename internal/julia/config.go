package julia

import (
	"os"
	"path/filepath"

	"github.com/semiotic-ai/allocopt/pkg/constants"
)

// Package identifies a Julia package to install. An empty URL installs the
// package by name from the General registry.
type Package struct {
	Name string
	URL  string
	Rev  string
}

// Config controls how the Julia runtime is located and prepared.
type Config struct {
	// Binary is the julia executable, either a name looked up on PATH or a path.
	Binary string
	// ProjectDir is the Julia project environment the packages live in.
	ProjectDir string
	// ProvisionCommand, when set, is run once if Binary cannot be found.
	ProvisionCommand []string
	// SkipInstall assumes the packages are already present in ProjectDir.
	SkipInstall bool
	// Packages are installed, in order, on first use.
	Packages []Package
}

// DefaultPackages returns the optimizer packages at their pinned revisions.
func DefaultPackages() []Package {
	return []Package{
		{Name: "SemioticOpt", URL: constants.SemioticOptURL, Rev: constants.SemioticOptRev},
		{Name: "TheGraphData", URL: constants.TheGraphDataURL, Rev: constants.TheGraphDataRev},
		{Name: "AllocationOpt", URL: constants.AllocationOptURL, Rev: constants.AllocationOptRev},
		{Name: "JSON"},
	}
}

// DefaultProjectDir returns the project environment under the user cache
// directory, falling back to the system temp directory.
func DefaultProjectDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, filepath.FromSlash(constants.DefaultJuliaProjectDir))
}

// DefaultConfig returns a Config that finds julia on PATH and installs the
// pinned optimizer packages into DefaultProjectDir.
func DefaultConfig() Config {
	return Config{
		Binary:     constants.DefaultJuliaBinary,
		ProjectDir: DefaultProjectDir(),
		Packages:   DefaultPackages(),
	}
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = constants.DefaultJuliaBinary
	}
	if c.ProjectDir == "" {
		c.ProjectDir = DefaultProjectDir()
	}
	if c.Packages == nil {
		c.Packages = DefaultPackages()
	}
	return c
}

func (c Config) installArgs() []string {
	args := make([]string, 0, len(c.Packages)*3)
	for _, pkg := range c.Packages {
		args = append(args, pkg.Name, pkg.URL, pkg.Rev)
	}
	return args
}
