package config

import (
	"math/big"
	"strings"

	"github.com/semiotic-ai/allocopt/internal/allocopt"
	"github.com/semiotic-ai/allocopt/internal/julia"
	"github.com/semiotic-ai/allocopt/pkg/grt"
)

// ToRequest converts the indexer section into an allocopt.Request. GRT
// amounts are converted to wei exactly; a malformed amount is reported as
// an *allocopt.ParameterError.
func (idx IndexerConfig) ToRequest() (allocopt.Request, error) {
	gas, err := grtToWei("grt_gas_per_allocation", idx.GasPerAllocation)
	if err != nil {
		return allocopt.Request{}, err
	}
	minSignal, err := grtToWei("min_signal", idx.MinSignal)
	if err != nil {
		return allocopt.Request{}, err
	}

	return allocopt.Request{
		IndexerAddress:          idx.Address,
		GasPerAllocation:        gas,
		AllocationLifetime:      idx.AllocationLifetime,
		NetworkSubgraphEndpoint: idx.NetworkSubgraphEndpoint,
		MaxNewAllocations:       idx.MaxNewAllocations,
		TauFactor:               idx.TauFactor,
		MinSignal:               minSignal,
		OptMode:                 strings.ToLower(strings.TrimSpace(idx.OptMode)),
		Blacklist:               idx.Blacklist,
		Whitelist:               idx.Whitelist,
		Pinnedlist:              idx.Pinnedlist,
		Frozenlist:              idx.Frozenlist,
	}, nil
}

// grtToWei leaves an empty value nil so the request applies its own
// default or rejects the missing field.
func grtToWei(field string, value GRTAmount) (*big.Int, error) {
	if strings.TrimSpace(string(value)) == "" {
		return nil, nil
	}
	amount, err := grt.ParseDecimal(string(value))
	if err != nil {
		return nil, &allocopt.ParameterError{Field: field, Err: err}
	}
	wei, err := grt.DecimalToWei(amount)
	if err != nil {
		return nil, &allocopt.ParameterError{Field: field, Err: err}
	}
	return wei, nil
}

// ToJuliaConfig converts the runtime section into a julia.Config. Packages
// fall back to the pinned defaults when none are configured.
func (rc RuntimeConfig) ToJuliaConfig() julia.Config {
	cfg := julia.Config{
		Binary:           rc.Binary,
		ProjectDir:       rc.ProjectDir,
		ProvisionCommand: append([]string(nil), rc.ProvisionCommand...),
		SkipInstall:      rc.SkipInstall,
	}
	if len(rc.Packages) > 0 {
		cfg.Packages = make([]julia.Package, 0, len(rc.Packages))
		for _, pkg := range rc.Packages {
			cfg.Packages = append(cfg.Packages, julia.Package{Name: pkg.Name, URL: pkg.URL, Rev: pkg.Rev})
		}
	}
	return cfg
}
