package allocopt

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/semiotic-ai/allocopt/pkg/constants"
	"github.com/semiotic-ai/allocopt/pkg/grt"
	"github.com/semiotic-ai/allocopt/pkg/validation"
)

// Request holds the parameters of a single optimization run. Optional
// fields fall back to the documented defaults when nil or empty.
type Request struct {
	// IndexerAddress is the 0x-prefixed address of the indexer to optimize.
	IndexerAddress string
	// GasPerAllocation is the estimated cost of opening an allocation, in wei.
	GasPerAllocation *big.Int
	// AllocationLifetime is the number of epochs the allocations stay open.
	AllocationLifetime int
	// NetworkSubgraphEndpoint is the GraphQL URL of the network subgraph.
	NetworkSubgraphEndpoint string

	// MaxNewAllocations defaults to constants.DefaultMaxNewAllocations.
	MaxNewAllocations *int
	// TauFactor defaults to constants.DefaultTauFactor.
	TauFactor *float64
	// Blacklist lists deployments the optimizer must skip.
	Blacklist []string

	// Whitelist restricts the optimizer to the listed deployments.
	Whitelist []string
	// Pinnedlist lists deployments that always keep a minimal allocation.
	Pinnedlist []string
	// Frozenlist lists deployments whose current allocations are left alone.
	Frozenlist []string
	// MinSignal is the minimum curation signal, in wei, a deployment needs.
	// Defaults to constants.DefaultMinSignal GRT.
	MinSignal *big.Int
	// OptMode defaults to constants.OptModeOptimal.
	OptMode string
}

// Payload is the parameter set handed to the optimizer engine. Keys follow
// the optimizer's own configuration dictionary.
type Payload struct {
	ID                      string   `json:"id"`
	IndexerURL              string   `json:"indexer_url"`
	NetworkSubgraphEndpoint string   `json:"network_subgraph_endpoint"`
	Whitelist               []string `json:"whitelist"`
	Blacklist               []string `json:"blacklist"`
	Pinnedlist              []string `json:"pinnedlist"`
	Frozenlist              []string `json:"frozenlist"`
	AllocationLifetime      int      `json:"allocation_lifetime"`
	Gas                     string   `json:"gas"`
	MinSignal               string   `json:"min_signal"`
	MaxAllocations          int      `json:"max_allocations"`
	Tau                     float64  `json:"tau"`
	NumReportedOptions      int      `json:"num_reported_options"`
	OptMode                 string   `json:"opt_mode"`
	Verbose                 bool     `json:"verbose"`
	ReadDir                 *string  `json:"readdir"`
}

func paramErr(field string, format string, args ...interface{}) error {
	return &ParameterError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Payload validates the request, applies defaults and builds the engine
// payload. Every failure is a *ParameterError.
func (r Request) Payload() (Payload, error) {
	address, err := validation.NormalizeIndexerAddress(r.IndexerAddress)
	if err != nil {
		return Payload{}, &ParameterError{Field: "indexer_address", Err: err}
	}

	if r.GasPerAllocation == nil {
		return Payload{}, paramErr("grt_gas_per_allocation", "gas per allocation is required")
	}
	gas, err := grt.WeiToDecimal(r.GasPerAllocation)
	if err != nil {
		return Payload{}, &ParameterError{Field: "grt_gas_per_allocation", Err: err}
	}

	if r.AllocationLifetime <= 0 {
		return Payload{}, paramErr("allocation_lifetime", "allocation lifetime must be positive, got %d", r.AllocationLifetime)
	}

	if err := validation.ValidateEndpoint(r.NetworkSubgraphEndpoint); err != nil {
		return Payload{}, &ParameterError{Field: "thegraph_network_subgraph_endpoint", Err: err}
	}

	maxAllocations := constants.DefaultMaxNewAllocations
	if r.MaxNewAllocations != nil {
		if *r.MaxNewAllocations < 0 {
			return Payload{}, paramErr("max_new_allocations", "max new allocations must not be negative, got %d", *r.MaxNewAllocations)
		}
		maxAllocations = *r.MaxNewAllocations
	}

	tau := constants.DefaultTauFactor
	if r.TauFactor != nil {
		if err := validation.ValidateTauFactor(*r.TauFactor); err != nil {
			return Payload{}, &ParameterError{Field: "tau_factor", Err: err}
		}
		tau = *r.TauFactor
	}

	minSignal, err := grt.ParseDecimal(constants.DefaultMinSignal)
	if err != nil {
		return Payload{}, err
	}
	if r.MinSignal != nil {
		minSignal, err = grt.WeiToDecimal(r.MinSignal)
		if err != nil {
			return Payload{}, &ParameterError{Field: "min_signal", Err: err}
		}
	}

	optMode := strings.TrimSpace(r.OptMode)
	if optMode == "" {
		optMode = constants.OptModeOptimal
	}
	if err := validation.ValidateOptMode(optMode); err != nil {
		return Payload{}, &ParameterError{Field: "opt_mode", Err: err}
	}

	lists := []struct {
		name string
		ids  []string
	}{
		{"blacklist", r.Blacklist},
		{"whitelist", r.Whitelist},
		{"pinnedlist", r.Pinnedlist},
		{"frozenlist", r.Frozenlist},
	}
	normalized := make(map[string][]string, len(lists))
	for _, list := range lists {
		if err := validation.ValidateDeploymentIDs(list.name, list.ids); err != nil {
			return Payload{}, &ParameterError{Field: list.name, Err: err}
		}
		normalized[list.name] = dedupe(list.ids)
	}

	return Payload{
		ID:                      address,
		IndexerURL:              address,
		NetworkSubgraphEndpoint: strings.TrimSpace(r.NetworkSubgraphEndpoint),
		Whitelist:               normalized["whitelist"],
		Blacklist:               normalized["blacklist"],
		Pinnedlist:              normalized["pinnedlist"],
		Frozenlist:              normalized["frozenlist"],
		AllocationLifetime:      r.AllocationLifetime,
		Gas:                     gas.String(),
		MinSignal:               minSignal.String(),
		MaxAllocations:          maxAllocations,
		Tau:                     tau,
		NumReportedOptions:      constants.DefaultNumReportedOptions,
		OptMode:                 optMode,
		Verbose:                 true,
	}, nil
}

// dedupe keeps the first occurrence of each id and never returns nil, so
// an omitted list and an empty one produce the same payload.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
