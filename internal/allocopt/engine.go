package allocopt

import "encoding/json"

// Engine is the external optimizer behind the adapter. Implementations
// must be safe to call from the goroutine that invokes Optimizer.Allocate;
// the adapter adds no synchronization of its own.
type Engine interface {
	// EnsureReady locates or provisions the optimizer runtime. It is called
	// before every Optimize and must be cheap once the runtime is ready.
	EnsureReady() error

	// Optimize runs one optimization. Domain failures reported by the
	// optimizer should be returned as *OptimizationError.
	Optimize(payload Payload) (*RawResult, error)
}

// RawResult is the optimizer output as decoded from the boundary, before
// any amount is interpreted.
type RawResult struct {
	Strategies []RawStrategy `json:"strategies"`
}

// RawStrategy is one reported allocation strategy.
type RawStrategy struct {
	Allocations []RawAllocation `json:"allocations"`
}

// RawAllocation keeps the amount as raw JSON so that it is read as exact
// decimal text, whether the optimizer emitted a number or a string.
// Amounts are denominated in GRT.
type RawAllocation struct {
	DeploymentID string          `json:"deploymentID"`
	Amount       json.RawMessage `json:"allocationAmount"`
}
