// Package allocopt is the boundary adapter around the external indexer
// allocation optimizer. It validates a Request, hands it to an Engine exactly
// once and converts the engine output into exact wei amounts.
//
// Calls block until the engine returns and cannot be canceled. The adapter
// never retries; a failed call has to be reissued by the caller.
package allocopt

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Optimizer runs allocation optimizations through an Engine.
type Optimizer struct {
	logger *zap.Logger
	engine Engine
}

// NewOptimizer constructs an Optimizer backed by engine.
func NewOptimizer(logger *zap.Logger, engine Engine) (*Optimizer, error) {
	if engine == nil {
		return nil, fmt.Errorf("optimizer engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{logger: logger, engine: engine}, nil
}

// Allocate validates req, runs the optimizer and returns the amount to
// allocate per deployment, in wei.
func (o *Optimizer) Allocate(req Request) (Result, error) {
	payload, err := req.Payload()
	if err != nil {
		return nil, err
	}

	if err := o.engine.EnsureReady(); err != nil {
		if !errors.Is(err, ErrEnvironmentUnavailable) {
			err = &EnvironmentError{Err: err}
		}
		return nil, err
	}

	o.logger.Info("running allocation optimizer",
		zap.String("op", "allocopt.Allocate"),
		zap.String("indexer", payload.ID),
		zap.Int("allocationLifetime", payload.AllocationLifetime),
		zap.Int("maxAllocations", payload.MaxAllocations),
		zap.Float64("tau", payload.Tau),
		zap.String("optMode", payload.OptMode),
		zap.Int("blacklisted", len(payload.Blacklist)),
	)

	start := time.Now()
	raw, err := o.engine.Optimize(payload)
	if err != nil {
		return nil, classifyEngineError(err)
	}

	result, err := decodeResult(raw)
	if err != nil {
		return nil, err
	}

	o.logger.Info("allocation optimizer finished",
		zap.String("op", "allocopt.Allocate"),
		zap.Int("allocations", len(result)),
		zap.String("totalWei", result.Total().String()),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// classifyEngineError keeps already classified errors and treats anything
// else from the engine as an optimizer failure with its message intact.
func classifyEngineError(err error) error {
	for _, kind := range []error{ErrEnvironmentUnavailable, ErrOptimizationFailed, ErrMarshaling, ErrInvalidParameters} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &OptimizationError{Message: err.Error()}
}
