package allocopt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/semiotic-ai/allocopt/pkg/grt"
	"github.com/semiotic-ai/allocopt/pkg/validation"
	"github.com/shopspring/decimal"
)

// Result maps subgraph deployment IDs to the amount to allocate, in wei.
type Result map[string]*big.Int

// DeploymentIDs returns the result keys in lexical order.
func (r Result) DeploymentIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Total returns the sum of all amounts, in wei.
func (r Result) Total() *big.Int {
	total := new(big.Int)
	for _, amount := range r {
		total.Add(total, amount)
	}
	return total
}

// decodeResult turns the single strategy of raw into a Result.
func decodeResult(raw *RawResult) (Result, error) {
	if raw == nil {
		return nil, &MarshalingError{Err: errors.New("no result returned")}
	}
	if len(raw.Strategies) != 1 {
		return nil, &MarshalingError{
			Path: "strategies",
			Err:  fmt.Errorf("expected exactly one strategy, got %d", len(raw.Strategies)),
		}
	}

	allocations := raw.Strategies[0].Allocations
	result := make(Result, len(allocations))
	for i, alloc := range allocations {
		path := fmt.Sprintf("strategies[0].allocations[%d]", i)

		if err := validation.ValidateDeploymentID(alloc.DeploymentID); err != nil {
			return nil, &MarshalingError{Path: path + ".deploymentID", Err: err}
		}
		if _, dup := result[alloc.DeploymentID]; dup {
			return nil, &MarshalingError{
				Path: path + ".deploymentID",
				Err:  fmt.Errorf("duplicate deployment %s", alloc.DeploymentID),
			}
		}

		amount, err := parseRawAmount(alloc.Amount)
		if err != nil {
			return nil, &MarshalingError{Path: path + ".allocationAmount", Err: err}
		}
		wei, err := grt.DecimalToWei(amount)
		if err != nil {
			return nil, &MarshalingError{Path: path + ".allocationAmount", Err: err}
		}
		result[alloc.DeploymentID] = wei
	}

	return result, nil
}

// parseRawAmount reads a JSON number or string as exact decimal text.
func parseRawAmount(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return decimal.Zero, errors.New("missing amount")
	}

	var text string
	switch c := trimmed[0]; {
	case c == '"':
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return decimal.Zero, fmt.Errorf("malformed amount string: %w", err)
		}
	case c == '-' || (c >= '0' && c <= '9'):
		text = string(trimmed)
	default:
		return decimal.Zero, fmt.Errorf("amount %s is not numeric", string(trimmed))
	}

	amount, err := grt.ParseDecimal(text)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("negative amount %s", text)
	}
	return amount, nil
}
