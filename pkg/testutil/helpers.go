// Package testutil provides test doubles and fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"sync"

	"github.com/semiotic-ai/allocopt/internal/allocopt"
)

// Fixtures used across package tests. The deployment IDs are valid CIDv0
// values and the indexer carries a valid EIP-55 checksum.
const (
	Indexer     = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	Endpoint    = "https://api.thegraph.com/subgraphs/name/graphprotocol/graph-network-arbitrum"
	DeploymentA = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	DeploymentB = "QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o"
)

// FakeEngine is an allocopt.Engine returning canned responses. It records
// every payload and is safe for concurrent use.
type FakeEngine struct {
	ReadyErr    error
	Result      *allocopt.RawResult
	OptimizeErr error

	mu       sync.Mutex
	payloads []allocopt.Payload
}

// EnsureReady returns ReadyErr.
func (f *FakeEngine) EnsureReady() error {
	return f.ReadyErr
}

// Optimize records payload and returns Result and OptimizeErr.
func (f *FakeEngine) Optimize(payload allocopt.Payload) (*allocopt.RawResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.Result, f.OptimizeErr
}

// Payloads returns a copy of the payloads passed to Optimize.
func (f *FakeEngine) Payloads() []allocopt.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]allocopt.Payload(nil), f.payloads...)
}

// Calls returns the number of Optimize calls.
func (f *FakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

// Strategy builds a result holding a single strategy with allocs.
func Strategy(allocs ...allocopt.RawAllocation) *allocopt.RawResult {
	if allocs == nil {
		allocs = []allocopt.RawAllocation{}
	}
	return &allocopt.RawResult{Strategies: []allocopt.RawStrategy{{Allocations: allocs}}}
}

// Allocation builds a raw allocation. amount is raw JSON, e.g. `"1.5"` or `2`.
func Allocation(deploymentID, amount string) allocopt.RawAllocation {
	return allocopt.RawAllocation{DeploymentID: deploymentID, Amount: json.RawMessage(amount)}
}
