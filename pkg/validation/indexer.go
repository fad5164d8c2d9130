package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/semiotic-ai/allocopt/pkg/constants"
)

// NormalizeIndexerAddress validates an indexer's 0x-prefixed address and
// returns it lowercased, the form the network subgraph indexes it under.
// Mixed-case input must carry a valid EIP-55 checksum.
func NormalizeIndexerAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", fmt.Errorf("indexer address is required")
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return "", fmt.Errorf("indexer address %q must be 0x-prefixed", address)
	}
	if !common.IsHexAddress(trimmed) {
		return "", fmt.Errorf("indexer address %q is not a 20 byte hex address", address)
	}

	body := trimmed[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		mixed, err := common.NewMixedcaseAddressFromString(trimmed)
		if err != nil {
			return "", fmt.Errorf("indexer address %q: %w", address, err)
		}
		if !mixed.ValidChecksum() {
			return "", fmt.Errorf("indexer address %q has an invalid checksum", address)
		}
	}

	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}

// ValidateEndpoint checks that a network subgraph endpoint is an absolute
// http or https URL.
func ValidateEndpoint(endpoint string) error {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return fmt.Errorf("network subgraph endpoint is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("network subgraph endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("network subgraph endpoint %q must use http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("network subgraph endpoint %q has no host", endpoint)
	}
	return nil
}

// ValidateDeploymentID checks that id is a well-formed IPFS content
// identifier, the form subgraph deployments are addressed by.
func ValidateDeploymentID(id string) error {
	if strings.TrimSpace(id) != id || id == "" {
		return fmt.Errorf("deployment id %q is empty or padded", id)
	}
	if _, err := cid.Decode(id); err != nil {
		return fmt.Errorf("deployment id %q is not a valid content identifier: %w", id, err)
	}
	return nil
}

// ValidateDeploymentIDs validates every entry of a named deployment list.
func ValidateDeploymentIDs(listName string, ids []string) error {
	for i, id := range ids {
		if err := ValidateDeploymentID(id); err != nil {
			return fmt.Errorf("%s[%d]: %w", listName, i, err)
		}
	}
	return nil
}

// ValidateTauFactor checks that tau lies in the open interval (0, 1).
func ValidateTauFactor(tau float64) error {
	if !(tau > 0 && tau < 1) {
		return fmt.Errorf("tau factor %v must be between 0 and 1 exclusive", tau)
	}
	return nil
}

// ValidateOptMode checks the optimizer mode.
func ValidateOptMode(mode string) error {
	if mode != constants.OptModeOptimal && mode != constants.OptModeFast {
		return fmt.Errorf("expected optimizer mode of %s or %s, got %s",
			constants.OptModeOptimal, constants.OptModeFast, mode)
	}
	return nil
}
