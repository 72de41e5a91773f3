// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// Genesis represents the genesis file. Every node of a network must load the
// same genesis so they agree on the signer set and the starting outputs.
type Genesis struct {
	Date        time.Time         `json:"date"`
	ChainID     uint16            `json:"chain_id"`    // The chain id represents an unique id for this running instance.
	Signers     []string          `json:"signers"`     // Addresses authorized to seal blocks.
	Threshold   int               `json:"threshold"`   // Number of distinct signers required on a block.
	Allocations map[string]uint64 `json:"allocations"` // Starting unspent outputs by address.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save validates the genesis and writes it to the specified path.
func (g Genesis) Save(path string) error {
	if err := g.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the genesis values are usable to start a chain.
func (g Genesis) Validate() error {
	if len(g.Signers) == 0 {
		return errors.New("genesis has no signers")
	}

	if g.Threshold < 0 || g.Threshold > len(g.Signers) {
		return fmt.Errorf("genesis threshold %d out of range for %d signers", g.Threshold, len(g.Signers))
	}

	return nil
}

// Required returns the number of distinct signers needed to seal a block.
func (g Genesis) Required() int {
	if g.Threshold <= 0 {
		return 1
	}
	return g.Threshold
}

// SortedAllocations returns the allocated addresses in the order their
// outputs are indexed.
func (g Genesis) SortedAllocations() []string {
	addrs := make([]string, 0, len(g.Allocations))
	for addr := range g.Allocations {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	return addrs
}
