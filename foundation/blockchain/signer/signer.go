// Package signer implements the policy deciding which keys may seal blocks.
package signer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
)

// Set of errors produced by a policy.
var (
	ErrInvalidSignature = errors.New("block proof does not satisfy the signer set")
	ErrNotAuthorized    = errors.New("node keys are not authorized to seal blocks")
)

// Policy represents the behavior required to decide who can seal a block.
type Policy interface {
	Authorized(accountID database.AccountID) bool
	Required() int
	Verify(block database.Block) error
}

// =============================================================================

// Set is a k-of-n policy over a fixed set of accounts. A block is authorized
// when its seals recover to at least k distinct members of the set.
type Set struct {
	members  map[string]database.AccountID
	required int
}

// NewSet constructs a set from the member accounts and the number of
// distinct members required on a block.
func NewSet(members []string, required int) (*Set, error) {
	set := Set{
		members:  make(map[string]database.AccountID, len(members)),
		required: required,
	}

	for _, member := range members {
		accountID, err := database.ToAccountID(member)
		if err != nil {
			return nil, fmt.Errorf("signer %q: %w", member, err)
		}
		set.members[key(accountID)] = accountID
	}

	if required < 1 || required > len(set.members) {
		return nil, fmt.Errorf("required signers %d out of range for %d members", required, len(set.members))
	}

	return &set, nil
}

// Authorized reports whether the account is a member of the set.
func (s *Set) Authorized(accountID database.AccountID) bool {
	_, exists := s.members[key(accountID)]
	return exists
}

// Required returns the number of distinct members needed on a block.
func (s *Set) Required() int {
	return s.required
}

// Members returns the accounts in the set.
func (s *Set) Members() []database.AccountID {
	members := make([]database.AccountID, 0, len(s.members))
	for _, accountID := range s.members {
		members = append(members, accountID)
	}

	return members
}

// Verify recovers the signer of every seal and checks that enough distinct
// members sealed the block header. Seals by non members are ignored but a
// seal that can't be recovered fails the block.
func (s *Set) Verify(block database.Block) error {
	signers := make(map[string]struct{})
	for i, seal := range block.Proof {
		accountID, err := seal.Signer(block.Header)
		if err != nil {
			return fmt.Errorf("%w: seal[%d]: %s", ErrInvalidSignature, i, err)
		}

		if s.Authorized(accountID) {
			signers[key(accountID)] = struct{}{}
		}
	}

	if len(signers) < s.required {
		return fmt.Errorf("%w: %d of %d required signers", ErrInvalidSignature, len(signers), s.required)
	}

	return nil
}

// key normalizes the account for the membership map.
func key(accountID database.AccountID) string {
	return strings.ToLower(string(accountID))
}
