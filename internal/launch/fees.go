package launch

import (
	"fmt"
	"strings"

	"larpx402/internal/domain"
)

const (
	TotalBasisPoints      = 10000
	MinCreatorBasisPoints = 100
	MaxClaimantBasisTotal = TotalBasisPoints - MinCreatorBasisPoints
)

// FeeConfigOutcome is the result of fee negotiation: either DirectConfig or
// SetupRequired.
type FeeConfigOutcome interface {
	ConfigKey() string
	isFeeConfigOutcome()
}

// DirectConfig means the configuration already exists on chain.
type DirectConfig struct {
	Key string
}

// SetupRequired lists the configuration transactions to authorize, in order,
// before the launch can use Key.
type SetupRequired struct {
	Key                 string
	PendingTransactions []string // base58 encoded
}

func (d DirectConfig) ConfigKey() string  { return d.Key }
func (s SetupRequired) ConfigKey() string { return s.Key }

func (DirectConfig) isFeeConfigOutcome()  {}
func (SetupRequired) isFeeConfigOutcome() {}

// CreatorShare validates claimants and returns the creator's basis points.
// The creator keeps 10000 minus the claimants' total and must keep at least 100.
func CreatorShare(claimants []domain.FeeClaimant, creator string) (int, error) {
	total := 0
	seen := make(map[string]struct{}, len(claimants))
	for i, c := range claimants {
		id := strings.TrimSpace(c.IdentityRef)
		if id == "" {
			return 0, feeSplitError("claimant %d has no identity", i)
		}
		if c.BasisPoints <= 0 {
			return 0, feeSplitError("claimant %s has non-positive share %d", id, c.BasisPoints)
		}
		if id == creator {
			return 0, feeSplitError("creator cannot also be listed as claimant")
		}
		if _, dup := seen[id]; dup {
			return 0, feeSplitError("claimant %s listed twice", id)
		}
		seen[id] = struct{}{}

		if c.BasisPoints > MaxClaimantBasisTotal-total {
			return 0, feeSplitError("claimant shares exceed %d bps", MaxClaimantBasisTotal)
		}
		total += c.BasisPoints
	}
	return TotalBasisPoints - total, nil
}

func feeSplitError(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInvalidFeeSplit,
		Stage:   StageNegotiate,
		Field:   "feeClaimants",
		Message: fmt.Sprintf(format, args...),
	}
}
