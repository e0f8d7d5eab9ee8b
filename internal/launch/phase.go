package launch

import "fmt"

// PhaseKind is a state of the launch state machine.
type PhaseKind int

const (
	PhaseIdle PhaseKind = iota
	PhaseValidatingAsset
	PhasePublishingMetadata
	PhaseNegotiatingFees
	PhaseAuthorizingConfig
	PhaseBuildingLaunchTx
	PhaseAwaitingSignature
	PhaseSubmittingTx
	PhaseConfirmingTx
	PhasePersisting
	PhaseSuccess
	PhaseFailed
)

var phaseNames = map[PhaseKind]string{
	PhaseIdle:               "Idle",
	PhaseValidatingAsset:    "ValidatingAsset",
	PhasePublishingMetadata: "PublishingMetadata",
	PhaseNegotiatingFees:    "NegotiatingFees",
	PhaseAuthorizingConfig:  "AuthorizingConfig",
	PhaseBuildingLaunchTx:   "BuildingLaunchTx",
	PhaseAwaitingSignature:  "AwaitingSignature",
	PhaseSubmittingTx:       "SubmittingTx",
	PhaseConfirmingTx:       "ConfirmingTx",
	PhasePersisting:         "Persisting",
	PhaseSuccess:            "Success",
	PhaseFailed:             "Failed",
}

func (k PhaseKind) String() string {
	if s, ok := phaseNames[k]; ok {
		return s
	}
	return fmt.Sprintf("PhaseKind(%d)", int(k))
}

// Phase is a state plus its context. Step and Total are set while
// authorizing fee-configuration transactions (1-based); Err on Failed.
type Phase struct {
	Kind  PhaseKind
	Step  int
	Total int
	Err   error
}

// Terminal reports whether no further transitions follow.
func (p Phase) Terminal() bool {
	return p.Kind == PhaseSuccess || p.Kind == PhaseFailed
}

func (p Phase) String() string {
	if p.Kind == PhaseAuthorizingConfig {
		return fmt.Sprintf("%s(%d/%d)", p.Kind, p.Step, p.Total)
	}
	return p.Kind.String()
}

// PhaseObserver receives every state transition, in order.
type PhaseObserver func(Phase)
