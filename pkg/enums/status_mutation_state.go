package enums

import "slices"

// StatusMutationState tracks a seller status change while the backend call is outstanding.
type StatusMutationState string

const (
	StatusMutationPending    StatusMutationState = "pending"
	StatusMutationApplied    StatusMutationState = "applied"
	StatusMutationRolledBack StatusMutationState = "rolled_back"
)

var validStatusMutationStates = []StatusMutationState{
	StatusMutationPending,
	StatusMutationApplied,
	StatusMutationRolledBack,
}

func (s StatusMutationState) String() string {
	return string(s)
}

func (s StatusMutationState) IsValid() bool {
	return slices.Contains(validStatusMutationStates, s)
}
