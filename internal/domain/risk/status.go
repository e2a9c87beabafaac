package risk

import "fmt"

// RiskStatus tracks evaluation progress. It is independent of the RiskCategory outcome.
type RiskStatus string

const (
	RiskStatusPending    RiskStatus = "PENDING"
	RiskStatusProcessing RiskStatus = "PROCESSING"
	RiskStatusCalculated RiskStatus = "CALCULATED"
	RiskStatusFailed     RiskStatus = "FAILED"
)

var allowedTransitions = map[RiskStatus][]RiskStatus{
	RiskStatusPending:    {RiskStatusProcessing},
	RiskStatusProcessing: {RiskStatusCalculated, RiskStatusFailed},
	RiskStatusCalculated: {RiskStatusProcessing},
	RiskStatusFailed:     {RiskStatusProcessing},
}

// ValidTransition reports whether from -> to is a legal status change.
// Staying in the same status is not a transition and is rejected here.
func ValidTransition(from, to RiskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Enterable returns the statuses from which an entity may be moved to `to`.
func Enterable(to RiskStatus) []RiskStatus {
	var out []RiskStatus
	for _, from := range []RiskStatus{RiskStatusPending, RiskStatusProcessing, RiskStatusCalculated, RiskStatusFailed} {
		if ValidTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// AttemptStartable lists the statuses an evaluation attempt may start from.
// It is every status that can legally enter PROCESSING plus PROCESSING itself:
// a newer trigger takes over an in-flight attempt, whose guarded result write
// then matches nothing. This takeover is the one deliberate exception to
// ValidTransition.
func AttemptStartable() []RiskStatus {
	return append(Enterable(RiskStatusProcessing), RiskStatusProcessing)
}

// CheckAttemptStart returns an *InvalidTransitionError when no attempt can start from `from`.
func CheckAttemptStart(from RiskStatus) error {
	if from.Valid() {
		for _, s := range AttemptStartable() {
			if s == from {
				return nil
			}
		}
	}
	return &InvalidTransitionError{From: from, To: RiskStatusProcessing}
}

// Valid reports whether s is one of the four known statuses.
func (s RiskStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s RiskStatus) String() string { return string(s) }

type InvalidTransitionError struct {
	From RiskStatus
	To   RiskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid risk status transition %s -> %s", e.From, e.To)
}
