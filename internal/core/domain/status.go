package domain

import "fmt"

var statusSuccessors = map[ProcessingStatus][]ProcessingStatus{
	StatusProcessing: {StatusAnalyzing, StatusComplete, StatusFailed},
	StatusAnalyzing:  {StatusComplete, StatusFailed},
}

func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusAnalyzing, StatusComplete, StatusFailed:
		return true
	default:
		return false
	}
}

func (s ProcessingStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to the next.
// Statuses only move forward along processing -> analyzing -> complete|failed.
// processing may skip analyzing since that write is best effort.
func CanTransition(from, to ProcessingStatus) bool {
	for _, next := range statusSuccessors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors lists the statuses from which to is reachable in one step.
func Predecessors(to ProcessingStatus) []ProcessingStatus {
	out := make([]ProcessingStatus, 0, 2)
	for _, from := range []ProcessingStatus{StatusProcessing, StatusAnalyzing} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

func ValidateTransition(from, to ProcessingStatus) error {
	if !to.Valid() {
		return WrapError(ErrInvalidInput, "validate status", fmt.Errorf("unknown status %q", to))
	}
	if !CanTransition(from, to) {
		return WrapError(ErrInvalidTransition, "validate status", fmt.Errorf("%s -> %s", from, to))
	}
	return nil
}
