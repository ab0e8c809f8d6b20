package media

// Status is where an item currently sits in its lifecycle.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusWaiting    Status = "waiting"
	StatusConverting Status = "converting"
	StatusMoving     Status = "moving"
	StatusDeleting   Status = "deleting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

var knownStatuses = map[Status]struct{}{
	StatusDiscovered: {}, StatusWaiting: {}, StatusConverting: {},
	StatusMoving: {}, StatusDeleting: {}, StatusSucceeded: {}, StatusFailed: {},
}

// ParseStatus maps a stored status string back to a Status. The boolean
// reports whether the string names a known status.
func ParseStatus(s string) (Status, bool) {
	status := Status(s)
	_, ok := knownStatuses[status]
	return status, ok
}

// Terminal reports whether no further phase will run for this status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Phase names one unit of external work performed on an item.
type Phase string

const (
	PhaseConverting Phase = "converting"
	PhaseMoving     Phase = "moving"
	PhaseDeleting   Phase = "deleting"
)

// Outcome is the result of running a phase.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Dispatch picks the first phase for an item of the given kind. Kinds that
// skip conversion start at the move; kinds with nothing to do fail rather
// than wedge the worker.
func Dispatch(kind Kind) Status {
	switch {
	case kind.Convertible():
		return StatusConverting
	case kind.Relocatable():
		return StatusMoving
	default:
		return StatusFailed
	}
}

// PhaseStatus returns the in-progress status for a phase.
func PhaseStatus(phase Phase) Status {
	switch phase {
	case PhaseConverting:
		return StatusConverting
	case PhaseMoving:
		return StatusMoving
	case PhaseDeleting:
		return StatusDeleting
	default:
		return StatusFailed
	}
}

// Next advances an item after a phase completes. The function is total:
// any failure, any unknown phase, and any phase reported against a status
// it could not have been running under all land on StatusFailed, so a
// buggy caller can never park an item in a non-terminal state forever.
func Next(current Status, phase Phase, outcome Outcome) Status {
	if outcome != OutcomeSuccess {
		return StatusFailed
	}
	if current != PhaseStatus(phase) {
		return StatusFailed
	}
	switch phase {
	case PhaseConverting:
		return StatusMoving
	case PhaseMoving, PhaseDeleting:
		return StatusSucceeded
	default:
		return StatusFailed
	}
}
