package evaluation

import "time"

// States
const (
	StatePartial     = "partial" // being set up; not yet published
	StateInQueue     = "inqueue"
	StateActive      = "active"
	StateGracePeriod = "graceperiod"
	StateClosed      = "closed"
	StateViewable    = "viewable"
	StateDeleted     = "deleted"
)

var stateOrder = map[string]int{
	StatePartial:     0,
	StateInQueue:     1,
	StateActive:      2,
	StateGracePeriod: 3,
	StateClosed:      4,
	StateViewable:    5,
	StateDeleted:     6,
}

// DeriveState computes the state of e at now from its dates.
// The partial and deleted states are never left by derivation.
func DeriveState(e Evaluation, now time.Time) string {
	switch e.State {
	case StatePartial, StateDeleted:
		return e.State
	}
	switch {
	case now.Before(e.StartDate):
		return StateInQueue
	case e.DueDate == nil || now.Before(*e.DueDate):
		return StateActive
	case e.StopDate != nil && now.Before(*e.StopDate):
		return StateGracePeriod
	case e.ViewDate != nil && now.Before(*e.ViewDate):
		return StateClosed
	default:
		return StateViewable
	}
}

// IsBefore reports whether state comes strictly before other in the lifecycle.
func IsBefore(state, other string) bool {
	return stateOrder[state] < stateOrder[other]
}

// IsAfter reports whether state comes strictly after other in the lifecycle.
func IsAfter(state, other string) bool {
	return stateOrder[state] > stateOrder[other]
}

// IsOpen reports whether responses are accepted in this state.
func IsOpen(state string) bool {
	return state == StateActive || state == StateGracePeriod
}

// IsClosed reports whether the evaluation stopped taking responses for good.
func IsClosed(state string) bool {
	return state == StateClosed || state == StateViewable
}

// checkDates applies the date rules of a saved evaluation, filling defaults.
// A new evaluation starting in the past starts now.
func checkDates(e *Evaluation, now time.Time, isNew bool) error {
	if e.StartDate.IsZero() || (isNew && e.StartDate.Before(now)) {
		e.StartDate = now
	}
	if e.DueDate != nil && !e.DueDate.After(e.StartDate) {
		return errDueBeforeStart
	}
	if e.StopDate == nil {
		e.StopDate = e.DueDate
	} else {
		if e.DueDate == nil {
			return errStopWithoutDue
		}
		if e.StopDate.Before(*e.DueDate) {
			return errStopBeforeDue
		}
	}
	if e.ViewDate == nil {
		e.ViewDate = e.StopDate
	} else {
		if e.StopDate != nil && e.ViewDate.Before(*e.StopDate) {
			return errViewBeforeStop
		}
		if e.ViewDate.Before(e.StartDate) {
			return errViewBeforeStart
		}
	}
	return nil
}
