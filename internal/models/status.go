package models

type Status string

const (
	StatusRequested  Status = "requested"
	StatusAssigned   Status = "assigned"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

var statusRank = map[Status]int{
	StatusRequested:  0,
	StatusAssigned:   1,
	StatusAccepted:   2,
	StatusInProgress: 3,
	StatusCompleted:  4,
}

// Known reports whether s is part of the ride status enum.
func (s Status) Known() bool {
	if s == StatusRejected {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanAdvance reports whether a ride may move from one status to another.
// Statuses only move forward along the enum order; rejected is reachable
// from assigned alone and is terminal. Staying in place is allowed, and
// statuses outside the enum are passed through untouched.
func CanAdvance(from, to Status) bool {
	if from == to {
		return true
	}
	if !from.Known() || !to.Known() {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == StatusRejected {
		return from == StatusAssigned
	}
	return statusRank[to] > statusRank[from]
}
