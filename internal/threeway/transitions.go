package threeway

import (
	"fmt"

	"github.com/odyssey-erp/threeway/internal/shared"
)

// Action drives an exception between statuses.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionResolve     Action = "resolve"
	ActionAutoResolve Action = "auto_resolve"
	ActionRematch     Action = "rematch"
)

type transition struct {
	from   ExceptionStatus
	action Action
}

var transitions = map[transition]ExceptionStatus{
	{StatusOpen, ActionSubmit}: StatusPendingApproval,

	{StatusOpen, ActionApprove}:            StatusApproved,
	{StatusPendingApproval, ActionApprove}: StatusApproved,

	{StatusOpen, ActionReject}:            StatusRejected,
	{StatusPendingApproval, ActionReject}: StatusRejected,

	{StatusOpen, ActionResolve}:     StatusResolved,
	{StatusApproved, ActionResolve}: StatusResolved,

	{StatusOpen, ActionAutoResolve}:            StatusResolved,
	{StatusPendingApproval, ActionAutoResolve}: StatusResolved,
	{StatusApproved, ActionAutoResolve}:        StatusResolved,

	{StatusPendingApproval, ActionRematch}: StatusOpen,
	{StatusApproved, ActionRematch}:        StatusOpen,
}

// NextStatus returns the status reached by applying action to from.
func NextStatus(from ExceptionStatus, action Action) (ExceptionStatus, error) {
	next, ok := transitions[transition{from: from, action: action}]
	if !ok {
		return "", fmt.Errorf("threeway: cannot %s exception in status %s: %w", action, from, shared.ErrInvalidTransition)
	}
	return next, nil
}

// Can reports whether action applies to status.
func Can(from ExceptionStatus, action Action) bool {
	_, ok := transitions[transition{from: from, action: action}]
	return ok
}
