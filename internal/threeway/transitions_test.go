package threeway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/threeway/internal/shared"
)

func TestNextStatusTable(t *testing.T) {
	statuses := []ExceptionStatus{StatusOpen, StatusPendingApproval, StatusApproved, StatusRejected, StatusResolved}
	actions := []Action{ActionSubmit, ActionApprove, ActionReject, ActionResolve, ActionAutoResolve, ActionRematch}
	allowed := map[ExceptionStatus]map[Action]ExceptionStatus{
		StatusOpen: {
			ActionSubmit:      StatusPendingApproval,
			ActionApprove:     StatusApproved,
			ActionReject:      StatusRejected,
			ActionResolve:     StatusResolved,
			ActionAutoResolve: StatusResolved,
		},
		StatusPendingApproval: {
			ActionApprove:     StatusApproved,
			ActionReject:      StatusRejected,
			ActionAutoResolve: StatusResolved,
			ActionRematch:     StatusOpen,
		},
		StatusApproved: {
			ActionResolve:     StatusResolved,
			ActionAutoResolve: StatusResolved,
			ActionRematch:     StatusOpen,
		},
	}
	for _, from := range statuses {
		for _, action := range actions {
			next, err := NextStatus(from, action)
			want, ok := allowed[from][action]
			if !ok {
				require.Error(t, err, "%s/%s", from, action)
				require.True(t, errors.Is(err, shared.ErrInvalidTransition))
				require.False(t, Can(from, action))
				continue
			}
			require.NoError(t, err, "%s/%s", from, action)
			require.Equal(t, want, next)
			require.True(t, Can(from, action))
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.True(t, StatusResolved.Terminal())
	require.True(t, StatusRejected.Terminal())
	require.False(t, StatusApproved.Terminal())
	require.False(t, ExceptionStatus("closed").Valid())
}
