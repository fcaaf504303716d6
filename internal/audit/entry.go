package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action mengidentifikasi jenis aksi yang tercatat pada log audit.
type Action string

const (
	ActionReceive Action = "receive"
	ActionMatch   Action = "match"
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionResolve Action = "resolve"
)

// Valid memeriksa apakah aksi dikenal.
func (a Action) Valid() bool {
	switch a {
	case ActionReceive, ActionMatch, ActionSubmit, ActionApprove, ActionReject, ActionResolve:
		return true
	}
	return false
}

// Entry adalah satu baris log audit yang tidak dapat diubah.
type Entry struct {
	ID      uuid.UUID      `json:"id"`
	POID    int64          `json:"po_id"`
	Action  Action         `json:"action"`
	ActorID int64          `json:"actor_id"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// NewEntry membangun entry baru dengan id dan waktu UTC.
func NewEntry(poID int64, action Action, actorID int64, payload map[string]any, at time.Time) Entry {
	if payload == nil {
		payload = map[string]any{}
	}
	return Entry{
		ID:      uuid.New(),
		POID:    poID,
		Action:  action,
		ActorID: actorID,
		Payload: payload,
		At:      at.UTC(),
	}
}
