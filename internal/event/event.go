package event

type Type string

const (
	TypeRecordCreated    Type = "record.created"
	TypeRecordWritten    Type = "record.written"
	TypeRecordReordered  Type = "record.reordered"
	TypeRecordCloned     Type = "record.cloned"
	TypeOverlayApplied   Type = "overlay.applied"
	TypeOverlayDiscarded Type = "overlay.discarded"
	TypeDraftOpened      Type = "draft.opened"
	TypeDraftApplied     Type = "draft.applied"
	TypeDraftDiscarded   Type = "draft.discarded"
	TypeRecordTrashed    Type = "trash.created"
	TypeRecordRestored   Type = "trash.restored"
	TypeTrashCleared     Type = "trash.cleared"
	TypeTrashClearFailed Type = "trash.clear_failed"
	TypeSweepCompleted   Type = "trash.sweep_completed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	TenantID  string `json:"tenant_id,omitempty"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"` // Who triggered the event
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
