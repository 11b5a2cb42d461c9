package model

import (
	"fmt"
	"strings"
	"time"
)

// TrashStage is the lifecycle stage of a trash ledger entry.
type TrashStage string

const (
	StageInitial  TrashStage = "initial"
	StageInDraft  TrashStage = "inDraft"
	StageClearing TrashStage = "clearing"
)

func ParseTrashStage(raw string) (TrashStage, error) {
	switch strings.TrimSpace(raw) {
	case string(StageInitial):
		return StageInitial, nil
	case string(StageInDraft):
		return StageInDraft, nil
	case string(StageClearing):
		return StageClearing, nil
	}
	return "", fmt.Errorf("%w: unknown trash stage %q", ErrValidation, raw)
}

// TrashEntry tracks one soft-deleted record.
type TrashEntry struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	TargetType    EntityType `json:"target_type"`
	TargetID      string     `json:"target_id"`
	Stage         TrashStage `json:"stage"`
	DraftScope    string     `json:"draft_scope,omitempty"`
	ParentEntryID string     `json:"parent_entry_id,omitempty"`
	OwnerChain    []Ref      `json:"owner_chain,omitempty"`
	ExpireAt      time.Time  `json:"expire_at"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	DeletedBy     string     `json:"deleted_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (e TrashEntry) Target() Ref {
	return Ref{Type: e.TargetType, ID: e.TargetID}
}

// TrashFilter narrows ledger listings.
type TrashFilter struct {
	TenantID   string
	Stage      TrashStage
	DraftScope string
}

// SweepReport summarizes one background sweep.
type SweepReport struct {
	Promoted int      `json:"promoted"`
	Cleared  int      `json:"cleared"`
	Failed   int      `json:"failed"`
	Stuck    []string `json:"stuck,omitempty"`
}
