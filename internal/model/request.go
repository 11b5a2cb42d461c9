package model

import "encoding/json"

type CreateRecordRequest struct {
	Type     string            `json:"type"`
	ParentID string            `json:"parent_id"`
	Fields   Fields            `json:"fields"`
	Binaries map[string][]byte `json:"binaries,omitempty"`
	Position *int              `json:"position,omitempty"`

	TranslationLocked bool `json:"translation_locked,omitempty"`
}

type WriteRecordRequest struct {
	Fields          Fields            `json:"fields"`
	Binaries        map[string][]byte `json:"binaries,omitempty"`
	DraftOpen       *bool             `json:"draft_open,omitempty"`
	DefaultLanguage string            `json:"default_language,omitempty"`
	Languages       []string          `json:"languages,omitempty"`

	TranslationLocked *bool `json:"translation_locked,omitempty"`
}

type ReorderRequest struct {
	Position *int `json:"position"`
}

type AddDependentRequest struct {
	Kind     string          `json:"kind"`
	AssetRef string          `json:"asset_ref,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type SoftDeleteRequest struct {
	ForceClearing bool   `json:"force_clearing,omitempty"`
	ParentEntryID string `json:"parent_entry_id,omitempty"`
}
