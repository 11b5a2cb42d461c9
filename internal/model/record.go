package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntityType tags every record that participates in drafting.
type EntityType string

const (
	EntityWorkspace EntityType = "workspace"
	EntitySurvey    EntityType = "survey"
	EntityDriver    EntityType = "driver"
	EntitySection   EntityType = "section"
	EntityItem      EntityType = "item"
	EntityQuestion  EntityType = "question"
	EntityOption    EntityType = "option"
	EntityRow       EntityType = "row"
	EntityColumn    EntityType = "column"
	EntityLogic     EntityType = "logic"
)

var entityTypes = []EntityType{
	EntityWorkspace, EntitySurvey, EntityDriver, EntitySection, EntityItem,
	EntityQuestion, EntityOption, EntityRow, EntityColumn, EntityLogic,
}

func ParseEntityType(raw string) (EntityType, error) {
	normalized := EntityType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range entityTypes {
		if t == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown entity type %q", ErrValidation, raw)
}

// ParentType returns the structural owner type, or "" for roots.
func (t EntityType) ParentType() EntityType {
	switch t {
	case EntitySurvey:
		return EntityWorkspace
	case EntityDriver, EntitySection:
		return EntitySurvey
	case EntityItem:
		return EntitySection
	case EntityQuestion:
		return EntityItem
	case EntityOption, EntityRow, EntityColumn, EntityLogic:
		return EntityQuestion
	default:
		return ""
	}
}

// IsStructuralRoot reports whether deleting the entity skips the grace period.
func (t EntityType) IsStructuralRoot() bool {
	return t == EntityWorkspace
}

// Ref identifies a record.
type Ref struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

func (r Ref) String() string {
	return string(r.Type) + ":" + r.ID
}

// ParentKeyFor builds the sibling collection key for children of type child
// owned by parentID.
func ParentKeyFor(parentID string, child EntityType) string {
	return parentID + "/" + string(child)
}

// Fields is a published field set or a sparse overlay patch.
type Fields map[string]any

func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge writes every key of patch into f. A nil value deletes the key.
func (f Fields) Merge(patch Fields) Fields {
	if f == nil {
		f = Fields{}
	}
	for k, v := range patch {
		if v == nil {
			delete(f, k)
			continue
		}
		f[k] = v
	}
	return f
}

func (f Fields) String(key string) string {
	v, _ := f[key].(string)
	return v
}

// Record is a persistent entity that participates in drafting.
type Record struct {
	ID                 string     `json:"id"`
	Type               EntityType `json:"type"`
	TenantID           string     `json:"tenant_id"`
	ParentID           string     `json:"parent_id,omitempty"`
	ParentKey          string     `json:"parent_key"`
	ScopeID            string     `json:"scope_id,omitempty"`
	SortKey            float64    `json:"sort_key"`
	OverlaySortKey     *float64   `json:"overlay_sort_key,omitempty"`
	Published          Fields     `json:"published"`
	Overlay            Fields     `json:"overlay,omitempty"`
	InDraft            bool       `json:"in_draft"`
	DraftRemove        bool       `json:"draft_remove"`
	InTrash            bool       `json:"in_trash"`
	DraftOpen          bool       `json:"draft_open,omitempty"`
	TranslationLocked  bool       `json:"translation_locked"`
	TranslationChanged bool       `json:"translation_changed"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (r Record) Ref() Ref {
	return Ref{Type: r.Type, ID: r.ID}
}

// EffectiveSortKey resolves the overlay key over the published one.
func (r Record) EffectiveSortKey() float64 {
	if r.OverlaySortKey != nil {
		return *r.OverlaySortKey
	}
	return r.SortKey
}

// Hidden reports whether the record is excluded from the visible-view.
func (r Record) Hidden() bool {
	return r.DraftRemove || r.InTrash
}

// HasOverlay reports whether any overlay state is pending.
func (r Record) HasOverlay() bool {
	return len(r.Overlay) > 0 || r.OverlaySortKey != nil
}

// Effective returns the published fields with the overlay applied on top.
func (r Record) Effective() Fields {
	out := r.Published.Clone()
	if out == nil {
		out = Fields{}
	}
	for k, v := range r.Overlay {
		out[k] = v
	}
	return out
}

// Clone returns a deep-enough copy for snapshot isolation.
func (r Record) Clone() Record {
	out := r
	out.Published = r.Published.Clone()
	out.Overlay = r.Overlay.Clone()
	if r.OverlaySortKey != nil {
		key := *r.OverlaySortKey
		out.OverlaySortKey = &key
	}
	return out
}

// RecordView is the effective (overlay-resolved) view returned to callers.
type RecordView struct {
	ID          string     `json:"id"`
	Type        EntityType `json:"type"`
	ParentID    string     `json:"parent_id,omitempty"`
	SortKey     float64    `json:"sort_key"`
	Fields      Fields     `json:"fields"`
	InDraft     bool       `json:"in_draft"`
	DraftRemove bool       `json:"draft_remove"`
	HasOverlay  bool       `json:"has_overlay"`
	Locked      bool       `json:"translation_locked,omitempty"`
}

func (r Record) View() RecordView {
	return RecordView{
		ID:          r.ID,
		Type:        r.Type,
		ParentID:    r.ParentID,
		SortKey:     r.EffectiveSortKey(),
		Fields:      r.Effective(),
		InDraft:     r.InDraft,
		DraftRemove: r.DraftRemove,
		HasOverlay:  r.HasOverlay(),
		Locked:      r.TranslationLocked,
	}
}

// DependentKind tags non-versioned records owned by a versioned one.
type DependentKind string

const (
	DependentResult    DependentKind = "result"
	DependentInvite    DependentKind = "invite"
	DependentTheme     DependentKind = "theme"
	DependentStatistic DependentKind = "statistic"
	DependentItemRef   DependentKind = "item_ref"
)

// Dependent is hard-deleted together with its owner when the owner is cleared.
type Dependent struct {
	ID        string          `json:"id"`
	Kind      DependentKind   `json:"kind"`
	OwnerID   string          `json:"owner_id"`
	TenantID  string          `json:"tenant_id"`
	AssetRef  string          `json:"asset_ref,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
