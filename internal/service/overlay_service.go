package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"survey-engine/internal/assets"
	"survey-engine/internal/event"
	"survey-engine/internal/model"
	"survey-engine/internal/ordering"
	"survey-engine/internal/repository"
)

// OverlayService decides whether an edit lands in the published fields or the
// draft overlay, and promotes or drops overlays across a subtree.
type OverlayService struct {
	store    repository.Store
	bus      event.Bus
	collab   Collaborators
	settings Settings
}

func NewOverlayService(store repository.Store, bus event.Bus, collab Collaborators, settings Settings) *OverlayService {
	return &OverlayService{
		store:    store,
		bus:      bus,
		collab:   collab.withDefaults(),
		settings: settings.withDefaults(),
	}
}

// WriteOptions controls one field write. A nil DraftOpen resolves the draft
// state from the record's scope. A non-nil TranslationLocked sets the lock
// before translation runs, so a write may carry only the lock change.
type WriteOptions struct {
	DraftOpen         *bool
	DefaultLanguage   string
	Languages         []string
	TranslationLocked *bool
}

// CreateInput describes a new record. Position is the visible index to insert
// after; nil appends.
type CreateInput struct {
	TenantID string
	Type     model.EntityType
	ParentID string
	Fields   model.Fields
	Position *int

	TranslationLocked bool
}

func (s *OverlayService) Get(ctx context.Context, id string) (model.RecordView, error) {
	var view model.RecordView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rec, err := loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		view = rec.View()
		return nil
	})
	return view, err
}

// Children returns the children of parentID with type child in effective
// order. Hidden members are included only when includeHidden is set.
func (s *OverlayService) Children(ctx context.Context, parentID string, child model.EntityType, includeHidden bool) ([]model.RecordView, error) {
	var views []model.RecordView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		parent, err := loadRecord(ctx, tx, parentID)
		if err != nil {
			return err
		}
		if child.ParentType() != parent.Type {
			return fmt.Errorf("%w: %s does not own %s records", model.ErrValidation, parent.Type, child)
		}
		kids, err := repository.ListChildren(ctx, tx, parentID, child)
		if err != nil {
			return err
		}
		views = make([]model.RecordView, 0, len(kids))
		for _, kid := range kids {
			if kid.Hidden() && !includeHidden {
				continue
			}
			views = append(views, kid.View())
		}
		return nil
	})
	return views, err
}

func (s *OverlayService) Create(ctx context.Context, in CreateInput) (model.RecordView, error) {
	if in.Type == "" {
		return model.RecordView{}, fmt.Errorf("%w: type is required", model.ErrValidation)
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return model.RecordView{}, fmt.Errorf("%w: tenant is required", model.ErrValidation)
	}
	if in.Type == model.EntityWorkspace && in.ParentID != "" {
		return model.RecordView{}, fmt.Errorf("%w: workspaces have no parent", model.ErrValidation)
	}
	if in.Type != model.EntityWorkspace && in.ParentID == "" {
		return model.RecordView{}, fmt.Errorf("%w: parent_id is required for %s", model.ErrValidation, in.Type)
	}

	fields, uploaded, err := s.uploadBinaries(ctx, in.TenantID, in.Fields)
	if err != nil {
		return model.RecordView{}, err
	}

	now := time.Now().UTC()
	rec := model.Record{
		ID:        uuid.NewString(),
		Type:      in.Type,
		TenantID:  in.TenantID,
		ParentID:  in.ParentID,
		ParentKey: model.ParentKeyFor(in.ParentID, in.Type),
		CreatedAt: now,
		UpdatedAt: now,

		TranslationLocked: in.TranslationLocked,
	}
	if in.Type == model.EntityWorkspace {
		rec.ParentKey = model.ParentKeyFor(in.TenantID, in.Type)
	}
	var handle LimitHandle

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		open := false
		switch in.Type {
		case model.EntityWorkspace:
		case model.EntitySurvey:
			rec.ScopeID = rec.ID
			if _, err := s.loadParent(ctx, tx, rec); err != nil {
				return err
			}
		default:
			parent, err := s.loadParent(ctx, tx, rec)
			if err != nil {
				return err
			}
			rec.ScopeID = parent.ScopeID
			if open, err = draftOpen(ctx, tx, parent); err != nil {
				return err
			}
		}

		if open {
			rec.InDraft = true
			rec.Published = model.Fields{}
			rec.Overlay = fields
		} else {
			rec.Published = fields
		}

		h, err := s.checkLimit(ctx, rec)
		if err != nil {
			return err
		}
		handle = h

		siblings, err := tx.ListSiblings(ctx, rec.ParentKey)
		if err != nil {
			return err
		}
		if in.Position != nil {
			rec.SortKey = ordering.InsertAfter(toSiblings(siblings), *in.Position)
		} else {
			rec.SortKey = ordering.AppendDefault(toSiblings(siblings))
		}

		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		return s.maybeRenumber(ctx, tx, rec.ParentKey)
	})
	if err != nil {
		s.deleteAssets(ctx, in.TenantID, uploaded)
		return model.RecordView{}, err
	}

	if err := s.collab.Limits.ReleaseLimit(ctx, handle); err != nil {
		slog.Warn("release quota handle failed", "tenant", rec.TenantID, "type", rec.Type, "error", err)
	}
	publish(ctx, s.bus, event.TypeRecordCreated, rec.TenantID, rec.Ref())
	return rec.View(), nil
}

func (s *OverlayService) checkLimit(ctx context.Context, rec model.Record) (LimitHandle, error) {
	h, err := s.collab.Limits.CheckLimit(ctx, rec)
	if err == nil {
		return h, nil
	}
	if errors.Is(err, model.ErrLimitExceeded) {
		return LimitHandle{}, err
	}
	return LimitHandle{}, fmt.Errorf("%w: %v", model.ErrLimitExceeded, err)
}

func (s *OverlayService) loadParent(ctx context.Context, tx repository.Tx, rec model.Record) (model.Record, error) {
	parent, err := loadRecord(ctx, tx, rec.ParentID)
	if err != nil {
		return model.Record{}, err
	}
	if parent.TenantID != rec.TenantID {
		return model.Record{}, fmt.Errorf("%w: %s", model.ErrNotFound, rec.ParentID)
	}
	if parent.Type != rec.Type.ParentType() {
		return model.Record{}, fmt.Errorf("%w: %s cannot own %s", model.ErrValidation, parent.Type, rec.Type)
	}
	if parent.Hidden() {
		return model.Record{}, fmt.Errorf("%w: parent %s is removed", model.ErrValidation, parent.ID)
	}
	return parent, nil
}

// Write merges patch into the overlay while the draft is open and into the
// published fields otherwise. Records created inside a draft keep all of
// their fields in the overlay until it is applied. A nil value removes the
// key from the targeted field set.
func (s *OverlayService) Write(ctx context.Context, id string, patch model.Fields, opts WriteOptions) (model.RecordView, error) {
	if len(patch) == 0 && opts.TranslationLocked == nil {
		return model.RecordView{}, fmt.Errorf("%w: empty patch", model.ErrValidation)
	}
	for key := range patch {
		if strings.TrimSpace(key) == "" {
			return model.RecordView{}, fmt.Errorf("%w: empty field name", model.ErrValidation)
		}
	}

	var rec model.Record
	var replaced, uploaded []string

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rec, err = loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.InTrash {
			return fmt.Errorf("%w: record %s is in trash", model.ErrValidation, id)
		}

		var fields model.Fields
		fields, uploaded, err = s.uploadBinaries(ctx, rec.TenantID, patch, rec.Published, rec.Overlay)
		if err != nil {
			return err
		}

		open := rec.InDraft
		if opts.DraftOpen != nil {
			open = open || *opts.DraftOpen
		} else if !open {
			if open, err = draftOpen(ctx, tx, rec); err != nil {
				return err
			}
		}

		if opts.TranslationLocked != nil {
			rec.TranslationLocked = *opts.TranslationLocked
		}
		if err := s.translate(ctx, &rec, fields, opts); err != nil {
			return err
		}

		if open {
			for key := range fields {
				if old := assetRef(rec.Overlay, key); old != "" && old != assetRef(rec.Published, key) && old != assetRef(fields, key) {
					replaced = append(replaced, old)
				}
			}
			rec.Overlay = rec.Overlay.Merge(fields)
			if len(rec.Overlay) == 0 {
				rec.Overlay = nil
			}
		} else {
			for key := range fields {
				if old := assetRef(rec.Published, key); old != "" && old != assetRef(fields, key) {
					replaced = append(replaced, old)
				}
			}
			rec.Published = rec.Published.Merge(fields)
		}

		return tx.UpdateRecord(ctx, rec)
	})
	if err != nil {
		s.deleteAssets(ctx, rec.TenantID, uploaded)
		return model.RecordView{}, err
	}

	s.deleteAssets(ctx, rec.TenantID, replaced)
	publish(ctx, s.bus, event.TypeRecordWritten, rec.TenantID, rec.Ref())
	return rec.View(), nil
}

// translate fills the other languages when a default-language text field
// changes on an unlocked record. Translations live under "i18n.<lang>".
func (s *OverlayService) translate(ctx context.Context, rec *model.Record, patch model.Fields, opts WriteOptions) error {
	if rec.TranslationLocked || opts.DefaultLanguage == "" || len(opts.Languages) == 0 {
		return nil
	}

	changed := model.Fields{}
	effective := rec.Effective()
	for _, key := range translatableFields {
		v, ok := patch[key]
		if !ok || v == nil {
			continue
		}
		if current, exists := effective[key]; exists && reflect.DeepEqual(current, v) {
			continue
		}
		changed[key] = v
	}
	if len(changed) == 0 {
		return nil
	}

	for _, lang := range opts.Languages {
		if lang == "" || lang == opts.DefaultLanguage {
			continue
		}
		translated, err := s.collab.Translator.TranslateFields(ctx, changed, opts.DefaultLanguage, lang)
		if err != nil {
			return fmt.Errorf("translate %s to %s: %w", rec.ID, lang, err)
		}
		key := "i18n." + lang
		patch[key] = toFields(effective[key]).Merge(translated)
	}
	rec.TranslationChanged = true
	return nil
}

func toFields(v any) model.Fields {
	switch m := v.(type) {
	case model.Fields:
		return m.Clone()
	case map[string]any:
		return model.Fields(m).Clone()
	default:
		return model.Fields{}
	}
}

// Reorder moves an existing record to a visible position among its siblings.
// The key write is a compare-and-set on the key read in this transaction.
func (s *OverlayService) Reorder(ctx context.Context, id string, position int) (model.RecordView, error) {
	if position < 0 {
		return model.RecordView{}, fmt.Errorf("%w: position must not be negative", model.ErrValidation)
	}

	var rec model.Record
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rec, err = loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.Hidden() {
			return fmt.Errorf("%w: record %s is removed", model.ErrValidation, id)
		}

		siblings, err := tx.ListSiblings(ctx, rec.ParentKey)
		if err != nil {
			return err
		}
		sibs := toSiblings(siblings)
		key, err := ordering.MoveTo(sibs, rec.ID, ordering.VisibleToAll(sibs, position))
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrValidation, err)
		}

		open, err := draftOpen(ctx, tx, rec)
		if err != nil {
			return err
		}
		overlay := open && !rec.InDraft
		if err := tx.UpdateSortKey(ctx, repository.SortKeyWrite{
			ID:       rec.ID,
			Overlay:  overlay,
			Expected: rec.EffectiveSortKey(),
			Key:      key,
		}); err != nil {
			return err
		}
		if overlay {
			rec.OverlaySortKey = &key
		} else {
			rec.SortKey = key
		}

		if err := s.maybeRenumber(ctx, tx, rec.ParentKey); err != nil {
			return err
		}
		rec, err = tx.GetRecord(ctx, rec.ID)
		return err
	})
	if err != nil {
		return model.RecordView{}, err
	}

	publish(ctx, s.bus, event.TypeRecordReordered, rec.TenantID, rec.View())
	return rec.View(), nil
}

// maybeRenumber compacts a collection to integer keys once two neighbors
// drift closer than the configured gap. Collections with pending overlay
// keys are left alone until the draft closes.
func (s *OverlayService) maybeRenumber(ctx context.Context, tx repository.Tx, parentKey string) error {
	siblings, err := tx.ListSiblings(ctx, parentKey)
	if err != nil {
		return err
	}
	sibs := toSiblings(siblings)
	if !ordering.NeedsRenumber(sibs, s.settings.SortKeyMinGap) {
		return nil
	}
	for _, r := range siblings {
		if r.OverlaySortKey != nil {
			slog.Warn("sort keys below minimum gap, renumber deferred until draft closes", "parent_key", parentKey)
			return nil
		}
	}

	keys := ordering.Renumber(sibs)
	for _, r := range siblings {
		key := keys[r.ID]
		if key == r.SortKey {
			continue
		}
		if err := tx.UpdateSortKey(ctx, repository.SortKeyWrite{ID: r.ID, Expected: r.SortKey, Key: key}); err != nil {
			return err
		}
	}
	slog.Info("collection renumbered", "parent_key", parentKey, "size", len(siblings))
	return nil
}

// Clone copies a record and its visible subtree right after the source.
func (s *OverlayService) Clone(ctx context.Context, id string) (model.RecordView, error) {
	var clone model.Record
	var handle LimitHandle

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		src, err := loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if src.Type == model.EntityWorkspace {
			return fmt.Errorf("%w: workspaces cannot be cloned", model.ErrValidation)
		}
		if src.Hidden() {
			return fmt.Errorf("%w: record %s is removed", model.ErrValidation, id)
		}

		open := false
		if src.Type != model.EntitySurvey {
			if open, err = draftOpen(ctx, tx, src); err != nil {
				return err
			}
		}

		if handle, err = s.checkLimit(ctx, src); err != nil {
			return err
		}

		siblings, err := tx.ListSiblings(ctx, src.ParentKey)
		if err != nil {
			return err
		}
		key, err := ordering.CloneInsert(toSiblings(siblings), src.ID)
		if err != nil {
			return err
		}

		c := newCascade(tx, s.settings.CascadeConcurrency)
		clone, err = c.clone(ctx, src, cloneSpec{parentID: src.ParentID, scopeID: src.ScopeID, key: key, inDraft: open})
		if err != nil {
			return model.NewCascadeError("clone", src.Ref(), err)
		}
		return s.maybeRenumber(ctx, tx, src.ParentKey)
	})
	if err != nil {
		return model.RecordView{}, err
	}

	if err := s.collab.Limits.ReleaseLimit(ctx, handle); err != nil {
		slog.Warn("release quota handle failed", "tenant", clone.TenantID, "type", clone.Type, "error", err)
	}
	publish(ctx, s.bus, event.TypeRecordCloned, clone.TenantID, clone.Ref())
	return clone.View(), nil
}

// DuplicateGroup clones a driver together with every section grouped under
// it. The new sections are placed after the last section of the source group
// and point at the new driver.
func (s *OverlayService) DuplicateGroup(ctx context.Context, driverID string) (model.RecordView, error) {
	var driver model.Record
	var handle LimitHandle

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		src, err := loadRecord(ctx, tx, driverID)
		if err != nil {
			return err
		}
		if src.Type != model.EntityDriver {
			return fmt.Errorf("%w: %s is not a driver", model.ErrValidation, driverID)
		}
		if src.Hidden() {
			return fmt.Errorf("%w: driver %s is removed", model.ErrValidation, driverID)
		}
		open, err := draftOpen(ctx, tx, src)
		if err != nil {
			return err
		}
		if handle, err = s.checkLimit(ctx, src); err != nil {
			return err
		}

		drivers, err := tx.ListSiblings(ctx, src.ParentKey)
		if err != nil {
			return err
		}
		driverKeys, err := ordering.DuplicateGroup(toSiblings(drivers), []string{src.ID}, 1)
		if err != nil {
			return err
		}

		sections, err := repository.ListChildren(ctx, tx, src.ParentID, model.EntitySection)
		if err != nil {
			return err
		}
		var group []model.Record
		var groupIDs []string
		for _, sec := range sections {
			if !sec.Hidden() && sec.Effective().String("driverId") == src.ID {
				group = append(group, sec)
				groupIDs = append(groupIDs, sec.ID)
			}
		}

		c := newCascade(tx, s.settings.CascadeConcurrency)
		driver, err = c.clone(ctx, src, cloneSpec{parentID: src.ParentID, scopeID: src.ScopeID, key: driverKeys[0], inDraft: open})
		if err != nil {
			return model.NewCascadeError("duplicate", src.Ref(), err)
		}
		if len(group) == 0 {
			return nil
		}

		sectionKeys, err := ordering.DuplicateGroup(toSiblings(sections), groupIDs, len(group))
		if err != nil {
			return err
		}
		for i, sec := range group {
			_, err := c.clone(ctx, sec, cloneSpec{
				parentID: sec.ParentID,
				scopeID:  sec.ScopeID,
				key:      sectionKeys[i],
				inDraft:  open,
				fields:   model.Fields{"driverId": driver.ID},
			})
			if err != nil {
				return model.NewCascadeError("duplicate", sec.Ref(), err)
			}
		}
		return s.maybeRenumber(ctx, tx, model.ParentKeyFor(src.ParentID, model.EntitySection))
	})
	if err != nil {
		return model.RecordView{}, err
	}

	if err := s.collab.Limits.ReleaseLimit(ctx, handle); err != nil {
		slog.Warn("release quota handle failed", "tenant", driver.TenantID, "type", driver.Type, "error", err)
	}
	publish(ctx, s.bus, event.TypeRecordCloned, driver.TenantID, driver.Ref())
	return driver.View(), nil
}

// ApplyOverlay promotes the overlay of a record and of everything it owns.
// Draft removals inside the subtree move to the trash ledger as clearing.
func (s *OverlayService) ApplyOverlay(ctx context.Context, id string) error {
	return s.runCascade(ctx, id, "apply", event.TypeOverlayApplied, func(ctx context.Context, c *cascade, rec model.Record) error {
		return c.apply(ctx, rec)
	})
}

// DiscardOverlay drops the overlay of a record and of everything it owns.
func (s *OverlayService) DiscardOverlay(ctx context.Context, id string) error {
	return s.runCascade(ctx, id, "discard", event.TypeOverlayDiscarded, func(ctx context.Context, c *cascade, rec model.Record) error {
		return c.discard(ctx, rec)
	})
}

func (s *OverlayService) OpenDraft(ctx context.Context, surveyID string) (model.RecordView, error) {
	var survey model.Record
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		survey, err = s.loadSurvey(ctx, tx, surveyID)
		if err != nil {
			return err
		}
		if survey.DraftOpen {
			return nil
		}
		survey.DraftOpen = true
		return tx.UpdateRecord(ctx, survey)
	})
	if err != nil {
		return model.RecordView{}, err
	}

	publish(ctx, s.bus, event.TypeDraftOpened, survey.TenantID, survey.Ref())
	return survey.View(), nil
}

// ApplyDraft applies every overlay under the survey and closes its draft.
func (s *OverlayService) ApplyDraft(ctx context.Context, surveyID string) error {
	return s.closeDraft(ctx, surveyID, "apply", event.TypeDraftApplied)
}

// DiscardDraft discards every overlay under the survey and closes its draft.
func (s *OverlayService) DiscardDraft(ctx context.Context, surveyID string) error {
	return s.closeDraft(ctx, surveyID, "discard", event.TypeDraftDiscarded)
}

func (s *OverlayService) closeDraft(ctx context.Context, surveyID string, op string, typ event.Type) error {
	var survey model.Record
	c, err := s.withCascade(ctx, func(ctx context.Context, tx repository.Tx, c *cascade) error {
		var err error
		survey, err = s.loadSurvey(ctx, tx, surveyID)
		if err != nil {
			return err
		}
		if !survey.DraftOpen {
			return fmt.Errorf("%w: survey %s has no open draft", model.ErrValidation, surveyID)
		}

		if op == "apply" {
			err = c.apply(ctx, survey)
		} else {
			err = c.discard(ctx, survey)
		}
		if err != nil {
			return model.NewCascadeError(op, survey.Ref(), err)
		}

		if err := s.settleDraftEntries(ctx, tx, c, surveyID, op); err != nil {
			return model.NewCascadeError(op, survey.Ref(), err)
		}

		survey, err = tx.GetRecord(ctx, surveyID)
		if err != nil {
			return err
		}
		survey.DraftOpen = false
		return tx.UpdateRecord(ctx, survey)
	})
	if err != nil {
		return err
	}

	s.finish(ctx, c)
	publish(ctx, s.bus, typ, survey.TenantID, survey.Ref())
	return nil
}

// settleDraftEntries handles inDraft ledger entries of the scope whose
// targets the cascade did not reach.
func (s *OverlayService) settleDraftEntries(ctx context.Context, tx repository.Tx, c *cascade, scopeID string, op string) error {
	entries, err := tx.ListTrash(ctx, model.TrashFilter{Stage: model.StageInDraft, DraftScope: scopeID})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if op == "discard" {
			if err := tx.DeleteTrash(ctx, entry.ID); err != nil {
				return err
			}
			rec, err := tx.GetRecord(ctx, entry.TargetID)
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			rec.DraftRemove = false
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			continue
		}
		entry.Stage = model.StageClearing
		entry.DraftScope = ""
		entry.ExpireAt = c.now
		if err := tx.UpdateTrash(ctx, entry); err != nil {
			return err
		}
		c.fx.trash(entry)
	}
	return nil
}

func (s *OverlayService) loadSurvey(ctx context.Context, tx repository.Tx, id string) (model.Record, error) {
	survey, err := loadRecord(ctx, tx, id)
	if err != nil {
		return model.Record{}, err
	}
	if survey.Type != model.EntitySurvey {
		return model.Record{}, fmt.Errorf("%w: %s is not a survey", model.ErrValidation, id)
	}
	return survey, nil
}

func (s *OverlayService) runCascade(ctx context.Context, id string, op string, typ event.Type, fn func(context.Context, *cascade, model.Record) error) error {
	var rec model.Record
	c, err := s.withCascade(ctx, func(ctx context.Context, tx repository.Tx, c *cascade) error {
		var err error
		rec, err = loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, c, rec); err != nil {
			return model.NewCascadeError(op, rec.Ref(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.finish(ctx, c)
	publish(ctx, s.bus, typ, rec.TenantID, rec.Ref())
	return nil
}

func (s *OverlayService) withCascade(ctx context.Context, fn func(context.Context, repository.Tx, *cascade) error) (*cascade, error) {
	var c *cascade
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c = newCascade(tx, s.settings.CascadeConcurrency)
		return fn(ctx, tx, c)
	})
	if err != nil {
		if errors.Is(err, model.ErrCascadeFailure) {
			slog.Warn("cascade rolled back", "error", err)
		}
		return nil, err
	}
	return c, nil
}

// finish runs the post-commit side effects of a cascade.
func (s *OverlayService) finish(ctx context.Context, c *cascade) {
	deleteAssets(ctx, s.collab.Assets, c.fx.assets)
	for _, entry := range c.fx.trashed {
		publish(ctx, s.bus, event.TypeRecordTrashed, entry.TenantID, entry)
	}
	if len(c.fx.removed) > 0 {
		slog.Debug("cascade removed records", "count", len(c.fx.removed))
	}
}

// AddDependent attaches a non-versioned record to its owner. Collaborators
// such as the response collector create results, invites and statistics
// through it.
func (s *OverlayService) AddDependent(ctx context.Context, d model.Dependent) (model.Dependent, error) {
	if d.OwnerID == "" || d.Kind == "" {
		return model.Dependent{}, fmt.Errorf("%w: owner_id and kind are required", model.ErrValidation)
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		owner, err := loadRecord(ctx, tx, d.OwnerID)
		if err != nil {
			return err
		}
		if !behaviorOf(owner.Type).owns(d.Kind) {
			return fmt.Errorf("%w: %s cannot own %s", model.ErrValidation, owner.Type, d.Kind)
		}
		if d.AssetRef != "" && !assets.OwnedBy(d.AssetRef, owner.TenantID) {
			return fmt.Errorf("%w: asset %q does not belong to tenant %s", model.ErrValidation, d.AssetRef, owner.TenantID)
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.TenantID = owner.TenantID
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now().UTC()
		}
		return tx.InsertDependent(ctx, d)
	})
	if err != nil {
		return model.Dependent{}, err
	}
	return d, nil
}

// uploadBinaries replaces []byte values under asset fields with the refs
// returned by the asset store. A string under an asset field must be a ref
// the record already holds for that key.
func (s *OverlayService) uploadBinaries(ctx context.Context, tenantID string, fields model.Fields, current ...model.Fields) (model.Fields, []string, error) {
	out := fields.Clone()
	if out == nil {
		out = model.Fields{}
	}
	var uploaded []string
	fail := func(err error) (model.Fields, []string, error) {
		s.deleteAssets(ctx, tenantID, uploaded)
		return nil, nil, err
	}
	for key, v := range out {
		switch v := v.(type) {
		case nil:
		case []byte:
			if !isAssetField(key) {
				return fail(fmt.Errorf("%w: field %q cannot hold binary data", model.ErrValidation, key))
			}
			ref, err := s.collab.Assets.UploadBinary(ctx, tenantID, v)
			if err != nil {
				return fail(fmt.Errorf("upload %s: %w", key, err))
			}
			uploaded = append(uploaded, ref)
			out[key] = ref
		default:
			if isAssetField(key) && !holdsRef(current, key, v) {
				return fail(fmt.Errorf("%w: field %q takes an upload, not a ref", model.ErrValidation, key))
			}
		}
	}
	return out, uploaded, nil
}

func holdsRef(current []model.Fields, key string, v any) bool {
	ref, ok := v.(string)
	if !ok || ref == "" {
		return false
	}
	for _, fields := range current {
		if assetRef(fields, key) == ref {
			return true
		}
	}
	return false
}

// ownedAsset is an asset ref paired with the tenant of the record that held it.
type ownedAsset struct {
	tenantID string
	ref      string
}

func owned(tenantID string, refs []string) []ownedAsset {
	out := make([]ownedAsset, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ownedAsset{tenantID: tenantID, ref: ref})
	}
	return out
}

func (s *OverlayService) deleteAssets(ctx context.Context, tenantID string, refs []string) {
	deleteAssets(ctx, s.collab.Assets, owned(tenantID, refs))
}

// deleteAssets removes binaries after commit. Refs outside the owning
// tenant's key space are never deleted.
func deleteAssets(ctx context.Context, store AssetStore, refs []ownedAsset) {
	for _, a := range refs {
		if !assets.OwnedBy(a.ref, a.tenantID) {
			slog.Warn("asset delete skipped", "tenant", a.tenantID, "ref", a.ref)
			continue
		}
		if err := store.DeleteBinary(context.WithoutCancel(ctx), a.ref); err != nil {
			slog.Warn("asset delete failed", "tenant", a.tenantID, "ref", a.ref, "error", err)
		}
	}
}
