package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"survey-engine/internal/event"
	"survey-engine/internal/model"
	"survey-engine/internal/ordering"
	"survey-engine/internal/repository"
)

// TrashService drives the trash ledger: soft delete, restore, clear and the
// background sweep that promotes expired entries.
type TrashService struct {
	store    repository.Store
	bus      event.Bus
	assets   AssetStore
	settings Settings
	now      func() time.Time
}

func NewTrashService(store repository.Store, bus event.Bus, collab Collaborators, settings Settings) *TrashService {
	return &TrashService{
		store:    store,
		bus:      bus,
		assets:   collab.withDefaults().Assets,
		settings: settings.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SoftDeleteOptions. An empty DraftScope is resolved from the record: when
// its survey has an open draft the removal is staged inside that draft.
type SoftDeleteOptions struct {
	DraftScope    string
	ForceClearing bool
	ParentEntryID string
	DeletedBy     string
}

func (s *TrashService) SoftDelete(ctx context.Context, id string, opts SoftDeleteOptions) (model.TrashEntry, error) {
	var entry model.TrashEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rec, err := loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.Hidden() {
			return fmt.Errorf("%w: %s", model.ErrAlreadyTrashed, id)
		}

		scope := opts.DraftScope
		if scope == "" && !opts.ForceClearing {
			open, err := draftOpen(ctx, tx, rec)
			if err != nil {
				return err
			}
			if open {
				scope = rec.ScopeID
			}
		}

		now := s.now()
		stage := model.StageInitial
		switch {
		case rec.Type.IsStructuralRoot() || opts.ForceClearing:
			stage = model.StageClearing
			scope = ""
		case scope != "":
			stage = model.StageInDraft
		}

		chain, err := ownerChain(ctx, tx, rec)
		if err != nil {
			return err
		}

		deletedBy := opts.DeletedBy
		if actor, ok := ActorFrom(ctx); ok && deletedBy == "" {
			deletedBy = actor.UserID
		}

		entry = model.TrashEntry{
			ID:            uuid.NewString(),
			TenantID:      rec.TenantID,
			TargetType:    rec.Type,
			TargetID:      rec.ID,
			Stage:         stage,
			DraftScope:    scope,
			ParentEntryID: opts.ParentEntryID,
			OwnerChain:    chain,
			ExpireAt:      now.Add(s.settings.TrashRetention),
			DeletedBy:     deletedBy,
			CreatedAt:     now,
		}
		if stage == model.StageClearing {
			entry.ExpireAt = now
		}
		if err := tx.InsertTrash(ctx, entry); err != nil {
			return err
		}

		rec.InTrash = stage != model.StageInDraft
		rec.DraftRemove = stage == model.StageInDraft
		return tx.UpdateRecord(ctx, rec)
	})
	if err != nil {
		return model.TrashEntry{}, err
	}

	slog.Info("record moved to trash", "entry", entry.ID, "target", entry.Target().String(), "stage", entry.Stage)
	publish(ctx, s.bus, event.TypeRecordTrashed, entry.TenantID, entry)
	return entry, nil
}

// Restore undoes a soft delete. A record whose owner is gone or trashed is
// appended under the last surviving owner group along its owner chain.
func (s *TrashService) Restore(ctx context.Context, entryID string) (model.RecordView, error) {
	var rec model.Record
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		entry, err := tx.GetTrash(ctx, entryID)
		if err != nil {
			return err
		}
		if err := authorizeEntry(ctx, entry); err != nil {
			return err
		}
		if entry.Stage == model.StageClearing {
			return fmt.Errorf("%w: %s", model.ErrAlreadyClearing, entryID)
		}

		rec, err = tx.GetRecord(ctx, entry.TargetID)
		if err != nil {
			return err
		}

		if rec.Type.ParentType() != "" {
			attached, err := s.attached(ctx, tx, rec)
			if err != nil {
				return err
			}
			if !attached {
				if err := s.reattach(ctx, tx, &rec, entry.OwnerChain); err != nil {
					return err
				}
			}
		}

		rec.InTrash = false
		rec.DraftRemove = false
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		return tx.DeleteTrash(ctx, entry.ID)
	})
	if err != nil {
		return model.RecordView{}, err
	}

	slog.Info("record restored", "entry", entryID, "target", rec.Ref().String(), "parent", rec.ParentID)
	publish(ctx, s.bus, event.TypeRecordRestored, rec.TenantID, rec.Ref())
	return rec.View(), nil
}

func (s *TrashService) attached(ctx context.Context, tx repository.Tx, rec model.Record) (bool, error) {
	parent, err := tx.GetRecord(ctx, rec.ParentID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !parent.Hidden(), nil
}

// reattach walks the owner chain nearest first. From the first live ancestor
// it descends through the last visible child of each type needed to reach a
// parent of rec's type, and appends rec there.
func (s *TrashService) reattach(ctx context.Context, tx repository.Tx, rec *model.Record, chain []model.Ref) error {
	for _, ref := range chain {
		ancestor, err := tx.GetRecord(ctx, ref.ID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if ancestor.Hidden() {
			continue
		}

		parent, ok, err := descend(ctx, tx, ancestor, rec.Type.ParentType())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		parentKey := model.ParentKeyFor(parent.ID, rec.Type)
		siblings, err := tx.ListSiblings(ctx, parentKey)
		if err != nil {
			return err
		}

		rec.ParentID = parent.ID
		rec.ParentKey = parentKey
		rec.SortKey = ordering.AppendDefault(toSiblings(siblings))
		rec.OverlaySortKey = nil

		scope := parent.ScopeID
		if rec.Type == model.EntitySurvey {
			scope = rec.ID
		}
		if scope != rec.ScopeID {
			rec.ScopeID = scope
			c := newCascade(tx, s.settings.CascadeConcurrency)
			if err := c.rescope(ctx, *rec); err != nil {
				return err
			}
		}
		slog.Info("restore re-attached record", "target", rec.Ref().String(), "parent", parent.Ref().String())
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrNoAttachmentPoint, rec.Ref())
}

// descend finds a live record of type want under from by following the last
// visible child at each level.
func descend(ctx context.Context, tx repository.Tx, from model.Record, want model.EntityType) (model.Record, bool, error) {
	var path []model.EntityType
	for t := want; t != from.Type; t = t.ParentType() {
		if t == "" {
			return model.Record{}, false, nil
		}
		path = append(path, t)
	}
	slices.Reverse(path)

	current := from
	for _, t := range path {
		kids, err := repository.ListChildren(ctx, tx, current.ID, t)
		if err != nil {
			return model.Record{}, false, err
		}
		next := -1
		for i, kid := range kids {
			if !kid.Hidden() {
				next = i
			}
		}
		if next < 0 {
			return model.Record{}, false, nil
		}
		current = kids[next]
	}
	return current, true, nil
}

// Clear hard-deletes the target of a clearing entry with its subtree,
// dependents and every ledger entry that descends from it. A failed attempt
// rolls back, is counted on the entry, and is returned as a cascade failure.
func (s *TrashService) Clear(ctx context.Context, entryID string) error {
	var entry model.TrashEntry
	var c *cascade

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		entry, err = tx.GetTrash(ctx, entryID)
		if err != nil {
			return err
		}
		if err := authorizeEntry(ctx, entry); err != nil {
			return err
		}
		if entry.Stage != model.StageClearing {
			return fmt.Errorf("%w: %s is %s", model.ErrNotClearable, entryID, entry.Stage)
		}
		if entry.Attempts >= s.settings.TrashMaxAttempts {
			return fmt.Errorf("%w: %s after %d attempts", model.ErrTooManyAttempts, entryID, entry.Attempts)
		}

		c = newCascade(tx, s.settings.CascadeConcurrency)
		if err := s.clearEntry(ctx, tx, c, entry); err != nil {
			return model.NewCascadeError("clear", entry.Target(), err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrCascadeFailure) {
			s.recordFailure(ctx, entry, err)
		}
		return err
	}

	deleteAssets(ctx, s.assets, c.fx.assets)
	slog.Info("trash entry cleared", "entry", entryID, "target", entry.Target().String(), "records", len(c.fx.removed))
	publish(ctx, s.bus, event.TypeTrashCleared, entry.TenantID, entry.Target())
	return nil
}

func (s *TrashService) clearEntry(ctx context.Context, tx repository.Tx, c *cascade, entry model.TrashEntry) error {
	descendants, err := tx.ListTrashByParent(ctx, entry.ID)
	if err != nil {
		return err
	}

	rec, err := tx.GetRecord(ctx, entry.TargetID)
	switch {
	case err == nil:
		if err := c.purge(ctx, rec); err != nil {
			return err
		}
	case errors.Is(err, model.ErrNotFound):
		if err := tx.DeleteTrash(ctx, entry.ID); err != nil {
			return err
		}
	default:
		return err
	}

	for _, child := range descendants {
		// The purge above may already have taken the child with it.
		current, err := tx.GetTrash(ctx, child.ID)
		if errors.Is(err, model.ErrTrashNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.clearEntry(ctx, tx, c, current); err != nil {
			return model.NewCascadeError("clear", current.Target(), err)
		}
	}
	return nil
}

func (s *TrashService) recordFailure(ctx context.Context, entry model.TrashEntry, cause error) {
	var attempts int
	err := s.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetTrash(ctx, entry.ID)
		if err != nil {
			return err
		}
		current.Attempts++
		current.LastError = cause.Error()
		attempts = current.Attempts
		return tx.UpdateTrash(ctx, current)
	})
	if err != nil {
		slog.Error("record clear failure", "entry", entry.ID, "error", err)
		return
	}

	if attempts >= s.settings.TrashMaxAttempts {
		slog.Error("trash entry stuck, operator action required",
			"entry", entry.ID, "target", entry.Target().String(), "attempts", attempts, "error", cause)
	} else {
		slog.Warn("trash clear failed, will retry", "entry", entry.ID, "attempts", attempts, "error", cause)
	}
	publish(ctx, s.bus, event.TypeTrashClearFailed, entry.TenantID, map[string]any{
		"entry_id": entry.ID,
		"attempts": attempts,
		"error":    cause.Error(),
	})
}

// Sweep promotes expired initial entries to clearing and clears every
// clearing entry still below the retry ceiling.
func (s *TrashService) Sweep(ctx context.Context, now time.Time) (model.SweepReport, error) {
	var report model.SweepReport

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		expired, err := tx.ListExpiredTrash(ctx, now)
		if err != nil {
			return err
		}
		for _, entry := range expired {
			entry.Stage = model.StageClearing
			if err := tx.UpdateTrash(ctx, entry); err != nil {
				return err
			}
		}
		report.Promoted = len(expired)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("promote expired trash: %w", err)
	}

	var clearing []model.TrashEntry
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		clearing, err = tx.ListClearingTrash(ctx)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("list clearing trash: %w", err)
	}

	for _, entry := range clearing {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if entry.Attempts >= s.settings.TrashMaxAttempts {
			report.Stuck = append(report.Stuck, entry.ID)
			continue
		}

		err := s.Clear(ctx, entry.ID)
		switch {
		case err == nil:
			report.Cleared++
		case errors.Is(err, model.ErrTrashNotFound):
			// cleared as a descendant of an earlier entry
		default:
			report.Failed++
			if entry.Attempts+1 >= s.settings.TrashMaxAttempts {
				report.Stuck = append(report.Stuck, entry.ID)
			}
		}
	}

	slog.Info("trash sweep finished",
		"promoted", report.Promoted, "cleared", report.Cleared, "failed", report.Failed, "stuck", len(report.Stuck))
	publish(ctx, s.bus, event.TypeSweepCompleted, "", report)
	return report, nil
}

// StartSweeper runs Sweep on a regular interval until ctx is cancelled.
func (s *TrashService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once on startup to pick up entries that expired while down.
	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *TrashService) sweepOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx, s.now()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("trash sweep failed", "error", err)
	}
}

func (s *TrashService) List(ctx context.Context, filter model.TrashFilter) ([]model.TrashEntry, error) {
	if actor, ok := ActorFrom(ctx); ok && actor.TenantID != "" {
		filter.TenantID = actor.TenantID
	}

	var entries []model.TrashEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		entries, err = tx.ListTrash(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stuck lists clearing entries that reached the retry ceiling.
func (s *TrashService) Stuck(ctx context.Context) ([]model.TrashEntry, error) {
	entries, err := s.List(ctx, model.TrashFilter{Stage: model.StageClearing})
	if err != nil {
		return nil, err
	}
	stuck := make([]model.TrashEntry, 0)
	for _, entry := range entries {
		if entry.Attempts >= s.settings.TrashMaxAttempts {
			stuck = append(stuck, entry)
		}
	}
	return stuck, nil
}

// ResetAttempts lets an operator retry a stuck entry after fixing its cause.
func (s *TrashService) ResetAttempts(ctx context.Context, entryID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		entry, err := tx.GetTrash(ctx, entryID)
		if err != nil {
			return err
		}
		if err := authorizeEntry(ctx, entry); err != nil {
			return err
		}
		entry.Attempts = 0
		entry.LastError = ""
		return tx.UpdateTrash(ctx, entry)
	})
}

func authorizeEntry(ctx context.Context, entry model.TrashEntry) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.TenantID == "" || actor.TenantID == entry.TenantID {
		return nil
	}
	return model.ErrTrashNotFound
}
