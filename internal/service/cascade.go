package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"survey-engine/internal/model"
	"survey-engine/internal/repository"
)

// behavior is the static edge list of one entity type: the record types it
// owns structurally and the non-versioned dependents hard-deleted with it.
type behavior struct {
	children   []model.EntityType
	dependents []model.DependentKind
}

var behaviors = map[model.EntityType]behavior{
	model.EntityWorkspace: {
		children: []model.EntityType{model.EntitySurvey},
	},
	model.EntitySurvey: {
		children:   []model.EntityType{model.EntityDriver, model.EntitySection},
		dependents: []model.DependentKind{model.DependentResult, model.DependentInvite, model.DependentTheme},
	},
	model.EntitySection: {
		children: []model.EntityType{model.EntityItem},
	},
	model.EntityItem: {
		children: []model.EntityType{model.EntityQuestion},
	},
	model.EntityQuestion: {
		children:   []model.EntityType{model.EntityOption, model.EntityRow, model.EntityColumn, model.EntityLogic},
		dependents: []model.DependentKind{model.DependentStatistic, model.DependentItemRef},
	},
}

func behaviorOf(t model.EntityType) behavior {
	return behaviors[t]
}

func (b behavior) owns(kind model.DependentKind) bool {
	return slices.Contains(b.dependents, kind)
}

// effects collects what a cascade must do once its transaction commits.
type effects struct {
	mu      sync.Mutex
	assets  []ownedAsset
	removed []model.Ref
	trashed []model.TrashEntry
}

func (e *effects) dropAssets(tenantID string, refs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ref := range refs {
		if ref != "" {
			e.assets = append(e.assets, ownedAsset{tenantID: tenantID, ref: ref})
		}
	}
}

func (e *effects) remove(ref model.Ref) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, ref)
}

func (e *effects) trash(entry model.TrashEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trashed = append(e.trashed, entry)
}

// cascade walks the ownership graph inside one transaction. Children of one
// record are processed concurrently up to limit; a record's own state changes
// only after all of its children succeeded.
type cascade struct {
	tx    repository.Tx
	limit int
	now   time.Time
	fx    *effects
}

func newCascade(tx repository.Tx, limit int) *cascade {
	return &cascade{tx: tx, limit: limit, now: time.Now().UTC(), fx: &effects{}}
}

func (c *cascade) children(ctx context.Context, rec model.Record) ([]model.Record, error) {
	var out []model.Record
	for _, t := range behaviorOf(rec.Type).children {
		kids, err := repository.ListChildren(ctx, c.tx, rec.ID, t)
		if err != nil {
			return nil, err
		}
		out = append(out, kids...)
	}
	return out, nil
}

func (c *cascade) eachChild(ctx context.Context, rec model.Record, op string, fn func(context.Context, model.Record) error) error {
	kids, err := c.children(ctx, rec)
	if err != nil {
		return err
	}
	if len(kids) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for _, kid := range kids {
		g.Go(func() error {
			if err := fn(gctx, kid); err != nil {
				return model.NewCascadeError(op, kid.Ref(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// overlayOnlyAssets lists asset refs the overlay introduced on top of the
// published fields.
func overlayOnlyAssets(rec model.Record) []string {
	var refs []string
	for key := range rec.Overlay {
		if ref := assetRef(rec.Overlay, key); ref != "" && ref != assetRef(rec.Published, key) {
			refs = append(refs, ref)
		}
	}
	return refs
}

func clearOverlay(rec *model.Record) {
	rec.Overlay = nil
	rec.OverlaySortKey = nil
	rec.TranslationChanged = false
}

// apply promotes the overlay of rec and its subtree.
func (c *cascade) apply(ctx context.Context, rec model.Record) error {
	if rec.InDraft && rec.DraftRemove {
		return c.purge(ctx, rec)
	}
	if err := c.eachChild(ctx, rec, "apply", c.apply); err != nil {
		return err
	}
	if rec.DraftRemove {
		return c.routeToClearing(ctx, rec)
	}

	for key := range rec.Overlay {
		if old := assetRef(rec.Published, key); old != "" && old != assetRef(rec.Overlay, key) {
			c.fx.dropAssets(rec.TenantID, old)
		}
	}
	if rec.Published == nil {
		rec.Published = model.Fields{}
	}
	rec.Published = rec.Published.Merge(rec.Overlay)
	if rec.OverlaySortKey != nil {
		rec.SortKey = *rec.OverlaySortKey
	}
	clearOverlay(&rec)
	rec.InDraft = false

	return c.tx.UpdateRecord(ctx, rec)
}

// routeToClearing commits a draft removal: the record goes to the trash
// ledger as clearing and its overlay is dropped without promotion.
func (c *cascade) routeToClearing(ctx context.Context, rec model.Record) error {
	entry, err := c.tx.FindTrashByTarget(ctx, rec.ID)
	switch {
	case err == nil:
		entry.Stage = model.StageClearing
		entry.DraftScope = ""
		entry.ExpireAt = c.now
		if err := c.tx.UpdateTrash(ctx, entry); err != nil {
			return err
		}
	case errors.Is(err, model.ErrTrashNotFound):
		chain, err := ownerChain(ctx, c.tx, rec)
		if err != nil {
			return err
		}
		entry = model.TrashEntry{
			ID:         uuid.NewString(),
			TenantID:   rec.TenantID,
			TargetType: rec.Type,
			TargetID:   rec.ID,
			Stage:      model.StageClearing,
			OwnerChain: chain,
			ExpireAt:   c.now,
			CreatedAt:  c.now,
		}
		if err := c.tx.InsertTrash(ctx, entry); err != nil {
			return err
		}
	default:
		return err
	}

	c.fx.dropAssets(rec.TenantID, overlayOnlyAssets(rec)...)
	clearOverlay(&rec)
	rec.DraftRemove = false
	rec.InTrash = true
	if err := c.tx.UpdateRecord(ctx, rec); err != nil {
		return err
	}
	c.fx.trash(entry)
	return nil
}

// discard drops the overlay of rec and its subtree. Records created inside
// the draft are deleted outright.
func (c *cascade) discard(ctx context.Context, rec model.Record) error {
	if rec.InDraft {
		return c.purge(ctx, rec)
	}
	if err := c.eachChild(ctx, rec, "discard", c.discard); err != nil {
		return err
	}

	if rec.DraftRemove {
		entry, err := c.tx.FindTrashByTarget(ctx, rec.ID)
		switch {
		case err == nil:
			if entry.Stage == model.StageInDraft {
				if err := c.tx.DeleteTrash(ctx, entry.ID); err != nil {
					return err
				}
			}
		case !errors.Is(err, model.ErrTrashNotFound):
			return err
		}
		rec.DraftRemove = false
	}

	c.fx.dropAssets(rec.TenantID, overlayOnlyAssets(rec)...)
	clearOverlay(&rec)
	return c.tx.UpdateRecord(ctx, rec)
}

// purge hard-deletes rec, its subtree, their dependents and ledger entries.
func (c *cascade) purge(ctx context.Context, rec model.Record) error {
	if err := c.eachChild(ctx, rec, "purge", c.purge); err != nil {
		return err
	}

	deps, err := c.tx.ListDependents(ctx, rec.ID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if err := c.tx.DeleteDependent(ctx, d.ID); err != nil {
			return fmt.Errorf("delete %s %s: %w", d.Kind, d.ID, err)
		}
		c.fx.dropAssets(rec.TenantID, d.AssetRef)
	}

	entry, err := c.tx.FindTrashByTarget(ctx, rec.ID)
	switch {
	case err == nil:
		if err := c.tx.DeleteTrash(ctx, entry.ID); err != nil {
			return err
		}
	case !errors.Is(err, model.ErrTrashNotFound):
		return err
	}

	if err := c.tx.DeleteRecord(ctx, rec.ID); err != nil {
		return err
	}
	c.fx.dropAssets(rec.TenantID, assetRefs(rec.Published)...)
	c.fx.dropAssets(rec.TenantID, assetRefs(rec.Overlay)...)
	c.fx.remove(rec.Ref())
	return nil
}

// rescope moves the subtree of rec into another draft scope.
func (c *cascade) rescope(ctx context.Context, rec model.Record) error {
	return c.eachChild(ctx, rec, "rescope", func(ctx context.Context, kid model.Record) error {
		if kid.ScopeID == rec.ScopeID {
			return nil
		}
		kid.ScopeID = rec.ScopeID
		if err := c.tx.UpdateRecord(ctx, kid); err != nil {
			return err
		}
		return c.rescope(ctx, kid)
	})
}

// cloneSpec places one copy.
type cloneSpec struct {
	parentID string
	scopeID  string
	key      float64
	inDraft  bool
	fields   model.Fields
}

// clone copies src and its visible subtree. Asset fields are not copied: a
// blob has a single owner and is deleted with it.
func (c *cascade) clone(ctx context.Context, src model.Record, spec cloneSpec) (model.Record, error) {
	fields := src.Effective()
	for _, key := range assetFields {
		delete(fields, key)
	}
	fields = fields.Merge(spec.fields)

	rec := model.Record{
		ID:                uuid.NewString(),
		Type:              src.Type,
		TenantID:          src.TenantID,
		ParentID:          spec.parentID,
		ParentKey:         model.ParentKeyFor(spec.parentID, src.Type),
		ScopeID:           spec.scopeID,
		SortKey:           spec.key,
		TranslationLocked: src.TranslationLocked,
		CreatedAt:         c.now,
		UpdatedAt:         c.now,
	}
	if src.Type == model.EntitySurvey {
		rec.ScopeID = rec.ID
	}
	if spec.inDraft {
		rec.InDraft = true
		rec.Published = model.Fields{}
		rec.Overlay = fields
	} else {
		rec.Published = fields
	}

	if err := c.tx.InsertRecord(ctx, rec); err != nil {
		return model.Record{}, err
	}

	err := c.eachChild(ctx, src, "clone", func(ctx context.Context, kid model.Record) error {
		if kid.Hidden() {
			return nil
		}
		_, err := c.clone(ctx, kid, cloneSpec{
			parentID: rec.ID,
			scopeID:  rec.ScopeID,
			key:      kid.EffectiveSortKey(),
			inDraft:  spec.inDraft,
		})
		return err
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}
