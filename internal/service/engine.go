package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"survey-engine/internal/event"
	"survey-engine/internal/model"
	"survey-engine/internal/ordering"
	"survey-engine/internal/repository"
)

// Settings tunes the overlay and trash services.
type Settings struct {
	CascadeConcurrency int
	SortKeyMinGap      float64
	TrashRetention     time.Duration
	TrashMaxAttempts   int
}

func DefaultSettings() Settings {
	return Settings{
		CascadeConcurrency: 5,
		SortKeyMinGap:      1e-9,
		TrashRetention:     30 * 24 * time.Hour,
		TrashMaxAttempts:   5,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.CascadeConcurrency <= 0 {
		s.CascadeConcurrency = d.CascadeConcurrency
	}
	if s.SortKeyMinGap <= 0 {
		s.SortKeyMinGap = d.SortKeyMinGap
	}
	if s.TrashRetention <= 0 {
		s.TrashRetention = d.TrashRetention
	}
	if s.TrashMaxAttempts <= 0 {
		s.TrashMaxAttempts = d.TrashMaxAttempts
	}
	return s
}

// Actor is the caller an operation runs for. Operations without an actor in
// their context (the sweeper, the operator CLI) skip tenant checks.
type Actor struct {
	TenantID string
	UserID   string
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// authorize hides records of other tenants behind ErrNotFound.
func authorize(ctx context.Context, rec model.Record) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.TenantID == "" || actor.TenantID == rec.TenantID {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrNotFound, rec.ID)
}

func loadRecord(ctx context.Context, tx repository.Tx, id string) (model.Record, error) {
	rec, err := tx.GetRecord(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if err := authorize(ctx, rec); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// draftOpen reports whether the draft scope rec belongs to is open.
func draftOpen(ctx context.Context, tx repository.Tx, rec model.Record) (bool, error) {
	if rec.ScopeID == "" {
		return false, nil
	}
	if rec.Type == model.EntitySurvey && rec.ScopeID == rec.ID {
		return rec.DraftOpen, nil
	}
	scope, err := tx.GetRecord(ctx, rec.ScopeID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load draft scope: %w", err)
	}
	return scope.DraftOpen, nil
}

// ownerChain lists the ancestors of rec, nearest first.
func ownerChain(ctx context.Context, tx repository.Tx, rec model.Record) ([]model.Ref, error) {
	var chain []model.Ref
	for id := rec.ParentID; id != ""; {
		parent, err := tx.GetRecord(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load owner %s: %w", id, err)
		}
		chain = append(chain, parent.Ref())
		id = parent.ParentID
	}
	return chain, nil
}

func toSiblings(records []model.Record) []ordering.Sibling {
	out := make([]ordering.Sibling, len(records))
	for i, r := range records {
		out[i] = ordering.Sibling{ID: r.ID, Key: r.EffectiveSortKey(), Hidden: r.Hidden()}
	}
	return out
}

func publish(ctx context.Context, bus event.Bus, typ event.Type, tenantID string, payload any) {
	if bus == nil {
		return
	}
	actor, _ := ActorFrom(ctx)
	bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TenantID:  tenantID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actor.UserID,
	})
}
