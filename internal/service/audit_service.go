package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"survey-engine/internal/event"
	"survey-engine/internal/model"
)

// AuditLog persists the activity trail.
type AuditLog interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService records every engine event published on the bus and answers
// tenant-scoped queries over the trail.
type AuditService struct {
	log AuditLog
	bus event.Bus
}

func NewAuditService(log AuditLog, bus event.Bus) *AuditService {
	return &AuditService{log: log, bus: bus}
}

// Start subscribes before returning, so no event published afterwards is
// missed, and consumes the bus in the background until ctx is cancelled.
func (s *AuditService) Start(ctx context.Context) {
	events, unsubscribe := s.bus.Subscribe()
	go s.consume(ctx, events, unsubscribe)
}

func (s *AuditService) consume(ctx context.Context, events <-chan event.Event, unsubscribe func()) {
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := s.Record(ctx, e); err != nil {
				slog.Warn("audit entry dropped", "event_id", e.ID, "type", e.Type, "error", err)
			}
		}
	}
}

// Record stores one event. Re-recording the same event id is a no-op.
func (s *AuditService) Record(ctx context.Context, e event.Event) error {
	entry := model.AuditEntry{
		ID:       e.ID,
		TenantID: e.TenantID,
		ActorID:  e.ActorID,
		Action:   string(e.Type),
		Resource: resourceOf(e.Payload),
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		occurredAt = time.Now()
	}
	entry.OccurredAt = occurredAt.UTC()

	if e.Payload != nil {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode audit payload: %w", err)
		}
		entry.Payload = payload
	}

	return s.log.Append(ctx, entry)
}

// Query lists the caller's trail. Callers with a tenant never see another
// tenant's entries or the tenant-less sweep reports.
func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if actor, ok := ActorFrom(ctx); ok && actor.TenantID != "" {
		query.TenantID = actor.TenantID
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return nil, model.Meta{}, fmt.Errorf("%w: audit range ends before it starts", model.ErrValidation)
	}
	return s.log.Query(ctx, query)
}

func resourceOf(payload any) string {
	switch p := payload.(type) {
	case model.Ref:
		return p.String()
	case model.RecordView:
		return model.Ref{Type: p.Type, ID: p.ID}.String()
	case model.TrashEntry:
		return p.Target().String()
	case map[string]any:
		if id, ok := p["entry_id"].(string); ok {
			return "trash:" + id
		}
	}
	return ""
}
