package model

import (
	"encoding/json"
	"time"
)

// AuditEntry is one engine event as recorded in the tenant's activity trail.
type AuditEntry struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type AuditQuery struct {
	TenantID string
	Action   string
	ActorID  string
	Resource string
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}

// Normalize clamps paging to 1-based pages of at most 200 entries.
func (q AuditQuery) Normalize() AuditQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return q
}

func (q AuditQuery) Matches(e AuditEntry) bool {
	if q.TenantID != "" && e.TenantID != q.TenantID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.Resource != "" && e.Resource != q.Resource {
		return false
	}
	if !q.From.IsZero() && e.OccurredAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.OccurredAt.After(q.To) {
		return false
	}
	return true
}

func NewMeta(page, limit, total int) Meta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Meta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
