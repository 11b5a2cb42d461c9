package service

import (
	"context"
	"slices"

	"survey-engine/internal/model"
)

// LimitHandle is returned by a successful quota check and released once the
// creation it guarded has committed.
type LimitHandle struct {
	TenantID string
	Type     model.EntityType
	Token    string
}

// LimitChecker accounts per-tenant quotas. CheckLimit returns an error
// wrapping model.ErrLimitExceeded when the record may not be created.
type LimitChecker interface {
	CheckLimit(ctx context.Context, rec model.Record) (LimitHandle, error)
	ReleaseLimit(ctx context.Context, handle LimitHandle) error
}

// Translator produces the fields of one language from another. It owns no
// state.
type Translator interface {
	TranslateFields(ctx context.Context, fields model.Fields, from string, to string) (model.Fields, error)
}

// AssetStore keeps binary payloads referenced from record fields.
type AssetStore interface {
	UploadBinary(ctx context.Context, tenantID string, data []byte) (string, error)
	DeleteBinary(ctx context.Context, ref string) error
}

type NoLimit struct{}

func (NoLimit) CheckLimit(_ context.Context, rec model.Record) (LimitHandle, error) {
	return LimitHandle{TenantID: rec.TenantID, Type: rec.Type}, nil
}

func (NoLimit) ReleaseLimit(context.Context, LimitHandle) error { return nil }

// CopyTranslator returns the source fields unchanged for every language.
type CopyTranslator struct{}

func (CopyTranslator) TranslateFields(_ context.Context, fields model.Fields, _ string, _ string) (model.Fields, error) {
	return fields.Clone(), nil
}

type noAssets struct{}

func (noAssets) UploadBinary(context.Context, string, []byte) (string, error) {
	return "", model.ErrValidation
}

func (noAssets) DeleteBinary(context.Context, string) error { return nil }

// Collaborators bundles the external services the engine calls. Nil members
// fall back to NoLimit, CopyTranslator and a store that rejects uploads.
type Collaborators struct {
	Limits     LimitChecker
	Translator Translator
	Assets     AssetStore
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Limits == nil {
		c.Limits = NoLimit{}
	}
	if c.Translator == nil {
		c.Translator = CopyTranslator{}
	}
	if c.Assets == nil {
		c.Assets = noAssets{}
	}
	return c
}

var assetFields = []string{"image", "logo", "background", "media", "attachment"}

var translatableFields = []string{"title", "text", "description", "label"}

func isAssetField(key string) bool {
	return slices.Contains(assetFields, key)
}

func assetRef(fields model.Fields, key string) string {
	if !isAssetField(key) {
		return ""
	}
	return fields.String(key)
}

// assetRefs lists every asset reference held by fields.
func assetRefs(fields model.Fields) []string {
	var refs []string
	for _, key := range assetFields {
		if ref := fields.String(key); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}
