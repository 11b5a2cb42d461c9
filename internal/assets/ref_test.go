package assets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"survey-engine/internal/model"
)

func TestNewRef(t *testing.T) {
	t.Parallel()

	ref, err := NewRef("tenant-1", "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "tenant-1/"))
	require.True(t, strings.HasSuffix(ref, ".png"))
	require.NoError(t, ValidateRef(ref))

	_, err = NewRef(" ", "image/png")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = NewRef("../etc", "image/png")
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestValidateRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
		ok   bool
	}{
		{name: "tenant object", ref: "tenant-1/logo.png", ok: true},
		{name: "empty", ref: ""},
		{name: "absolute", ref: "/tenant-1/logo.png"},
		{name: "traversal", ref: "tenant-1/../tenant-2/logo.png"},
		{name: "backslash", ref: `tenant-1\logo.png`},
		{name: "double slash", ref: "tenant-1//logo.png"},
		{name: "dot segment", ref: "tenant-1/./logo.png"},
		{name: "null byte", ref: "tenant-1/logo\x00.png"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRef(tc.ref)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestOwnedBy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ref    string
		tenant string
		want   bool
	}{
		{name: "own object", ref: "tenant-1/logo.png", tenant: "tenant-1", want: true},
		{name: "other tenant", ref: "tenant-2/logo.png", tenant: "tenant-1"},
		{name: "shared prefix", ref: "tenant-10/logo.png", tenant: "tenant-1"},
		{name: "traversal", ref: "tenant-1/../tenant-2/logo.png", tenant: "tenant-1"},
		{name: "no tenant", ref: "tenant-1/logo.png", tenant: ""},
		{name: "bare tenant", ref: "tenant-1", tenant: "tenant-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, OwnedBy(tc.ref, tc.tenant))
		})
	}
}
