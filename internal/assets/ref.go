package assets

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"survey-engine/internal/model"
)

// NewRef builds the object key for a new upload: <tenant>/<uuid><ext>.
func NewRef(tenantID string, mimeType string) (string, error) {
	tenant := strings.TrimSpace(tenantID)
	if tenant == "" {
		return "", fmt.Errorf("%w: asset owner tenant is required", model.ErrValidation)
	}
	if err := validateSegment(tenant); err != nil {
		return "", err
	}
	return tenant + "/" + uuid.NewString() + ExtensionFor(mimeType), nil
}

// ValidateRef rejects refs that could escape the tenant's key space.
func ValidateRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("%w: asset ref cannot be empty", model.ErrValidation)
	}
	if strings.HasPrefix(ref, "/") || strings.Contains(ref, `\`) {
		return fmt.Errorf("%w: asset ref %q must be relative", model.ErrValidation, ref)
	}
	for _, segment := range strings.Split(ref, "/") {
		if err := validateSegment(segment); err != nil {
			return err
		}
	}
	if path.Clean(ref) != ref {
		return fmt.Errorf("%w: asset ref %q is not canonical", model.ErrValidation, ref)
	}
	return nil
}

func validateSegment(segment string) error {
	switch segment {
	case "", ".", "..":
		return fmt.Errorf("%w: invalid asset ref segment %q", model.ErrValidation, segment)
	}
	if strings.ContainsAny(segment, `/\`) || hasControlCharacters(segment) {
		return fmt.Errorf("%w: asset ref segment %q contains invalid characters", model.ErrValidation, segment)
	}
	return nil
}

func hasControlCharacters(value string) bool {
	for _, char := range value {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}

// OwnedBy reports whether ref is a well-formed key inside tenantID's space.
func OwnedBy(ref, tenantID string) bool {
	if strings.TrimSpace(tenantID) == "" || ValidateRef(ref) != nil {
		return false
	}
	return strings.HasPrefix(ref, tenantID+"/")
}
