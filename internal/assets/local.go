package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps uploaded binaries on disk. It backs development setups
// that run without an object store.
type LocalStore struct {
	rootAbs string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("asset root path cannot be empty")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve asset root: %w", err)
	}
	if err := os.MkdirAll(rootAbs, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}

	return &LocalStore{rootAbs: rootAbs}, nil
}

func (s *LocalStore) RootAbs() string {
	return s.rootAbs
}

func (s *LocalStore) UploadBinary(ctx context.Context, tenantID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref, err := NewRef(tenantID, DetectMIME(data))
	if err != nil {
		return "", err
	}
	resolved, err := s.resolve(ref)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset %q: %w", ref, err)
	}

	slog.Debug("asset stored", "ref", ref, "bytes", len(data))
	return ref, nil
}

// DeleteBinary removes the object. A missing object is not an error.
func (s *LocalStore) DeleteBinary(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove asset %q: %w", ref, err)
	}
	return nil
}

// Open returns a reader for a stored object.
func (s *LocalStore) Open(ref string) (*os.File, error) {
	resolved, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(resolved)
}

func (s *LocalStore) resolve(ref string) (string, error) {
	if err := ValidateRef(ref); err != nil {
		return "", err
	}

	resolved, err := filepath.Abs(filepath.Join(s.rootAbs, filepath.FromSlash(ref)))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	if !isWithinRoot(s.rootAbs, resolved) {
		return "", fmt.Errorf("asset ref %q resolves outside the asset root", ref)
	}
	return resolved, nil
}

func isWithinRoot(rootAbs string, candidateAbs string) bool {
	if candidateAbs == rootAbs {
		return false
	}
	return strings.HasPrefix(candidateAbs, rootAbs+string(filepath.Separator))
}
