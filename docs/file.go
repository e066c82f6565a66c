package docs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/warp/issuance-engine/wizard"
)

// FileUploader stores blobs on the local filesystem under a base
// directory. Suitable for single-node deployments; swap for an object
// store behind the same interface otherwise.
type FileUploader struct {
	BaseDir string
}

func NewFileUploader(baseDir string) *FileUploader {
	return &FileUploader{BaseDir: baseDir}
}

func (u *FileUploader) Upload(_ context.Context, filename string, r io.Reader) (wizard.StoredObject, error) {
	// Blob names are generated; the original filename only survives as
	// the final path element.
	rel := filepath.Join("temp", uuid.New().String(), filepath.Base(filename))
	abs := filepath.Join(u.BaseDir, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return wizard.StoredObject{}, fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return wizard.StoredObject{}, fmt.Errorf("create blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(abs)
		return wizard.StoredObject{}, fmt.Errorf("write blob: %w", err)
	}

	return wizard.StoredObject{
		StoragePath: rel,
		PublicURL:   "/files/" + filepath.ToSlash(rel),
	}, nil
}

func (u *FileUploader) Delete(_ context.Context, storagePath string) error {
	// Refuse paths that escape the base dir.
	clean := filepath.Clean(storagePath)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("invalid storage path %q", storagePath)
	}
	abs := filepath.Join(u.BaseDir, clean)
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
