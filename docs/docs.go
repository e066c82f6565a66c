/*
Package docs runs document uploads for the wizard's documents step.

PURPOSE:
  Uploads are concurrent per file, each tracked independently through the
  draft's document entries: one failure never blocks the others or the
  wizard. The tracker only moves status (uploading -> uploaded|error); it
  never interprets the storage medium.

SEE ALSO:
  - wizard/types.go: Document, Uploader, StoredObject
*/
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/issuance-engine/wizard"
)

// =============================================================================
// TRACKER - Concurrent per-file upload driver
// =============================================================================

type Tracker struct {
	uploader wizard.Uploader
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewTracker(uploader wizard.Uploader, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{uploader: uploader, log: log}
}

// Start registers the document on the wizard and uploads it in the
// background, completing or failing the entry when done.
func (t *Tracker) Start(ctx context.Context, w *wizard.Wizard, name string, r io.Reader) wizard.Document {
	doc := w.AddDocument(uuid.NewString(), name)

	// A misconfigured service must fail the entry, not panic a goroutine.
	if t.uploader == nil {
		err := errors.New("document storage not configured")
		t.log.Warn("document upload failed", zap.String("name", name), zap.Error(err))
		w.FailDocument(doc.ID, err)
		doc.Status = wizard.DocError
		doc.Error = err.Error()
		return doc
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		obj, err := t.uploader.Upload(ctx, name, r)
		if err != nil {
			t.log.Warn("document upload failed", zap.String("name", name), zap.Error(err))
			w.FailDocument(doc.ID, err)
			return
		}
		w.CompleteDocument(doc.ID, obj)
	}()
	return doc
}

// Wait blocks until every started upload settled. Used by tests and by
// graceful shutdown.
func (t *Tracker) Wait() { t.wg.Wait() }

// =============================================================================
// MEMORY UPLOADER - In-memory blob storage (tests, dev)
// =============================================================================

type MemoryUploader struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// FailWith makes every upload fail; tests use it to exercise the
	// error path.
	FailWith error
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{blobs: make(map[string][]byte)}
}

func (m *MemoryUploader) Upload(_ context.Context, filename string, r io.Reader) (wizard.StoredObject, error) {
	if m.FailWith != nil {
		return wizard.StoredObject{}, m.FailWith
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return wizard.StoredObject{}, err
	}

	path := fmt.Sprintf("temp/%s/%s", uuid.NewString(), filename)
	m.mu.Lock()
	m.blobs[path] = buf.Bytes()
	m.mu.Unlock()

	return wizard.StoredObject{
		StoragePath: path,
		PublicURL:   "memory://" + path,
	}, nil
}

func (m *MemoryUploader) Delete(_ context.Context, storagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, storagePath)
	return nil
}

// Stored reports whether a blob still exists. Test helper.
func (m *MemoryUploader) Stored(storagePath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[storagePath]
	return ok
}
