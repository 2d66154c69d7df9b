package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that no document exists for the id.
var ErrNotFound = errors.New("document not found")

// DocumentInfo holds document metadata and content.
type DocumentInfo struct {
	ID        string
	Content   string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Revision is one saved snapshot of a document, retained for history.
type Revision struct {
	Content string
	SavedAt time.Time
}

// DocumentStore abstracts document persistence.
// Implementations: MemoryStore, CachedStore (write-behind), FirestoreStore.
type DocumentStore interface {
	Create(ctx context.Context, id, content string) error
	Get(ctx context.Context, id string) (*DocumentInfo, error)
	List(ctx context.Context) ([]DocumentInfo, error)
	UpdateContent(ctx context.Context, id, content string, version int) error
	AppendRevision(ctx context.Context, id string, rev Revision, version int) error
	GetRevisions(ctx context.Context, id string, fromVersion int) ([]Revision, error)
}
