package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alimasry/go-inline-edit/store"
)

type storeBuffer struct {
	text    string
	version int
}

// StoreSurface serves documents from a store.DocumentStore. Reads load the
// stored content into a working buffer, full-text replaces mutate only the
// buffer, and Persist writes the buffer back with a bumped version plus a
// revision snapshot for history.
type StoreSurface struct {
	docs store.DocumentStore

	mu      sync.Mutex
	buffers map[string]*storeBuffer
}

func NewStoreSurface(docs store.DocumentStore) *StoreSurface {
	return &StoreSurface{docs: docs, buffers: make(map[string]*storeBuffer)}
}

func (s *StoreSurface) ReadFullText(ctx context.Context, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if buf, ok := s.buffers[target]; ok {
		return buf.text, nil
	}
	buf, err := s.load(ctx, target)
	if err != nil {
		return "", err
	}
	return buf.text, nil
}

func (s *StoreSurface) ShowActive(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers[target]; ok {
		return nil
	}
	_, err := s.load(ctx, target)
	return err
}

// load fetches the target from the store into a fresh buffer. Caller holds mu.
func (s *StoreSurface) load(ctx context.Context, target string) (*storeBuffer, error) {
	info, err := s.docs.Get(ctx, target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("read %q: %w", target, ErrNotFound)
		}
		return nil, fmt.Errorf("read %q: %w", target, err)
	}
	buf := &storeBuffer{text: info.Content, version: info.Version}
	s.buffers[target] = buf
	return buf, nil
}

func (s *StoreSurface) ApplyFullTextReplace(_ context.Context, target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[target]
	if !ok {
		return fmt.Errorf("replace %q: %w", target, ErrNotFound)
	}
	buf.text = text
	return nil
}

// Highlight is a no-op: stored documents carry no decorations.
func (s *StoreSurface) Highlight(context.Context, string, []Highlight) error { return nil }

// Reveal is a no-op: stored documents have no viewport.
func (s *StoreSurface) Reveal(context.Context, string, Range) error { return nil }

func (s *StoreSurface) Persist(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[target]
	if !ok {
		return fmt.Errorf("persist %q: %w", target, ErrNotFound)
	}
	version := buf.version + 1
	if err := s.docs.UpdateContent(ctx, target, buf.text, version); err != nil {
		return fmt.Errorf("persist %q: %w", target, err)
	}
	rev := store.Revision{Content: buf.text, SavedAt: time.Now()}
	if err := s.docs.AppendRevision(ctx, target, rev, version); err != nil {
		return fmt.Errorf("persist %q: %w", target, err)
	}
	buf.version = version
	return nil
}

var _ Surface = (*StoreSurface)(nil)
