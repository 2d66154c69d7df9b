package editor

import (
	"context"
	"fmt"
	"sync"
)

type memoryDoc struct {
	text       string
	highlights []Highlight
	persisted  string
	saves      int
	reveals    []Range
	active     bool
}

// MemorySurface is an in-memory implementation of Surface. It records every
// cosmetic call so tests and embedding code can inspect what the engine did.
type MemorySurface struct {
	mu   sync.RWMutex
	docs map[string]*memoryDoc
}

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{docs: make(map[string]*memoryDoc)}
}

// SetText creates or overwrites the target's text outside the session flow,
// standing in for the user typing into the document.
func (s *MemorySurface) SetText(target, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[target]
	if !ok {
		doc = &memoryDoc{}
		s.docs[target] = doc
	}
	doc.text = text
}

func (s *MemorySurface) ReadFullText(_ context.Context, target string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[target]
	if !ok {
		return "", fmt.Errorf("read %q: %w", target, ErrNotFound)
	}
	return doc.text, nil
}

func (s *MemorySurface) ShowActive(_ context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[target]
	if !ok {
		return fmt.Errorf("show %q: %w", target, ErrNotFound)
	}
	for _, other := range s.docs {
		other.active = false
	}
	doc.active = true
	return nil
}

func (s *MemorySurface) ApplyFullTextReplace(_ context.Context, target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[target]
	if !ok {
		return fmt.Errorf("replace %q: %w", target, ErrNotFound)
	}
	doc.text = text
	return nil
}

func (s *MemorySurface) Highlight(_ context.Context, target string, hs []Highlight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[target]
	if !ok {
		return fmt.Errorf("highlight %q: %w", target, ErrNotFound)
	}
	doc.highlights = append([]Highlight(nil), hs...)
	return nil
}

func (s *MemorySurface) Reveal(_ context.Context, target string, r Range) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[target]
	if !ok {
		return fmt.Errorf("reveal %q: %w", target, ErrNotFound)
	}
	doc.reveals = append(doc.reveals, r)
	return nil
}

func (s *MemorySurface) Persist(_ context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[target]
	if !ok {
		return fmt.Errorf("persist %q: %w", target, ErrNotFound)
	}
	doc.persisted = doc.text
	doc.saves++
	return nil
}

// Text returns the target's current text, or "" if the target is unknown.
func (s *MemorySurface) Text(target string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[target]; ok {
		return doc.text
	}
	return ""
}

// PersistedText returns the text captured by the last Persist call.
func (s *MemorySurface) PersistedText(target string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[target]; ok {
		return doc.persisted
	}
	return ""
}

// SaveCount returns how many times the target has been persisted.
func (s *MemorySurface) SaveCount(target string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[target]; ok {
		return doc.saves
	}
	return 0
}

// Highlights returns the target's current annotations.
func (s *MemorySurface) Highlights(target string) []Highlight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[target]; ok {
		return append([]Highlight(nil), doc.highlights...)
	}
	return nil
}

// Reveals returns every range revealed on the target, in call order.
func (s *MemorySurface) Reveals(target string) []Range {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[target]; ok {
		return append([]Range(nil), doc.reveals...)
	}
	return nil
}

// Active reports whether the target is the focused document.
func (s *MemorySurface) Active(target string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[target]; ok {
		return doc.active
	}
	return false
}

var _ Surface = (*MemorySurface)(nil)
