// Package editor defines the collaborator surface the merge engine writes
// through, plus the surface implementations shipped with the service.
package editor

import (
	"context"
	"errors"

	"github.com/alimasry/go-inline-edit/merge"
)

// ErrNotFound reports that the surface has no document for the target.
var ErrNotFound = errors.New("target not found")

// Range is a half-open byte range [Start, End) into the document text.
type Range struct {
	Start int
	End   int
}

// Highlight is a visual annotation for one edit block's replacement text.
type Highlight struct {
	BlockID string
	Range   Range
	Status  merge.Status
}

// Surface abstracts the editing surface that owns the visible document.
// ReadFullText and ApplyFullTextReplace are the load-bearing operations;
// ShowActive, Highlight and Reveal are cosmetic and callers treat their
// failures as best-effort.
type Surface interface {
	// ReadFullText returns the current full text of the target. It fails
	// with ErrNotFound when the surface has no such document.
	ReadFullText(ctx context.Context, target string) (string, error)

	// ShowActive brings the target into focus.
	ShowActive(ctx context.Context, target string) error

	// ApplyFullTextReplace atomically replaces the target's entire text.
	ApplyFullTextReplace(ctx context.Context, target, text string) error

	// Highlight replaces the target's block annotations with hs.
	Highlight(ctx context.Context, target string, hs []Highlight) error

	// Reveal scrolls the target so the range is visible.
	Reveal(ctx context.Context, target string, r Range) error

	// Persist saves the target's current text to durable storage.
	Persist(ctx context.Context, target string) error
}
