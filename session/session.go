package session

import (
	"github.com/alimasry/go-inline-edit/merge"
)

// Session is the working state for one open document target. It is owned by
// the Controller and mutated only inside queue tasks.
type Session struct {
	target   string
	original string // snapshot captured at open; never changes
	current  string // last successfully merged document text

	// Blocks in arrival order. Arrival order is the deterministic tie-break
	// for blocks whose anchors are absent from the original.
	order  []*merge.Block
	blocks map[string]*merge.Block
}

func newSession(target, text string) *Session {
	return &Session{
		target:   target,
		original: text,
		current:  text,
		blocks:   make(map[string]*merge.Block),
	}
}

// upsert returns the block for id, creating a Pending one on first sight.
// A block's search anchor is fixed at creation; later calls for the same id
// never rewrite it.
func (s *Session) upsert(id, searchContent string) *merge.Block {
	if b, ok := s.blocks[id]; ok {
		return b
	}
	b := merge.NewBlock(id, searchContent)
	s.blocks[id] = b
	s.order = append(s.order, b)
	return b
}
