// Package merge implements the edit-block data model and the deterministic
// merge algorithm that rebuilds a document from its original snapshot plus a
// set of streamed search/replace blocks.
package merge

import (
	"fmt"
	"sort"
	"strings"
)

// BlockError reports a block whose search anchor could not be located in the
// working text at the moment of substitution. The merge that produced it
// committed nothing.
type BlockError struct {
	ID string
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %q: search content not found in document", e.ID)
}

// Merge rebuilds the document from the original snapshot and all blocks.
//
// The document is always recomputed from the immutable original rather than
// patched incrementally: blocks stream independently, are revised across
// calls, and arrive out of physical order, so a full rebuild with a stable
// ordering rule is what makes the result idempotent and drift-free.
//
// Blocks are replayed top to bottom as they would appear physically: ordered
// by the first occurrence of their normalized anchor in the normalized
// original. Blocks whose anchor does not appear in the original sort after
// all found blocks, preserving arrival order among themselves; they may still
// match text introduced by an earlier block's replacement. Each block then
// replaces exactly the first occurrence of its normalized anchor in the
// working text with its normalized replacement. A block whose anchor equals
// its replacement is a no-op. A block whose anchor cannot be found fails the
// whole merge with *BlockError and nothing is committed.
func Merge(original string, blocks []*Block) (string, error) {
	working := Normalize(original)
	for _, b := range orderBlocks(working, blocks) {
		search := Normalize(b.SearchContent)
		replace := Normalize(b.CurrentContent)
		if search == replace {
			continue
		}
		next := strings.Replace(working, search, replace, 1)
		if next == working {
			return "", &BlockError{ID: b.ID}
		}
		working = next
	}
	return working, nil
}

// orderBlocks returns the blocks sorted by the position of their anchor in
// the normalized original. Anchors not present in the original report -1 and
// are ordered last; the sort is stable so equal positions keep input order.
func orderBlocks(normalizedOriginal string, blocks []*Block) []*Block {
	type anchored struct {
		block *Block
		pos   int
	}
	ordered := make([]anchored, len(blocks))
	for i, b := range blocks {
		ordered[i] = anchored{block: b, pos: strings.Index(normalizedOriginal, Normalize(b.SearchContent))}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].pos < 0 {
			return false
		}
		if ordered[j].pos < 0 {
			return true
		}
		return ordered[i].pos < ordered[j].pos
	})
	result := make([]*Block, len(ordered))
	for i, a := range ordered {
		result[i] = a.block
	}
	return result
}
