package merge

import "fmt"

// Status is the lifecycle state of an edit block.
type Status uint8

const (
	// StatusPending is the initial state of a block that has been announced
	// but has not received replacement content yet.
	StatusPending Status = iota

	// StatusStreaming marks a block whose replacement content is still being
	// revised by the producer.
	StatusStreaming

	// StatusFinal is terminal. The block's content will no longer change
	// through streaming; only a forced finalize may rewrite it.
	StatusFinal
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Block is one proposed search/replace unit. SearchContent anchors the block
// to a location in the original document; CurrentContent is the latest
// replacement text and is rewritten on every stream update.
type Block struct {
	ID             string
	SearchContent  string
	CurrentContent string
	// FinalContent is set when the block is finalized and kept for history.
	FinalContent string
	Status       Status
}

// NewBlock creates a pending block anchored to searchContent.
// The anchor is fixed for the block's lifetime.
func NewBlock(id, searchContent string) *Block {
	return &Block{ID: id, SearchContent: searchContent, Status: StatusPending}
}

// Transition moves the block to next. Transitions are monotonic: pending,
// then streaming, then final. Re-asserting the current status is allowed,
// moving backward is not.
func (b *Block) Transition(next Status) error {
	if next < b.Status {
		return fmt.Errorf("block %q: cannot transition from %s back to %s", b.ID, b.Status, next)
	}
	b.Status = next
	return nil
}
