package session

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alimasry/go-inline-edit/editor"
	"github.com/alimasry/go-inline-edit/merge"
)

// FinalEdit is one entry of a ForceFinalizeAll batch.
type FinalEdit struct {
	BlockID        string
	SearchContent  string
	ReplaceContent string
}

type opKind uint8

const (
	opStream opKind = iota
	opFinal
)

// pendingOp is a stream/final call that arrived before a session existed.
type pendingOp struct {
	kind       opKind
	id         string
	search     string
	content    string
	receivedAt time.Time
}

// Controller accepts streamed search/replace edits for at most one live
// document session and keeps the surface's text equal to the merge of the
// original snapshot with every block received so far. All mutations are
// serialized through a single-worker queue, so two producers can call it
// concurrently without corrupting the session.
type Controller struct {
	surface editor.Surface
	logger  *zap.Logger
	queue   *Queue

	sess       atomic.Pointer[Session]
	autoScroll atomic.Bool

	// pending holds stream/final calls made while no session is live.
	// Touched only inside queue tasks.
	pending []pendingOp
}

func NewController(surface editor.Surface, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		surface: surface,
		logger:  logger,
		queue:   NewQueue(),
	}
	c.autoScroll.Store(true)
	return c
}

// Open creates the session for target, seeds it with one Pending block for
// blockID, replays buffered operations, and refreshes the document. It is a
// no-op when a session is already live; it never resets existing state.
// Open jumps ahead of tasks already waiting in the queue.
func (c *Controller) Open(ctx context.Context, blockID, target, searchContent string) error {
	return c.queue.DoFront(ctx, func(ctx context.Context) error {
		return c.open(ctx, blockID, target, searchContent)
	})
}

func (c *Controller) open(ctx context.Context, blockID, target, searchContent string) error {
	if c.sess.Load() != nil {
		return nil
	}

	if err := c.surface.ShowActive(ctx, target); err != nil {
		c.logger.Warn("cannot focus target", zap.String("target", target), zap.Error(err))
	}
	text, err := c.surface.ReadFullText(ctx, target)
	if err != nil {
		return fmt.Errorf("open %q: %w: %w", target, ErrTargetUnavailable, err)
	}

	sess := newSession(target, text)
	sess.upsert(blockID, searchContent)
	c.sess.Store(sess)
	c.logger.Info("session opened", zap.String("target", target), zap.String("block", blockID))

	c.replayPending(ctx, sess)

	// The session stays live even when this refresh fails: the producer is
	// expected to re-send corrected content.
	return c.refresh(ctx, sess, blockID)
}

// replayPending replays operations buffered before the session existed, in
// arrival order. Replay failures are logged, not fatal.
func (c *Controller) replayPending(ctx context.Context, sess *Session) {
	buffered := c.pending
	c.pending = nil
	for _, op := range buffered {
		var err error
		switch op.kind {
		case opStream:
			err = c.applyStream(ctx, sess, op.id, op.search, op.content)
		case opFinal:
			err = c.applyFinal(ctx, sess, op.id, op.search, op.content)
		}
		if err != nil {
			c.logger.Warn("buffered operation failed during replay",
				zap.String("block", op.id),
				zap.Duration("buffered_for", time.Since(op.receivedAt)),
				zap.Error(err))
		}
	}
}

// ApplyStream records the latest streamed replacement for a block and
// re-merges the document. Calls made while no session is live are buffered
// and replayed in arrival order when one opens.
func (c *Controller) ApplyStream(ctx context.Context, blockID, searchContent, content string) error {
	return c.queue.Do(ctx, func(ctx context.Context) error {
		sess := c.sess.Load()
		if sess == nil {
			c.buffer(opStream, blockID, searchContent, content)
			return nil
		}
		return c.applyStream(ctx, sess, blockID, searchContent, content)
	})
}

func (c *Controller) applyStream(ctx context.Context, sess *Session, blockID, searchContent, content string) error {
	b := sess.upsert(blockID, searchContent)
	if err := b.Transition(merge.StatusStreaming); err != nil {
		return err
	}
	b.CurrentContent = content
	return c.refresh(ctx, sess, blockID)
}

// ApplyFinal is ApplyStream plus the block's terminal transition: the
// content is recorded as FinalContent and the status becomes Final.
func (c *Controller) ApplyFinal(ctx context.Context, blockID, searchContent, content string) error {
	return c.queue.Do(ctx, func(ctx context.Context) error {
		sess := c.sess.Load()
		if sess == nil {
			c.buffer(opFinal, blockID, searchContent, content)
			return nil
		}
		return c.applyFinal(ctx, sess, blockID, searchContent, content)
	})
}

func (c *Controller) applyFinal(ctx context.Context, sess *Session, blockID, searchContent, content string) error {
	b := sess.upsert(blockID, searchContent)
	if err := b.Transition(merge.StatusFinal); err != nil {
		return err
	}
	b.CurrentContent = content
	b.FinalContent = content
	return c.refresh(ctx, sess, blockID)
}

// ForceFinalizeAll finalizes every listed block, creating missing ones, and
// re-merges the document once for the whole batch.
func (c *Controller) ForceFinalizeAll(ctx context.Context, edits []FinalEdit) error {
	return c.queue.Do(ctx, func(ctx context.Context) error {
		sess, err := c.requireSession()
		if err != nil {
			return err
		}
		for _, e := range edits {
			b := sess.upsert(e.BlockID, e.SearchContent)
			if err := b.Transition(merge.StatusFinal); err != nil {
				return err
			}
			b.CurrentContent = e.ReplaceContent
			b.FinalContent = e.ReplaceContent
		}
		return c.refresh(ctx, sess, "")
	})
}

// SaveChanges persists the document as the surface holds it, including any
// edits the user made after the last merge. It returns the saved text and
// tears down the session.
func (c *Controller) SaveChanges(ctx context.Context) (string, error) {
	var text string
	err := c.queue.Do(ctx, func(ctx context.Context) error {
		sess, err := c.requireSession()
		if err != nil {
			return err
		}
		if err := c.surface.Persist(ctx, sess.target); err != nil {
			return fmt.Errorf("save %q: %w", sess.target, err)
		}
		saved, err := c.surface.ReadFullText(ctx, sess.target)
		if err != nil {
			return fmt.Errorf("save %q: %w", sess.target, err)
		}
		text = saved
		c.teardown(ctx, sess)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// RejectChanges discards every merge by writing the original snapshot back
// byte-exactly, persists it, and tears down the session. Irreversible.
func (c *Controller) RejectChanges(ctx context.Context) error {
	return c.queue.Do(ctx, func(ctx context.Context) error {
		sess, err := c.requireSession()
		if err != nil {
			return err
		}
		if err := c.surface.ApplyFullTextReplace(ctx, sess.target, sess.original); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteBack, err)
		}
		if err := c.surface.Persist(ctx, sess.target); err != nil {
			return fmt.Errorf("reject %q: %w", sess.target, err)
		}
		c.teardown(ctx, sess)
		return nil
	})
}

// SetAutoScroll toggles whether refreshes reveal the updated block's range.
func (c *Controller) SetAutoScroll(enabled bool) { c.autoScroll.Store(enabled) }

// IsOpen reports whether a session is live.
func (c *Controller) IsOpen() bool { return c.sess.Load() != nil }

// Close stops the controller's queue. Waiting and future tasks fail with
// ErrQueueClosed; the session, if any, is not saved or rejected.
func (c *Controller) Close() error {
	c.queue.Close()
	return nil
}

// SessionView is a point-in-time copy of the live session, safe to use
// outside the controller's queue.
type SessionView struct {
	Target  string
	Current string
	Blocks  []merge.Block
}

// Snapshot copies the live session's state. It runs as a queue task so the
// copy is consistent with the total mutation order.
func (c *Controller) Snapshot(ctx context.Context) (SessionView, error) {
	var view SessionView
	err := c.queue.Do(ctx, func(context.Context) error {
		sess, err := c.requireSession()
		if err != nil {
			return err
		}
		view = SessionView{Target: sess.target, Current: sess.current}
		view.Blocks = make([]merge.Block, 0, len(sess.order))
		for _, b := range sess.order {
			view.Blocks = append(view.Blocks, *b)
		}
		return nil
	})
	return view, err
}

// requireSession returns the live session or ErrNoSession.
func (c *Controller) requireSession() (*Session, error) {
	sess := c.sess.Load()
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

// buffer records an operation that arrived while no session was live.
func (c *Controller) buffer(kind opKind, id, search, content string) {
	c.pending = append(c.pending, pendingOp{
		kind:       kind,
		id:         id,
		search:     search,
		content:    content,
		receivedAt: time.Now(),
	})
	c.logger.Debug("operation buffered until open", zap.String("block", id))
}

// refresh recomputes the merged document from the original snapshot and
// commits it through one atomic full-text replace. The session's current
// text is updated only after the replace succeeds, so neither a failed merge
// nor a failed write-back ever corrupts it. Highlighting and revealing are
// best-effort.
func (c *Controller) refresh(ctx context.Context, sess *Session, focusID string) error {
	merged, err := merge.Merge(sess.original, sess.order)
	if err != nil {
		return err
	}
	if err := c.surface.ApplyFullTextReplace(ctx, sess.target, merged); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteBack, err)
	}
	sess.current = merged

	hs := c.highlights(sess, merged)
	if err := c.surface.Highlight(ctx, sess.target, hs); err != nil {
		c.logger.Warn("highlight failed", zap.String("target", sess.target), zap.Error(err))
	}
	if focusID != "" && c.autoScroll.Load() {
		if r, ok := findHighlight(hs, focusID); ok {
			if err := c.surface.Reveal(ctx, sess.target, r); err != nil {
				c.logger.Warn("reveal failed", zap.String("target", sess.target), zap.Error(err))
			}
		}
	}
	return nil
}

// teardown clears decorations and releases the session. Stream/final calls
// made after teardown buffer toward the next session, exactly as before the
// first open; session-requiring calls fail with ErrNoSession.
func (c *Controller) teardown(ctx context.Context, sess *Session) {
	if err := c.surface.Highlight(ctx, sess.target, nil); err != nil {
		c.logger.Warn("cannot clear highlights", zap.String("target", sess.target), zap.Error(err))
	}
	c.sess.Store(nil)
	c.logger.Info("session closed", zap.String("target", sess.target))
}

// highlights locates each block's replacement text inside the merged
// document. Blocks whose content is empty or absent are skipped.
func (c *Controller) highlights(sess *Session, merged string) []editor.Highlight {
	hs := make([]editor.Highlight, 0, len(sess.order))
	for _, b := range sess.order {
		content := merge.Normalize(b.CurrentContent)
		if content == "" {
			continue
		}
		if i := strings.Index(merged, content); i >= 0 {
			hs = append(hs, editor.Highlight{
				BlockID: b.ID,
				Range:   editor.Range{Start: i, End: i + len(content)},
				Status:  b.Status,
			})
		}
	}
	return hs
}

func findHighlight(hs []editor.Highlight, blockID string) (editor.Range, bool) {
	for _, h := range hs {
		if h.BlockID == blockID {
			return h.Range, true
		}
	}
	return editor.Range{}, false
}
