package server

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/alimasry/go-inline-edit/session"
)

// Gateway routes WebSocket clients to the edit controller. Producers drive
// the session; every connected client sees the merged document after each
// change.
type Gateway struct {
	ctrl   *session.Controller
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewGateway(ctrl *session.Controller, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		ctrl:    ctrl,
		logger:  logger,
		clients: make(map[*Client]bool),
	}
}

func (g *Gateway) register(c *Client) {
	g.mu.Lock()
	g.clients[c] = true
	g.mu.Unlock()
	g.logger.Info("client connected", zap.String("client", c.ID))
}

func (g *Gateway) unregister(c *Client) {
	g.mu.Lock()
	if !g.clients[c] {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c)
	g.mu.Unlock()
	close(c.done)
	g.logger.Info("client disconnected", zap.String("client", c.ID))
}

// dispatch handles one validated client message. It is called from each
// client's read pump; the controller's queue serializes the edits.
func (g *Gateway) dispatch(c *Client, msg ClientMessage) {
	ctx := context.Background()

	switch msg.Type {
	case MsgOpen:
		if msg.Target == "" || msg.BlockID == "" {
			c.sendError("open requires target and blockId")
			return
		}
		if err := g.ctrl.Open(ctx, msg.BlockID, msg.Target, msg.Search); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMsg(ServerMessage{Type: MsgAck})
		g.broadcastDoc(ctx, c)

	case MsgStream:
		if msg.BlockID == "" {
			c.sendError("stream requires blockId")
			return
		}
		if err := g.ctrl.ApplyStream(ctx, msg.BlockID, msg.Search, msg.Content); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMsg(ServerMessage{Type: MsgAck})
		g.broadcastDoc(ctx, c)

	case MsgFinal:
		if msg.BlockID == "" {
			c.sendError("final requires blockId")
			return
		}
		if err := g.ctrl.ApplyFinal(ctx, msg.BlockID, msg.Search, msg.Content); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMsg(ServerMessage{Type: MsgAck})
		g.broadcastDoc(ctx, c)

	case MsgFinalize:
		edits := make([]session.FinalEdit, 0, len(msg.Edits))
		for _, e := range msg.Edits {
			edits = append(edits, session.FinalEdit{
				BlockID:        e.BlockID,
				SearchContent:  e.Search,
				ReplaceContent: e.Content,
			})
		}
		if err := g.ctrl.ForceFinalizeAll(ctx, edits); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMsg(ServerMessage{Type: MsgAck})
		g.broadcastDoc(ctx, c)

	case MsgSave:
		text, err := g.ctrl.SaveChanges(ctx)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMsg(ServerMessage{Type: MsgSaved, Content: text})
		g.broadcast(ServerMessage{Type: MsgClosed}, c)

	case MsgReject:
		if err := g.ctrl.RejectChanges(ctx); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMsg(ServerMessage{Type: MsgClosed})
		g.broadcast(ServerMessage{Type: MsgClosed}, c)

	case MsgScroll:
		g.ctrl.SetAutoScroll(msg.Enabled)
		c.sendMsg(ServerMessage{Type: MsgAck})

	case MsgSnapshot:
		view, err := g.ctrl.Snapshot(ctx)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMsg(docMessage(view))

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// broadcastDoc sends the current merged document to every client except the
// originator, who already got an ack.
func (g *Gateway) broadcastDoc(ctx context.Context, from *Client) {
	view, err := g.ctrl.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			g.logger.Warn("snapshot for broadcast failed", zap.Error(err))
		}
		return
	}
	g.broadcast(docMessage(view), from)
}

// broadcast sends msg to every registered client except from (nil means
// everyone).
func (g *Gateway) broadcast(msg ServerMessage, from *Client) {
	g.mu.RLock()
	targets := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		if c != from {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range targets {
		c.sendMsg(msg)
	}
}

// NotifyExternalChange tells every client that a target changed outside the
// session, so stale edits can be rejected and reopened.
func (g *Gateway) NotifyExternalChange(target string) {
	g.broadcast(ServerMessage{Type: MsgChanged, Target: target}, nil)
}

func docMessage(view session.SessionView) ServerMessage {
	blocks := make([]BlockInfo, 0, len(view.Blocks))
	for _, b := range view.Blocks {
		blocks = append(blocks, BlockInfo{
			ID:      b.ID,
			Status:  b.Status.String(),
			Content: b.CurrentContent,
		})
	}
	return ServerMessage{
		Type:    MsgDoc,
		Target:  view.Target,
		Content: view.Current,
		Blocks:  blocks,
	}
}
