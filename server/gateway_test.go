package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alimasry/go-inline-edit/editor"
	"github.com/alimasry/go-inline-edit/session"
)

// mockClient creates a client without a real WebSocket connection, for testing.
func mockClient(id string) *Client {
	return &Client{
		ID:   id,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// recvMsg reads one message from a mock client's send channel with timeout.
func recvMsg(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return ServerMessage{}
	}
}

func expectNoMsg(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func setupGateway(t *testing.T, target, text string) (*Gateway, *editor.MemorySurface) {
	t.Helper()
	surf := editor.NewMemorySurface()
	surf.SetText(target, text)
	ctrl := session.NewController(surf, nil)
	t.Cleanup(func() { ctrl.Close() })
	return NewGateway(ctrl, nil), surf
}

func TestGateway_OpenBroadcastsDoc(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "line1\nline2\nline3")
	producer := mockClient("p")
	watcher := mockClient("w")
	gw.register(producer)
	gw.register(watcher)

	gw.dispatch(producer, ClientMessage{Type: MsgOpen, BlockID: "a", Target: "doc", Search: "line2"})

	ack := recvMsg(t, producer)
	if ack.Type != MsgAck {
		t.Fatalf("producer expected ack, got %q", ack.Type)
	}

	doc := recvMsg(t, watcher)
	if doc.Type != MsgDoc {
		t.Fatalf("watcher expected doc, got %q", doc.Type)
	}
	if doc.Target != "doc" {
		t.Errorf("target = %q, want %q", doc.Target, "doc")
	}
	if doc.Content != "line1\n\nline3" {
		t.Errorf("content = %q, want %q", doc.Content, "line1\n\nline3")
	}
}

func TestGateway_StreamUpdatesWatchers(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "line1\nline2")
	producer := mockClient("p")
	watcher := mockClient("w")
	gw.register(producer)
	gw.register(watcher)

	gw.dispatch(producer, ClientMessage{Type: MsgOpen, BlockID: "a", Target: "doc", Search: "line2"})
	recvMsg(t, producer) // ack
	recvMsg(t, watcher)  // doc

	gw.dispatch(producer, ClientMessage{Type: MsgStream, BlockID: "a", Search: "line2", Content: "LINE2"})
	recvMsg(t, producer) // ack

	doc := recvMsg(t, watcher)
	if doc.Content != "line1\nLINE2" {
		t.Errorf("content = %q, want %q", doc.Content, "line1\nLINE2")
	}
	if len(doc.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(doc.Blocks))
	}
	if doc.Blocks[0].Status != "streaming" {
		t.Errorf("block status = %q, want %q", doc.Blocks[0].Status, "streaming")
	}
}

func TestGateway_SaveNotifiesEveryone(t *testing.T) {
	gw, surf := setupGateway(t, "doc", "line1\nline2")
	producer := mockClient("p")
	watcher := mockClient("w")
	gw.register(producer)
	gw.register(watcher)

	gw.dispatch(producer, ClientMessage{Type: MsgOpen, BlockID: "a", Target: "doc", Search: "line2"})
	recvMsg(t, producer)
	recvMsg(t, watcher)
	gw.dispatch(producer, ClientMessage{Type: MsgFinal, BlockID: "a", Search: "line2", Content: "DONE"})
	recvMsg(t, producer)
	recvMsg(t, watcher)

	gw.dispatch(producer, ClientMessage{Type: MsgSave})

	saved := recvMsg(t, producer)
	if saved.Type != MsgSaved {
		t.Fatalf("producer expected saved, got %q", saved.Type)
	}
	if saved.Content != "line1\nDONE" {
		t.Errorf("saved content = %q, want %q", saved.Content, "line1\nDONE")
	}

	closed := recvMsg(t, watcher)
	if closed.Type != MsgClosed {
		t.Fatalf("watcher expected closed, got %q", closed.Type)
	}

	if got := surf.PersistedText("doc"); got != "line1\nDONE" {
		t.Errorf("persisted = %q, want %q", got, "line1\nDONE")
	}
}

func TestGateway_RejectRestoresDocument(t *testing.T) {
	gw, surf := setupGateway(t, "doc", "original text")
	producer := mockClient("p")
	gw.register(producer)

	gw.dispatch(producer, ClientMessage{Type: MsgOpen, BlockID: "a", Target: "doc", Search: "original"})
	recvMsg(t, producer)
	gw.dispatch(producer, ClientMessage{Type: MsgFinal, BlockID: "a", Search: "original", Content: "mangled"})
	recvMsg(t, producer)

	gw.dispatch(producer, ClientMessage{Type: MsgReject})
	closed := recvMsg(t, producer)
	if closed.Type != MsgClosed {
		t.Fatalf("expected closed, got %q", closed.Type)
	}
	if got := surf.Text("doc"); got != "original text" {
		t.Errorf("document = %q, want %q", got, "original text")
	}
}

func TestGateway_MergeErrorGoesToSenderOnly(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "line1\nline2")
	producer := mockClient("p")
	watcher := mockClient("w")
	gw.register(producer)
	gw.register(watcher)

	gw.dispatch(producer, ClientMessage{Type: MsgOpen, BlockID: "a", Target: "doc", Search: "line2"})
	recvMsg(t, producer)
	recvMsg(t, watcher)

	gw.dispatch(producer, ClientMessage{Type: MsgStream, BlockID: "b", Search: "no such anchor", Content: "X"})

	errMsg := recvMsg(t, producer)
	if errMsg.Type != MsgError {
		t.Fatalf("expected error, got %q", errMsg.Type)
	}
	expectNoMsg(t, watcher)
}

func TestGateway_SnapshotGoesToRequester(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "line1\nline2")
	producer := mockClient("p")
	watcher := mockClient("w")
	gw.register(producer)
	gw.register(watcher)

	gw.dispatch(producer, ClientMessage{Type: MsgOpen, BlockID: "a", Target: "doc", Search: "line2"})
	recvMsg(t, producer)
	recvMsg(t, watcher)

	gw.dispatch(watcher, ClientMessage{Type: MsgSnapshot})
	doc := recvMsg(t, watcher)
	if doc.Type != MsgDoc {
		t.Fatalf("expected doc, got %q", doc.Type)
	}
	expectNoMsg(t, producer)
}

func TestGateway_SaveWithoutSessionErrors(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "text")
	c := mockClient("c")
	gw.register(c)

	gw.dispatch(c, ClientMessage{Type: MsgSave})
	msg := recvMsg(t, c)
	if msg.Type != MsgError {
		t.Errorf("expected error, got %q", msg.Type)
	}
}

func TestGateway_OpenRequiresTarget(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "text")
	c := mockClient("c")
	gw.register(c)

	gw.dispatch(c, ClientMessage{Type: MsgOpen, BlockID: "a"})
	msg := recvMsg(t, c)
	if msg.Type != MsgError {
		t.Errorf("expected error, got %q", msg.Type)
	}
}

func TestGateway_ExternalChangeNotification(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "text")
	c1 := mockClient("c1")
	c2 := mockClient("c2")
	gw.register(c1)
	gw.register(c2)

	gw.NotifyExternalChange("doc")

	for _, c := range []*Client{c1, c2} {
		msg := recvMsg(t, c)
		if msg.Type != MsgChanged {
			t.Errorf("client %s: expected changed, got %q", c.ID, msg.Type)
		}
		if msg.Target != "doc" {
			t.Errorf("client %s: target = %q, want %q", c.ID, msg.Target, "doc")
		}
	}
}

func TestGateway_UnregisterStopsDelivery(t *testing.T) {
	gw, _ := setupGateway(t, "doc", "text")
	c := mockClient("c")
	gw.register(c)
	gw.unregister(c)
	gw.unregister(c) // second call must be a no-op

	gw.NotifyExternalChange("doc")
	select {
	case data := <-c.send:
		t.Fatalf("message delivered after unregister: %s", data)
	default:
	}
}

func TestClientMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     ClientMessage
		wantErr bool
	}{
		{"valid open", ClientMessage{Type: MsgOpen, BlockID: "a", Target: "doc"}, false},
		{"valid stream", ClientMessage{Type: MsgStream, BlockID: "a", Content: "x"}, false},
		{"missing type", ClientMessage{BlockID: "a"}, true},
		{"unknown type", ClientMessage{Type: "bogus"}, true},
		{"finalize with edits", ClientMessage{Type: MsgFinalize, Edits: []EditPayload{{BlockID: "a"}}}, false},
		{"finalize edit without id", ClientMessage{Type: MsgFinalize, Edits: []EditPayload{{Search: "x"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
