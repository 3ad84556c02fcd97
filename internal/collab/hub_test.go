package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inamate/nestbox/internal/document"
	"github.com/inamate/nestbox/internal/engine"
)

const testDoc = `{
	"rectangles": {
		"a": {"id": "a", "top": 0, "left": 0, "width": 400, "height": 400, "parent": null},
		"b": {"id": "b", "top": 50, "left": 50, "width": 50, "height": 50, "parent": "a"}
	},
	"order": ["a", "b"]
}`

// gate holds a loader or saver call until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) pass() {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
}

// memoryDocs is an in-memory loader and saver pair.
type memoryDocs struct {
	mu        sync.Mutex
	docs      map[string][]byte
	versions  map[string]int
	loads     map[string]int
	loadGates map[string]*gate
	saveGate  *gate
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{
		docs:      map[string][]byte{"sess_1": []byte(testDoc)},
		versions:  map[string]int{"sess_1": 1},
		loads:     make(map[string]int),
		loadGates: make(map[string]*gate),
	}
}

// holdLoads adds a session whose loads wait for the returned gate.
func (m *memoryDocs) holdLoads(sessionID string) *gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := newGate()
	m.docs[sessionID] = []byte(testDoc)
	m.versions[sessionID] = 1
	m.loadGates[sessionID] = g
	return g
}

// holdSaves makes every save wait for the returned gate.
func (m *memoryDocs) holdSaves() *gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveGate = newGate()
	return m.saveGate
}

func (m *memoryDocs) loadCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[sessionID]
}

var errNoSession = errors.New("no such session")

func (m *memoryDocs) load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	g := m.loadGates[sessionID]
	m.loads[sessionID]++
	m.mu.Unlock()
	if g != nil {
		g.pass()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[sessionID]
	if !ok {
		return nil, errNoSession
	}
	return doc, nil
}

func (m *memoryDocs) save(ctx context.Context, sessionID string, doc []byte) (int, error) {
	m.mu.Lock()
	g := m.saveGate
	m.mu.Unlock()
	if g != nil {
		g.pass()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[sessionID] = doc
	m.versions[sessionID]++
	return m.versions[sessionID], nil
}

func (m *memoryDocs) version(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[sessionID]
}

func (m *memoryDocs) document(t *testing.T, sessionID string) document.InDocument {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var doc document.InDocument
	if err := json.Unmarshal(m.docs[sessionID], &doc); err != nil {
		t.Fatalf("saved document is not valid JSON: %v", err)
	}
	return doc
}

func newTestHub(t *testing.T) (*Hub, *memoryDocs) {
	t.Helper()
	docs := newMemoryDocs()
	n := 0
	hub := NewHub(docs.load, docs.save, engine.WithIDGenerator(func() string {
		n++
		return "new" + string(rune('0'+n))
	}))
	t.Cleanup(hub.Stop)
	return hub, docs
}

func join(t *testing.T, hub *Hub, sessionID, clientID string) *Client {
	t.Helper()
	c := NewClient(hub, nil, sessionID, clientID)
	if err := hub.Register(context.Background(), c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if msg := recv(t, c); msg.Type != TypeWelcome {
		t.Fatalf("first message = %s, want welcome", msg.Type)
	}
	if msg := recv(t, c); msg.Type != TypeDocSync {
		t.Fatalf("second message = %s, want doc.sync", msg.Type)
	}
	return c
}

func recv(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid outbound message: %v", err)
		}
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return nil
}

func send(t *testing.T, c *Client, msgType string, payload any) {
	t.Helper()
	msg := &Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		msg.Payload = data
	}
	if !c.deliver(msg) {
		t.Fatal("room is stopped")
	}
}

func syncOf(t *testing.T, msg *Message) SyncPayload {
	t.Helper()
	if msg.Type != TypeDocSync {
		t.Fatalf("message type = %s (%s), want doc.sync", msg.Type, msg.Payload)
	}
	var p SyncPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode sync payload: %v", err)
	}
	return p
}

var origin = &engine.Offset{}

func TestRoom_DragReparents(t *testing.T) {
	hub, _ := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")

	send(t, c, TypePointerDown, PointerDownPayload{X: 60, Y: 60, Offset: origin})
	if got := syncOf(t, recv(t, c)); got.Selection != "b" || got.State != engine.StateMoving {
		t.Fatalf("after pointer.down selection = %q state = %s", got.Selection, got.State)
	}

	send(t, c, TypePointerMove, PointerMovePayload{X: 560, Y: 560})
	recv(t, c)
	send(t, c, TypePointerUp, nil)

	got := syncOf(t, recv(t, c))
	b := got.Document.Rectangles["b"]
	if b.Left != 550 || b.Top != 550 || b.Parent != nil {
		t.Errorf("after drop b = %+v, want root at (550, 550)", b)
	}
	if got.State != engine.StateIdle {
		t.Errorf("state = %s, want idle", got.State)
	}
}

func TestRoom_LassoCreatesRectangle(t *testing.T) {
	hub, _ := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")

	send(t, c, TypeModeSet, ModeSetPayload{Mode: engine.ModeDraw})
	recv(t, c)
	send(t, c, TypePointerDown, PointerDownPayload{X: 40, Y: 40, Offset: origin})
	recv(t, c)
	send(t, c, TypePointerMove, PointerMovePayload{X: 200, Y: 200})
	if lasso := syncOf(t, recv(t, c)).Lasso; lasso == nil || lasso.Parent != "a" {
		t.Fatalf("lasso = %+v, want parent a", lasso)
	}
	send(t, c, TypePointerUp, nil)

	doc := syncOf(t, recv(t, c)).Document
	created, ok := doc.Rectangles["new1"]
	if !ok {
		t.Fatalf("lasso did not create new1, have %v", doc.Order)
	}
	if created.ParentID() != "a" || doc.Rectangles["b"].ParentID() != "new1" {
		t.Errorf("new1 parent %q, b parent %q, want a and new1", created.ParentID(), doc.Rectangles["b"].ParentID())
	}
}

func TestRoom_Errors(t *testing.T) {
	type tc struct {
		msgType string
		payload any
	}

	tests := map[string]tc{
		"missing offset":  {msgType: TypePointerDown, payload: PointerDownPayload{X: 1, Y: 1}},
		"missing payload": {msgType: TypePointerMove},
		"bad mode":        {msgType: TypeModeSet, payload: ModeSetPayload{Mode: "erase"}},
		"bad count":       {msgType: TypeAddRandom, payload: AddRandomPayload{Count: 0}},
		"unknown type":    {msgType: "shape.rotate", payload: map[string]int{"deg": 90}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			hub, _ := newTestHub(t)
			c := join(t, hub, "sess_1", "c1")

			send(t, c, tt.msgType, tt.payload)
			msg := recv(t, c)
			if msg.Type != TypeError {
				t.Fatalf("message type = %s, want error", msg.Type)
			}
			var p ErrorPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Reason == "" {
				t.Errorf("error payload = %s", msg.Payload)
			}
		})
	}
}

func TestRoom_BroadcastsToAllClients(t *testing.T) {
	hub, _ := newTestHub(t)
	first := join(t, hub, "sess_1", "c1")
	second := join(t, hub, "sess_1", "c2")

	send(t, first, TypeAddRandom, AddRandomPayload{Count: 3})
	for _, c := range []*Client{first, second} {
		if got := len(syncOf(t, recv(t, c)).Document.Order); got != 5 {
			t.Errorf("client %s sees %d rectangles, want 5", c.ClientID, got)
		}
	}
}

func TestRoom_SaveAndDelete(t *testing.T) {
	hub, docs := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")

	send(t, c, TypePointerDown, PointerDownPayload{X: 10, Y: 10, Offset: origin})
	recv(t, c)
	send(t, c, TypePointerUp, nil)
	recv(t, c)
	send(t, c, TypeDeleteSelection, nil)
	if got := syncOf(t, recv(t, c)); len(got.Document.Order) != 0 || got.Selection != "" {
		t.Fatalf("after delete order = %v selection = %q", got.Document.Order, got.Selection)
	}

	send(t, c, TypeDocSave, nil)
	msg := recv(t, c)
	if msg.Type != TypeDocSaved {
		t.Fatalf("message type = %s, want doc.saved", msg.Type)
	}
	var saved SavedPayload
	if err := json.Unmarshal(msg.Payload, &saved); err != nil || saved.Version != 2 {
		t.Errorf("saved payload = %s, want version 2", msg.Payload)
	}
	if got := docs.document(t, "sess_1"); len(got.Order) != 0 {
		t.Errorf("saved document has %v, want empty", got.Order)
	}
}

func TestRoom_SaveRejectedDuringGesture(t *testing.T) {
	hub, docs := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")

	send(t, c, TypePointerDown, PointerDownPayload{X: 60, Y: 60, Offset: origin})
	recv(t, c)
	send(t, c, TypeDocSave, nil)
	if msg := recv(t, c); msg.Type != TypeError {
		t.Errorf("message type = %s, want error", msg.Type)
	}
	if got := docs.version("sess_1"); got != 1 {
		t.Errorf("version = %d, want 1", got)
	}
}

func TestHub_LastClientOutSaves(t *testing.T) {
	hub, docs := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")

	send(t, c, TypeAddRandom, AddRandomPayload{Count: 2})
	recv(t, c)
	hub.Unregister(c)

	if got := docs.version("sess_1"); got != 2 {
		t.Errorf("version after last client left = %d, want 2", got)
	}
	if got := len(docs.document(t, "sess_1").Order); got != 4 {
		t.Errorf("saved document has %d rectangles, want 4", got)
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after leaving")
	}
}

func TestHub_UnchangedRoomNotSaved(t *testing.T) {
	hub, docs := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")
	hub.Unregister(c)

	if got := docs.version("sess_1"); got != 1 {
		t.Errorf("version = %d, want 1", got)
	}
}

func TestHub_StopCancelsGestureAndSaves(t *testing.T) {
	hub, docs := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")

	send(t, c, TypeAddRandom, AddRandomPayload{Count: 1})
	recv(t, c)
	send(t, c, TypePointerDown, PointerDownPayload{X: 60, Y: 60, Offset: origin})
	recv(t, c)
	send(t, c, TypePointerMove, PointerMovePayload{X: 900, Y: 900})
	recv(t, c)

	hub.Stop()

	doc := docs.document(t, "sess_1")
	if b := doc.Rectangles["b"]; b.Left != 50 || b.Top != 50 {
		t.Errorf("saved b = %+v, want the pre-gesture position", b)
	}
	if len(doc.Order) != 3 {
		t.Errorf("saved document has %d rectangles, want 3", len(doc.Order))
	}
	if err := hub.Register(context.Background(), NewClient(hub, nil, "sess_1", "late")); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Register() after Stop error = %v, want ErrHubStopped", err)
	}
}

func TestHub_UnknownSession(t *testing.T) {
	hub, _ := newTestHub(t)
	c := NewClient(hub, nil, "sess_missing", "c1")
	if err := hub.Register(context.Background(), c); !errors.Is(err, errNoSession) {
		t.Errorf("Register() error = %v, want errNoSession", err)
	}
	hub.Unregister(c)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestHub_RejoinWaitsForFinalSave(t *testing.T) {
	hub, docs := newTestHub(t)
	first := join(t, hub, "sess_1", "c1")
	send(t, first, TypeAddRandom, AddRandomPayload{Count: 3})
	recv(t, first)

	saves := docs.holdSaves()
	left := make(chan struct{})
	go func() {
		hub.Unregister(first)
		close(left)
	}()
	waitFor(t, saves.entered, "the final save")

	second := NewClient(hub, nil, "sess_1", "c2")
	joined := make(chan error, 1)
	go func() { joined <- hub.Register(context.Background(), second) }()

	select {
	case err := <-joined:
		t.Fatalf("Register() returned %v while the previous room was still saving", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(saves.release)
	select {
	case err := <-joined:
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Register() did not return after the save finished")
	}
	waitFor(t, left, "Unregister")

	if msg := recv(t, second); msg.Type != TypeWelcome {
		t.Fatalf("first message = %s, want welcome", msg.Type)
	}
	if got := len(syncOf(t, recv(t, second)).Document.Order); got != 5 {
		t.Errorf("rejoining client sees %d rectangles, want 5", got)
	}
	if got := docs.loadCount("sess_1"); got != 2 {
		t.Errorf("session loaded %d times, want 2", got)
	}

	hub.mu.Lock()
	rooms, closing := len(hub.rooms), len(hub.closing)
	hub.mu.Unlock()
	if rooms != 1 || closing != 0 {
		t.Errorf("hub has %d running and %d closing rooms, want 1 and 0", rooms, closing)
	}

	// The reopened room keeps saving on top of the flushed version.
	send(t, second, TypeAddRandom, AddRandomPayload{Count: 1})
	recv(t, second)
	hub.Unregister(second)
	if got := docs.version("sess_1"); got != 3 {
		t.Errorf("version = %d, want 3", got)
	}
	if got := len(docs.document(t, "sess_1").Order); got != 6 {
		t.Errorf("saved document has %d rectangles, want 6", got)
	}
}

func TestHub_SlowLoadDoesNotBlockOtherSessions(t *testing.T) {
	hub, docs := newTestHub(t)
	load := docs.holdLoads("sess_slow")

	slow := make(chan error, 2)
	for _, id := range []string{"s1", "s2"} {
		go func() {
			slow <- hub.Register(context.Background(), NewClient(hub, nil, "sess_slow", id))
		}()
	}
	waitFor(t, load.entered, "the slow load")

	fast := make(chan error, 1)
	go func() { fast <- hub.Register(context.Background(), NewClient(hub, nil, "sess_1", "c1")) }()
	select {
	case err := <-fast:
		if err != nil {
			t.Fatalf("Register(sess_1) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Register(sess_1) blocked behind another session's load")
	}

	close(load.release)
	for range 2 {
		select {
		case err := <-slow:
			if err != nil {
				t.Fatalf("Register(sess_slow) error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Register(sess_slow) did not return")
		}
	}
	if got := docs.loadCount("sess_slow"); got != 1 {
		t.Errorf("sess_slow loaded %d times, want 1", got)
	}
}

func TestRoom_AddRandomCountLimit(t *testing.T) {
	hub, _ := newTestHub(t)
	c := join(t, hub, "sess_1", "c1")

	send(t, c, TypeAddRandom, AddRandomPayload{Count: 1 << 62})
	msg := recv(t, c)
	if msg.Type != TypeError {
		t.Fatalf("message type = %s, want error", msg.Type)
	}

	// The room is still serving events.
	send(t, c, TypeAddRandom, AddRandomPayload{Count: 1})
	if got := len(syncOf(t, recv(t, c)).Document.Order); got != 3 {
		t.Errorf("document has %d rectangles, want 3", got)
	}
}
