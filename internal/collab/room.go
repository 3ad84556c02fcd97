package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inamate/nestbox/internal/document"
	"github.com/inamate/nestbox/internal/engine"
)

const (
	inboxSize        = 256
	autosaveInterval = 30 * time.Second
	saveTimeout      = 10 * time.Second
)

var errMissingPayload = errors.New("missing payload")

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventMessage
)

type event struct {
	kind   eventKind
	client *Client
	msg    *Message
}

// Room owns the engine of one session. Every event goes through the inbox
// and is applied by the room goroutine, which is the engine's only writer.
type Room struct {
	sessionID string
	engine    *engine.Engine
	save      DocSaver
	clients   map[string]*Client // clientID -> client, room goroutine only
	saved     *document.Store
	seq       int64

	// Guarded by the hub lock.
	members int

	inbox    chan event
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newRoom(sessionID string, eng *engine.Engine, save DocSaver) *Room {
	return &Room{
		sessionID: sessionID,
		engine:    eng,
		save:      save,
		clients:   make(map[string]*Client),
		saved:     eng.Store(),
		inbox:     make(chan event, inboxSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// submit queues an event. It reports false once the room has stopped.
func (r *Room) submit(ev event) bool {
	select {
	case r.inbox <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Stop applies queued events, saves unsaved changes and waits for the room
// goroutine to exit.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.done
}

func (r *Room) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Room) run() {
	ticker := time.NewTicker(autosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-r.inbox:
			r.handle(ev)
		case <-ticker.C:
			if r.engine.State() == engine.StateIdle {
				r.flush()
			}
		case <-r.quit:
			for {
				select {
				case ev := <-r.inbox:
					r.handle(ev)
				default:
					if r.engine.State() != engine.StateIdle {
						r.engine.Cancel()
					}
					r.flush()
					close(r.done)
					return
				}
			}
		}
	}
}

func (r *Room) handle(ev event) {
	switch ev.kind {
	case eventJoin:
		r.addClient(ev.client)
	case eventLeave:
		r.removeClient(ev.client)
	case eventMessage:
		r.handleMessage(ev.client, ev.msg)
	}
}

func (r *Room) addClient(c *Client) {
	r.clients[c.ClientID] = c

	if msg, err := newMessage(TypeWelcome, WelcomePayload{SessionID: r.sessionID, ClientID: c.ClientID}); err == nil {
		c.Send(msg)
	}
	if msg, err := r.syncMessage(); err == nil {
		c.Send(msg)
	}
	slog.Info("client joined", "session", r.sessionID, "client", c.ClientID)
}

func (r *Room) removeClient(c *Client) {
	if _, ok := r.clients[c.ClientID]; !ok {
		return
	}
	delete(r.clients, c.ClientID)
	close(c.send)
	slog.Info("client left", "session", r.sessionID, "client", c.ClientID)
}

func (r *Room) handleMessage(sender *Client, msg *Message) {
	var err error
	switch msg.Type {
	case TypePointerDown:
		var p PointerDownPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = r.engine.PointerDown(engine.Point{X: p.X, Y: p.Y}, p.Offset)
		}
	case TypePointerMove:
		var p PointerMovePayload
		if err = decode(msg.Payload, &p); err == nil {
			r.engine.PointerMove(engine.Point{X: p.X, Y: p.Y})
		}
	case TypePointerUp:
		err = r.engine.PointerUp()
	case TypeGestureCancel:
		r.engine.Cancel()
	case TypeModeSet:
		var p ModeSetPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = r.engine.SetMode(p.Mode)
		}
	case TypeAddRandom:
		var p AddRandomPayload
		if err = decode(msg.Payload, &p); err == nil {
			_, err = r.engine.AddRandom(p.Count)
		}
	case TypeDeleteSelection:
		_, err = r.engine.DeleteSelected()
	case TypeDocSave:
		r.handleSave(sender)
		return
	default:
		slog.Warn("unknown message type", "type", msg.Type, "client", sender.ClientID)
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		slog.Debug("event rejected", "session", r.sessionID, "type", msg.Type, "error", err)
		r.sendError(sender, err)
		return
	}

	r.seq++
	r.broadcastSync()
}

func (r *Room) handleSave(sender *Client) {
	if r.engine.State() != engine.StateIdle {
		r.sendError(sender, engine.ErrGestureInProgress)
		return
	}

	version, err := r.persist()
	if err != nil {
		slog.Error("save document", "session", r.sessionID, "error", err)
		r.sendError(sender, errors.New("save failed"))
		return
	}

	msg, err := newMessage(TypeDocSaved, SavedPayload{Version: version})
	if err != nil {
		return
	}
	r.broadcast(msg)
}

// flush saves the store if it changed since the last save.
func (r *Room) flush() {
	if r.engine.Store() == r.saved {
		return
	}
	if _, err := r.persist(); err != nil {
		slog.Error("save document", "session", r.sessionID, "error", err)
	}
}

func (r *Room) persist() (int, error) {
	store := r.engine.Store()
	doc, err := json.Marshal(store)
	if err != nil {
		return 0, fmt.Errorf("marshal document: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	version, err := r.save(ctx, r.sessionID, doc)
	if err != nil {
		return 0, err
	}
	r.saved = store
	slog.Debug("document saved", "session", r.sessionID, "version", version)
	return version, nil
}

func (r *Room) syncMessage() (*Message, error) {
	payload := SyncPayload{View: r.engine.View()}
	for _, f := range r.engine.Faults() {
		payload.Faults = append(payload.Faults, f.Error())
	}
	msg, err := newMessage(TypeDocSync, payload)
	if err != nil {
		slog.Error("marshal sync", "error", err)
		return nil, err
	}
	msg.SessionID = r.sessionID
	msg.Seq = r.seq
	return msg, nil
}

func (r *Room) broadcastSync() {
	msg, err := r.syncMessage()
	if err != nil {
		return
	}
	r.broadcast(msg)
}

func (r *Room) broadcast(msg *Message) {
	for _, c := range r.clients {
		c.Send(msg)
	}
}

func (r *Room) sendError(c *Client, err error) {
	msg, mErr := newMessage(TypeError, ErrorPayload{Reason: err.Error()})
	if mErr != nil {
		return
	}
	c.Send(msg)
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return errMissingPayload
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
