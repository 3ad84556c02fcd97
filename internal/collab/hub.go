package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/inamate/nestbox/internal/engine"
)

var ErrHubStopped = errors.New("hub is stopped")

// DocLoader returns the latest saved document of a session.
type DocLoader func(ctx context.Context, sessionID string) ([]byte, error)

// DocSaver stores a document and returns its snapshot version.
type DocSaver func(ctx context.Context, sessionID string, doc []byte) (int, error)

// Hub keeps one room per session with connected clients. A session has at
// most one room at a time: a room that is saving on its way out stays in
// closing until it is done, and joins for that session wait for it.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*Room // sessionID -> running room
	closing map[string]*Room // sessionID -> room running its final save
	opening singleflight.Group
	load    DocLoader
	save    DocSaver
	opts    []engine.Option
	stopped bool
}

func NewHub(load DocLoader, save DocSaver, opts ...engine.Option) *Hub {
	return &Hub{
		rooms:   make(map[string]*Room),
		closing: make(map[string]*Room),
		load:    load,
		save:    save,
		opts:    opts,
	}
}

// Register adds a client to its session's room, opening the room from the
// latest saved document if it is not running yet. Loading happens outside
// the hub lock, once per session however many clients join at the same
// time.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	for {
		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			return ErrHubStopped
		}
		if room, ok := h.rooms[client.SessionID]; ok {
			room.members++
			client.room = room
			room.submit(event{kind: eventJoin, client: client})
			h.mu.Unlock()
			return nil
		}
		closing := h.closing[client.SessionID]
		h.mu.Unlock()

		if closing != nil && !closing.stopped() {
			select {
			case <-closing.done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, err, _ := h.opening.Do(client.SessionID, func() (any, error) {
			return nil, h.openRoom(ctx, client.SessionID)
		})
		if err != nil {
			return err
		}
	}
}

// Unregister removes a client. The last client out stops the room, which
// saves any unsaved changes before the session can be opened again.
func (h *Hub) Unregister(client *Client) {
	room := client.room
	if room == nil {
		return
	}

	h.mu.Lock()
	room.submit(event{kind: eventLeave, client: client})
	room.members--
	last := room.members == 0
	if last && h.rooms[client.SessionID] == room {
		delete(h.rooms, client.SessionID)
		h.closing[client.SessionID] = room
	}
	h.mu.Unlock()

	if !last {
		return
	}

	room.Stop()

	h.mu.Lock()
	if h.closing[client.SessionID] == room {
		delete(h.closing, client.SessionID)
	}
	h.mu.Unlock()
	slog.Info("room closed", "session", client.SessionID)
}

// Stop stops every room, saving unsaved documents, and rejects new clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	rooms := make([]*Room, 0, len(h.rooms)+len(h.closing))
	for id, room := range h.rooms {
		rooms = append(rooms, room)
		delete(h.rooms, id)
	}
	for _, room := range h.closing {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, room := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room.Stop()
		}()
	}
	wg.Wait()
}

// openRoom loads a session and starts its room unless another room for the
// session appeared while loading.
func (h *Hub) openRoom(ctx context.Context, sessionID string) error {
	doc, err := h.load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	eng := engine.NewEngine(h.opts...)
	if err := eng.LoadJSON(doc); err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrHubStopped
	}
	if h.rooms[sessionID] != nil {
		return nil
	}
	if closing := h.closing[sessionID]; closing != nil {
		if !closing.stopped() {
			return nil
		}
		delete(h.closing, sessionID)
	}

	room := newRoom(sessionID, eng, h.save)
	h.rooms[sessionID] = room
	go room.run()
	slog.Info("room opened", "session", sessionID, "rectangles", eng.Store().Len())
	return nil
}
