package collab

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RoomRecord is the persisted shape of a room: the encoded document plus the
// auxiliary fields kept outside it.
type RoomRecord struct {
	Document []byte
	Input    string
	Output   string
	Language string
}

// RoomStore is the persistence bridge. Load returns domain.ErrRoomNotFound
// for rooms that were never persisted; the registry treats every Load failure
// as "absent" and never lets it block room creation.
type RoomStore interface {
	LoadRoom(ctx context.Context, roomId string) (RoomRecord, error)
	SaveRoomDocument(ctx context.Context, roomId string, document []byte, language string) error
	SaveRoomState(ctx context.Context, roomId, input, output string) error
}

const flushTimeout = 10 * time.Second

// Registry owns the process-wide room map. Creation and hydration are
// serialized per room id; unrelated rooms never contend on a shared lock
// beyond the brief map access.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	store RoomStore

	// state writes are serialized per room; a later panel write can never be
	// overtaken by an earlier one.
	wmu     sync.Mutex
	writers map[string]*stateWriter

	// background persists in flight; tests wait on it.
	flushes sync.WaitGroup
}

// stateWriter is one room's persistence slot. At most one goroutine drains
// it, and a newer pending state replaces an undrained older one, so the
// store only ever sees writes in submission order and the newest state last.
type stateWriter struct {
	pending *RoomState
	running bool
}

func NewRegistry(store RoomStore) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		writers: make(map[string]*stateWriter),
		store:   store,
	}
}

// GetOrCreateRoom returns the live room for an id, hydrating it from storage
// on first access. Concurrent callers for the same id observe exactly one
// fully initialized room; hydration failure degrades to a fresh room with the
// default language.
func (reg *Registry) GetOrCreateRoom(ctx context.Context, roomId string) *Room {
	reg.mu.Lock()
	room, ok := reg.rooms[roomId]
	if !ok {
		room = newRoom(roomId)
		reg.rooms[roomId] = room
	}
	reg.mu.Unlock()

	room.hydrateOnce.Do(func() {
		reg.hydrate(ctx, room)
	})
	return room
}

func (reg *Registry) hydrate(ctx context.Context, room *Room) {
	doc := NewDocument()
	state := RoomState{}

	record, err := reg.store.LoadRoom(ctx, room.id)
	switch {
	case err != nil:
		// Absent record and unreachable datastore are the same thing here:
		// start fresh.
		log.Debug().Str("room", room.id).Err(err).Msg("room hydration fell back to empty state")
	case len(record.Document) > 0:
		if loaded, lerr := LoadDocument(record.Document); lerr != nil {
			log.Error().Str("room", room.id).Err(lerr).Msg("persisted document is corrupt, starting fresh")
		} else {
			doc = loaded
		}
		state = RoomState{Input: record.Input, Output: record.Output}
	default:
		state = RoomState{Input: record.Input, Output: record.Output}
	}

	if lang, _ := doc.Metadata(languageKey); lang == "" {
		if err := doc.SetLanguage(DefaultLanguage); err != nil {
			log.Error().Str("room", room.id).Err(err).Msg("failed to default room language")
		}
	}

	// Server-local document mutations (language changes applied on behalf of
	// clients) fan out through the same relay path as client updates. The
	// observer runs under the room lock.
	doc.Observe(func(update []byte) {
		room.broadcastLocked("", encodeMessage(MessageDocUpdate, DocUpdatePayload{Room: room.id, Update: update}))
	})

	room.mu.Lock()
	room.doc = doc
	room.state = state
	room.mu.Unlock()
}

// Room returns the live room for an id, or nil when it is not in memory.
func (reg *Registry) Room(roomId string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[roomId]
}

// RoomIsEmpty reports whether the room has zero active connections. Rooms not
// in memory are empty by definition.
func (reg *Registry) RoomIsEmpty(roomId string) bool {
	reg.mu.Lock()
	room := reg.rooms[roomId]
	reg.mu.Unlock()
	if room == nil {
		return true
	}
	return room.Empty()
}

// RemoveParticipant drops a connection from a room. The remainder gets a
// fresh participant list; when the room empties it is evicted from memory and
// its state is flushed to storage in the background, never blocking the
// disconnecting client's cleanup.
func (reg *Registry) RemoveParticipant(roomId, connectionId string) {
	reg.mu.Lock()
	room := reg.rooms[roomId]
	reg.mu.Unlock()
	if room == nil {
		return
	}

	remaining, flush := room.RemoveMember(connectionId)
	if flush == nil {
		if remaining != nil {
			room.Broadcast("", encodeMessage(MessageParticipants, ParticipantsPayload{Participants: remaining}))
		}
		return
	}

	reg.mu.Lock()
	if reg.rooms[roomId] == room {
		delete(reg.rooms, roomId)
	}
	reg.mu.Unlock()

	reg.flushes.Add(1)
	go func() {
		defer reg.flushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := reg.store.SaveRoomDocument(ctx, roomId, flush.document, flush.language); err != nil {
			log.Error().Str("room", roomId).Err(err).Msg("failed to flush room document")
		}
	}()
	// The state flush goes through the serialized path so an in-flight panel
	// persist cannot land after it.
	reg.PersistState(roomId, flush.state)
}

// PersistState writes a room's input/output panels in the background. Relay
// to peers never waits on it; failures are logged and swallowed. Writes for
// the same room are drained by a single goroutine, and a burst of changes
// collapses to the newest state.
func (reg *Registry) PersistState(roomId string, state RoomState) {
	reg.wmu.Lock()
	w := reg.writers[roomId]
	if w == nil {
		w = &stateWriter{}
		reg.writers[roomId] = w
	}
	w.pending = &state
	if w.running {
		reg.wmu.Unlock()
		return
	}
	w.running = true
	reg.wmu.Unlock()

	reg.flushes.Add(1)
	go func() {
		defer reg.flushes.Done()
		for {
			reg.wmu.Lock()
			next := w.pending
			w.pending = nil
			if next == nil {
				w.running = false
				if reg.writers[roomId] == w {
					delete(reg.writers, roomId)
				}
				reg.wmu.Unlock()
				return
			}
			reg.wmu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := reg.store.SaveRoomState(ctx, roomId, next.Input, next.Output); err != nil {
				log.Warn().Str("room", roomId).Err(err).Msg("failed to persist room state")
			}
			cancel()
		}
	}()
}

// WaitForFlushes blocks until in-flight background writes settle. Test hook.
func (reg *Registry) WaitForFlushes() {
	reg.flushes.Wait()
}
