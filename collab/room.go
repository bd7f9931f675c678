package collab

import (
	"sort"
	"sync"
)

// RoomState holds the ephemeral last-writer-wins fields outside the
// replicated document: the last-run program's input and output text.
type RoomState struct {
	Input  string
	Output string
}

// outbound is the per-connection send queue a room fans out to. send reports
// false when the frame could not be enqueued.
type outbound interface {
	send(data []byte) bool
}

type roomMember struct {
	record ParticipantRecord
	out    outbound
}

// Room is the aggregate of one collaboration session: the replicated
// document, ephemeral state, and connected members. It is owned exclusively
// by the Registry, and all access is serialized behind its mutex so an
// update apply can never interleave with a concurrent join or read.
type Room struct {
	id string

	mu      sync.Mutex
	doc     *Document
	state   RoomState
	members map[string]*roomMember
	evicted bool

	hydrateOnce sync.Once
}

// flushSnapshot is what gets written back to storage when the room empties.
type flushSnapshot struct {
	document []byte
	language string
	state    RoomState
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[string]*roomMember),
	}
}

func (r *Room) Id() string { return r.id }

// AddMember registers a connection, sends it the full document and state
// snapshots, and broadcasts the updated participant list to the whole room,
// all under one lock acquisition so the joiner's view misses no update and
// duplicates none. Reports false when the room was concurrently evicted; the
// caller should re-resolve it through the registry.
func (r *Room) AddMember(record ParticipantRecord, out outbound) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return false
	}
	r.members[record.ConnectionId] = &roomMember{record: record, out: out}
	out.send(encodeMessage(MessageDocSnapshot, DocSnapshotPayload{Document: r.doc.EncodeFull()}))
	out.send(encodeMessage(MessageStateSnapshot, StateSnapshotPayload{Input: r.state.Input, Output: r.state.Output}))
	r.broadcastLocked("", encodeMessage(MessageParticipants, ParticipantsPayload{Participants: r.participantsLocked()}))
	return true
}

// RemoveMember drops a connection. When the last member leaves, the room is
// marked evicted and a flush snapshot is captured under the lock so the
// subsequent storage write needs no further access to room internals.
func (r *Room) RemoveMember(connectionId string) (remaining []ParticipantRecord, flush *flushSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, present := r.members[connectionId]; !present {
		return nil, nil
	}
	delete(r.members, connectionId)
	if len(r.members) > 0 {
		return r.participantsLocked(), nil
	}
	r.evicted = true
	return nil, &flushSnapshot{
		document: r.doc.EncodeFull(),
		language: r.doc.Language(),
		state:    r.state,
	}
}

func (r *Room) HasMember(connectionId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, present := r.members[connectionId]
	return present
}

func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

// ApplyUpdate merges an incremental document update from a client replica.
func (r *Room) ApplyUpdate(update []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.ApplyUpdate(update)
}

// Text returns the current document text.
func (r *Room) Text() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Text()
}

// SetInput overwrites the input panel text, last writer wins.
func (r *Room) SetInput(text string) RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Input = text
	return r.state
}

// SetOutput overwrites the output panel text, last writer wins.
func (r *Room) SetOutput(text string) RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Output = text
	return r.state
}

func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetLanguage writes the language through the document's metadata map. The
// document observer rebroadcasts the resulting update bytes to the room.
func (r *Room) SetLanguage(language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.SetLanguage(language)
}

func (r *Room) Language() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Language()
}

// Broadcast fans a frame out to every member except the sender. Pass an empty
// sender to reach everyone.
func (r *Room) Broadcast(sender string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(sender, data)
}

func (r *Room) broadcastLocked(sender string, data []byte) {
	for id, m := range r.members {
		if id == sender {
			continue
		}
		m.out.send(data)
	}
}

// BroadcastParticipants pushes the current presence list to every member.
func (r *Room) BroadcastParticipants() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked("", encodeMessage(MessageParticipants, ParticipantsPayload{Participants: r.participantsLocked()}))
}

func (r *Room) Participants() []ParticipantRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participantsLocked()
}

func (r *Room) participantsLocked() []ParticipantRecord {
	list := make([]ParticipantRecord, 0, len(r.members))
	for _, m := range r.members {
		list = append(list, m.record)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].ConnectionId < list[j].ConnectionId
	})
	return list
}
