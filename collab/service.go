package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const hydrateTimeout = 10 * time.Second

// Protocol error codes sent back to the offending connection. They never
// affect other connections or rooms.
const (
	ErrBadMessageFormat  = "bad-message-format"
	ErrUnknownMessage    = "unknown-message-type"
	ErrMissingRoomId     = "missing-room-id"
	ErrNotInRoom         = "not-in-room"
	ErrMalformedUpdate   = "malformed-update"
	ErrRoomBeingReplaced = "room-unavailable-retry"
)

// Service translates wire frames into registry and room operations. One
// instance serves all connections.
type Service struct {
	registry *Registry
}

func NewService(registry *Registry) *Service {
	return &Service{registry: registry}
}

func (s *Service) Registry() *Registry { return s.registry }

// Dispatch handles one inbound frame from a connection. Frames that fail to
// normalize into their payload shape are rejected with an error event.
func (s *Service) Dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.send(encodeError(ErrBadMessageFormat))
		return
	}

	switch env.Type {
	case MessageJoin:
		s.handleJoin(c, env.Payload)
	case MessageDocUpdate:
		s.handleDocUpdate(c, env.Payload, raw)
	case MessageInputChanged:
		s.handleTextChange(c, env.Payload, raw, true)
	case MessageOutputChanged:
		s.handleTextChange(c, env.Payload, raw, false)
	case MessageLanguageChanged:
		s.handleLanguageChange(c, env.Payload, raw)
	case MessageExecutionStatus:
		s.handleExecutionStatus(c, env.Payload, raw)
	default:
		c.send(encodeError(ErrUnknownMessage))
	}
}

func (s *Service) handleJoin(c *Client, payload json.RawMessage) {
	var join JoinPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		c.send(encodeError(ErrBadMessageFormat))
		return
	}
	if join.Room == "" {
		c.send(encodeError(ErrMissingRoomId))
		return
	}

	record := ParticipantRecord{
		ConnectionId: c.id,
		DisplayName:  "Guest",
		JoinedAt:     time.Now().UTC(),
	}
	// A credentialed connection keeps its verified identity; the join payload
	// only fills the gaps for anonymous ones.
	if !c.identity.Anonymous() || c.identity.DisplayName != "" {
		record.UserId = c.identity.UserId
		record.DisplayName = c.identity.DisplayName
		record.AvatarUrl = c.identity.AvatarUrl
	} else if join.Identity != nil && join.Identity.DisplayName != "" {
		record.DisplayName = join.Identity.DisplayName
		record.AvatarUrl = join.Identity.AvatarUrl
	}

	ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
	defer cancel()

	// A room evicted between lookup and insert is re-resolved; the registry
	// hands out a fresh instance on the next call.
	for attempt := 0; attempt < 3; attempt++ {
		room := s.registry.GetOrCreateRoom(ctx, join.Room)
		if room.AddMember(record, c) {
			c.joinedRoom(join.Room)
			log.Debug().Str("room", join.Room).Str("connection", c.id).Str("user", record.DisplayName).Msg("participant joined")
			return
		}
	}
	c.send(encodeError(ErrRoomBeingReplaced))
}

func (s *Service) handleDocUpdate(c *Client, payload json.RawMessage, raw []byte) {
	var update DocUpdatePayload
	if err := json.Unmarshal(payload, &update); err != nil || update.Room == "" || len(update.Update) == 0 {
		c.send(encodeError(ErrBadMessageFormat))
		return
	}
	room, ok := s.memberRoom(c, update.Room)
	if !ok {
		return
	}
	if err := room.ApplyUpdate(update.Update); err != nil {
		// Corrupt bytes are dropped rather than relayed; the document is
		// untouched because the merge rejects them wholesale.
		log.Warn().Str("room", update.Room).Str("connection", c.id).Err(err).Msg("dropping malformed document update")
		c.send(encodeError(ErrMalformedUpdate))
		return
	}
	room.Broadcast(c.id, raw)
}

func (s *Service) handleTextChange(c *Client, payload json.RawMessage, raw []byte, isInput bool) {
	var change TextPayload
	if err := json.Unmarshal(payload, &change); err != nil || change.Room == "" {
		c.send(encodeError(ErrBadMessageFormat))
		return
	}
	room, ok := s.memberRoom(c, change.Room)
	if !ok {
		return
	}
	var state RoomState
	if isInput {
		state = room.SetInput(change.Text)
	} else {
		state = room.SetOutput(change.Text)
	}
	room.Broadcast(c.id, raw)
	s.registry.PersistState(change.Room, state)
}

func (s *Service) handleLanguageChange(c *Client, payload json.RawMessage, raw []byte) {
	var change LanguagePayload
	if err := json.Unmarshal(payload, &change); err != nil || change.Room == "" || change.Language == "" {
		c.send(encodeError(ErrBadMessageFormat))
		return
	}
	room, ok := s.memberRoom(c, change.Room)
	if !ok {
		return
	}
	if err := room.SetLanguage(change.Language); err != nil {
		log.Error().Str("room", change.Room).Err(err).Msg("failed to set room language")
		return
	}
	room.Broadcast(c.id, raw)
}

func (s *Service) handleExecutionStatus(c *Client, payload json.RawMessage, raw []byte) {
	var status ExecutionStatusPayload
	if err := json.Unmarshal(payload, &status); err != nil || status.Room == "" {
		c.send(encodeError(ErrBadMessageFormat))
		return
	}
	room, ok := s.memberRoom(c, status.Room)
	if !ok {
		return
	}
	// Relay only, nothing to persist.
	room.Broadcast(c.id, raw)
}

// memberRoom resolves a room the client already joined. Frames for rooms the
// connection never joined are rejected, which is also what keeps updates from
// leaking across rooms.
func (s *Service) memberRoom(c *Client, roomId string) (*Room, bool) {
	if !c.inRoom(roomId) {
		c.send(encodeError(ErrNotInRoom))
		return nil, false
	}
	room := s.registry.Room(roomId)
	if room == nil || !room.HasMember(c.id) {
		c.send(encodeError(ErrNotInRoom))
		return nil, false
	}
	return room, true
}

// Disconnect tears a connection out of every room it joined, broadcasting
// presence to the remainder and flushing rooms that emptied.
func (s *Service) Disconnect(c *Client) {
	for _, roomId := range c.joinedRooms() {
		s.registry.RemoveParticipant(roomId, c.id)
	}
	log.Debug().Str("connection", c.id).Msg("connection closed")
}
