package collab

import (
	"encoding/json"
	"time"

	"github.com/Dhairya-Sondhi/CodeLab-IDE/domain"
)

type MessageType string

const (
	MessageJoin            MessageType = "join"
	MessageDocSnapshot     MessageType = "doc-snapshot"
	MessageDocUpdate       MessageType = "doc-update"
	MessageStateSnapshot   MessageType = "state-snapshot"
	MessageInputChanged    MessageType = "input-changed"
	MessageOutputChanged   MessageType = "output-changed"
	MessageLanguageChanged MessageType = "language-changed"
	MessageExecutionStatus MessageType = "execution-status"
	MessageParticipants    MessageType = "participants-update"
	MessageError           MessageType = "error"
)

// Envelope is the wire frame for every message in either direction. The
// payload shape is fixed by the message type; anything that does not
// normalize into the matching payload struct is rejected.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	Room     string           `json:"room"`
	Identity *domain.Identity `json:"identity,omitempty"`
}

type DocSnapshotPayload struct {
	Document []byte `json:"document"`
}

type DocUpdatePayload struct {
	Room   string `json:"room"`
	Update []byte `json:"update"`
}

type StateSnapshotPayload struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// TextPayload carries input-changed and output-changed events. An empty Text
// is meaningful: it clears the panel.
type TextPayload struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

type LanguagePayload struct {
	Room     string `json:"room"`
	Language string `json:"language"`
}

type ExecutionStatusPayload struct {
	Room      string `json:"room"`
	Executing bool   `json:"executing"`
}

type ParticipantsPayload struct {
	Participants []ParticipantRecord `json:"participants"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// ParticipantRecord is one connected session's presence info within a room.
// A user connected twice occupies two records, one per connection.
type ParticipantRecord struct {
	ConnectionId string    `json:"connectionId"`
	UserId       string    `json:"userId,omitempty"`
	DisplayName  string    `json:"displayName"`
	AvatarUrl    string    `json:"avatarUrl,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
}

func encodeMessage(t MessageType, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		// All payload types marshal cleanly; this is unreachable with the
		// structs above.
		panic(err)
	}
	data, err := json.Marshal(Envelope{Type: t, Payload: raw})
	if err != nil {
		panic(err)
	}
	return data
}

func encodeError(code string) []byte {
	return encodeMessage(MessageError, ErrorPayload{Error: code})
}
