// Package protocol defines the JSON frames exchanged on the WebSocket
// channel. Inbound frames are decoded once at the transport boundary into a
// closed set of command variants; outbound events are plain payload structs
// wrapped by Encode.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pulsechat/pulsechat/internal/chat"
)

// Frame is the envelope for every frame in both directions.
type Frame struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Inbound command names.
const (
	CmdJoin        = "join"
	CmdSendMessage = "send-message"
	CmdLikeMessage = "like-message"
	CmdDislike     = "dislike-message"
	CmdGetMessages = "get-messages"
)

// Outbound event names.
const (
	EventConnectionEstablished = "connection-established"
	EventJoinSuccess           = "join-success"
	EventUserJoined            = "user-joined"
	EventNewMessage            = "new-message"
	EventMessageUpdated        = "message-updated"
	EventUserLeft              = "user-left"
	EventMessages              = "messages"
	EventError                 = "error"
)

// Command is one decoded inbound command. The concrete type is one of Join,
// SendMessage, LikeMessage, DislikeMessage, GetMessages, or Unknown.
type Command interface{ isCommand() }

// Join requests a username for the connection.
type Join struct{ Username string }

// SendMessage posts a chat message.
type SendMessage struct{ Content string }

// LikeMessage toggles the sender's like on a message.
type LikeMessage struct{ MessageID string }

// DislikeMessage toggles the sender's dislike on a message.
type DislikeMessage struct{ MessageID string }

// GetMessages requests the history, optionally only messages created strictly
// after Since (epoch milliseconds).
type GetMessages struct{ Since *int64 }

// Unknown carries the unrecognized command name for the error reply.
type Unknown struct{ Name string }

func (Join) isCommand()           {}
func (SendMessage) isCommand()    {}
func (LikeMessage) isCommand()    {}
func (DislikeMessage) isCommand() {}
func (GetMessages) isCommand()    {}
func (Unknown) isCommand()        {}

// ParseCommand decodes a raw inbound frame. A frame that cannot be decoded,
// including a recognized command with a malformed payload, returns an error;
// a well-formed frame with an unrecognized command returns Unknown.
func ParseCommand(raw []byte) (Command, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Command {
	case CmdJoin:
		var data struct {
			Username string `json:"username"`
		}
		if err := unmarshalData(frame.Data, &data); err != nil {
			return nil, err
		}
		return Join{Username: data.Username}, nil

	case CmdSendMessage:
		var data struct {
			Content string `json:"content"`
		}
		if err := unmarshalData(frame.Data, &data); err != nil {
			return nil, err
		}
		return SendMessage{Content: data.Content}, nil

	case CmdLikeMessage:
		var data struct {
			MessageID string `json:"messageId"`
		}
		if err := unmarshalData(frame.Data, &data); err != nil {
			return nil, err
		}
		return LikeMessage{MessageID: data.MessageID}, nil

	case CmdDislike:
		var data struct {
			MessageID string `json:"messageId"`
		}
		if err := unmarshalData(frame.Data, &data); err != nil {
			return nil, err
		}
		return DislikeMessage{MessageID: data.MessageID}, nil

	case CmdGetMessages:
		var data struct {
			Since *int64 `json:"since"`
		}
		if err := unmarshalData(frame.Data, &data); err != nil {
			return nil, err
		}
		return GetMessages{Since: data.Since}, nil

	default:
		return Unknown{Name: frame.Command}, nil
	}
}

// unmarshalData decodes a command payload. An absent payload leaves the
// target at its zero value, matching clients that omit the data object.
func unmarshalData(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode command payload: %w", err)
	}
	return nil
}

// Encode wraps an event payload in the wire envelope.
func Encode(command string, data any) ([]byte, error) {
	return json.Marshal(struct {
		Command string `json:"command"`
		Data    any    `json:"data"`
	}{Command: command, Data: data})
}

// ConnectionEstablished greets a freshly accepted connection.
type ConnectionEstablished struct {
	ConnectionID string `json:"connectionId"`
}

// JoinSuccess is sent to the joining connection only.
type JoinSuccess struct {
	User        chat.User      `json:"user"`
	Messages    []chat.Message `json:"messages"`
	OnlineUsers []string       `json:"onlineUsers"`
}

// UserJoined is broadcast to every other connection after a join.
type UserJoined struct {
	Username    string   `json:"username"`
	Timestamp   int64    `json:"timestamp"`
	OnlineUsers []string `json:"onlineUsers"`
}

// NewMessage is broadcast to all connections when a message is posted.
type NewMessage struct {
	Message chat.Message `json:"message"`
}

// MessageUpdated is broadcast to all connections after a reaction toggle.
type MessageUpdated struct {
	Message chat.Message `json:"message"`
}

// UserLeft is broadcast to the remaining connections after a disconnect.
type UserLeft struct {
	Username    string   `json:"username"`
	Timestamp   int64    `json:"timestamp"`
	OnlineUsers []string `json:"onlineUsers"`
}

// MessageList answers a get-messages request, sender only.
type MessageList struct {
	Messages []chat.Message `json:"messages"`
}

// ErrorEvent reports a failed command to the originating connection only.
type ErrorEvent struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
