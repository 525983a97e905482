package messaging

import (
	"encoding/json"
	"strings"
)

// Event is the subset of a OneBot v11 webhook payload the game consumes.
// Ids arrive as JSON numbers and are kept as strings.
type Event struct {
	PostType    string      `json:"post_type"`
	MessageType string      `json:"message_type"`
	NoticeType  string      `json:"notice_type"`
	SelfID      json.Number `json:"self_id"`
	GroupID     json.Number `json:"group_id"`
	UserID      json.Number `json:"user_id"`
	MessageID   json.Number `json:"message_id"`
	RawMessage  string      `json:"raw_message"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`
}

// IsGroupMessage reports whether e is a group chat message.
func (e Event) IsGroupMessage() bool {
	return e.PostType == "message" && e.MessageType == "group"
}

// IsReaction reports whether e is an emoji reaction on a group message.
func (e Event) IsReaction() bool {
	return e.PostType == "notice" && e.NoticeType == "group_msg_emoji_like"
}

// FromSelf reports whether the bot itself produced e.
func (e Event) FromSelf() bool {
	return e.SelfID != "" && e.SelfID == e.UserID
}

// DisplayName prefers the group card, then the nickname, then the user id.
func (e Event) DisplayName() string {
	if s := strings.TrimSpace(e.Sender.Card); s != "" {
		return s
	}
	if s := strings.TrimSpace(e.Sender.Nickname); s != "" {
		return s
	}
	return e.UserID.String()
}
