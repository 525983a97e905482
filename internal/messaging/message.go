// Package messaging is the boundary to the chat platform: outbound group
// messages, role lookups and the inbound OneBot v11 event shapes.
package messaging

import (
	"context"
	"strings"
)

// Segment is one OneBot message segment, e.g. {"type":"at","data":{"qq":"1"}}.
type Segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// Message is an ordered list of segments.
type Message []Segment

// Text returns a plain text segment.
func Text(s string) Segment { return Segment{Type: "text", Data: map[string]string{"text": s}} }

// At mentions user.
func At(user string) Segment { return Segment{Type: "at", Data: map[string]string{"qq": user}} }

// Image embeds the image at url.
func Image(url string) Segment { return Segment{Type: "image", Data: map[string]string{"file": url}} }

// Reply quotes the message with id.
func Reply(id string) Segment { return Segment{Type: "reply", Data: map[string]string{"id": id}} }

// Plain flattens m to text, rendering mentions as @user. Images and reply
// markers are dropped. It is used for logs and tests.
func (m Message) Plain() string {
	var b strings.Builder
	for _, s := range m {
		switch s.Type {
		case "text":
			b.WriteString(s.Data["text"])
		case "at":
			b.WriteString("@" + s.Data["qq"])
		}
	}
	return b.String()
}

// Mentions returns the user ids mentioned in m, in order.
func (m Message) Mentions() []string {
	var out []string
	for _, s := range m {
		if s.Type == "at" {
			out = append(out, s.Data["qq"])
		}
	}
	return out
}

// Role is a member's standing in a group.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// ParseRole maps the platform's role string onto Role, defaulting to member.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleMember
	}
}

// Messenger delivers messages to a group and returns the platform message id.
type Messenger interface {
	SendGroupMessage(ctx context.Context, group string, msg Message) (string, error)
}

// RoleResolver reports a user's role in a group.
type RoleResolver interface {
	RoleOf(ctx context.Context, group, user string) (Role, error)
}
