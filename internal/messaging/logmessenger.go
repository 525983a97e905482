package messaging

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// LogMessenger writes outbound messages to the log instead of a chat
// platform. It backs the server when no OneBot API is configured.
type LogMessenger struct {
	seq atomic.Int64
}

// SendGroupMessage logs msg and returns a locally generated id.
func (l *LogMessenger) SendGroupMessage(_ context.Context, group string, msg Message) (string, error) {
	id := strconv.FormatInt(l.seq.Add(1), 10)
	log.Info().
		Str("group_id", group).
		Str("message_id", id).
		Str("text", msg.Plain()).
		Msg("outbound message (dry run)")
	return id, nil
}

// RoleOf reports every user as a plain member.
func (l *LogMessenger) RoleOf(context.Context, string, string) (Role, error) {
	return RoleMember, nil
}
