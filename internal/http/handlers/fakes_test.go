package handlers

import (
	"context"
	"sync"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
)

// recordingEvents captures dispatched events and the context they ran on.
type recordingEvents struct {
	mu     sync.Mutex
	events []messaging.Event
	ctxErr error
	err    error
	block  chan struct{}
}

func (r *recordingEvents) Handle(ctx context.Context, ev messaging.Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.ctxErr = ctx.Err()
	return r.err
}
