package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
)

// PostEvent receives a OneBot v11 HTTP POST callback.
//
// The event is processed inline on a context detached from the request, so
// a client hanging up mid-exchange cannot abort a settlement halfway. The
// response is always 204 once the body decodes; the bot answers in chat, not
// through quick operations.
func (h *Handlers) PostEvent(c *gin.Context) {
	var ev messaging.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid event payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.eventTimeout)
	defer cancel()

	if err := h.events.Handle(ctx, ev); err != nil {
		// Recorded for the request log; OneBot does not retry.
		_ = c.Error(err)
	}
	noContent(c)
}
