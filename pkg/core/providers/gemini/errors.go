package gemini

import (
	"errors"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/konxu/rehearsal/pkg/core/live"
)

// classifyClose maps a websocket read error onto the session error taxonomy.
// The live service reports quota exhaustion as an internal-error close whose
// text names the quota, so that shape gets its own kind.
func classifyClose(err error) *live.Error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return live.NewError(live.ErrConnection, "connection lost", err)
	}

	switch {
	case ce.Code == websocket.CloseNormalClosure, ce.Code == websocket.CloseGoingAway:
		return live.NewError(live.ErrRemoteClose, "remote closed the channel", err)
	case ce.Code == websocket.CloseInternalServerErr && isQuotaText(ce.Text):
		return live.NewError(live.ErrQuotaExceeded, "live quota exhausted", err)
	}
	return live.NewError(live.ErrConnection, ce.Text, err)
}

func isQuotaText(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "quota") || strings.Contains(t, "resource_exhausted") || strings.Contains(t, "resource exhausted")
}
