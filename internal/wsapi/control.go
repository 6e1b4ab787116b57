package wsapi

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/logger"
)

// NewControlHandler returns the /ws/control WebSocketHandler from
// spec.md §4.6: each inbound binary message carries a single buffer-health
// byte, fed straight into the session's Quality Controller. A tier change
// is pushed into the paired encoder's pixel budget, if one already exists.
func NewControlHandler(sessions *VideoSessions) func(ctx context.Context, conn *websocket.Conn, verdict authstore.Verdict) {
	return func(ctx context.Context, conn *websocket.Conn, verdict authstore.Verdict) {
		defer conn.Close()
		log := logger.Encoder()

		vs := sessions.get(verdict.SessionID)
		defer sessions.Drop(verdict.SessionID)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if len(msg) < 1 {
				continue
			}
			health := msg[0]

			vs.mu.Lock()
			changed := vs.controller.ReportHealth(health)
			tier := vs.controller.CurrentTier()
			enc := vs.encoder
			vs.mu.Unlock()

			if changed && enc != nil {
				if err := enc.SetPixelBudget(tier.PixelBudget); err != nil {
					log.Warn().Err(err).Str("tier", tier.Name).Msg("failed to apply tier pixel budget")
				}
			}
		}
	}
}
