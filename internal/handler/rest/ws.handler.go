package hrest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/pub"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsReadTimeout = 60 * time.Second

// WalletWS streams the caller's escrow and wallet events. Clients may send
// {"action":"get_balance"} to receive a fresh snapshot.
func (h *EscrowRestHandler) WalletWS(w http.ResponseWriter, r *http.Request) {
	h.withActor(func(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", zap.String("user_id", actor.ID), zap.Error(err))
			return
		}
		h.notifier.RegisterConnection(actor.ID, conn)
		defer h.notifier.UnregisterConnection(actor.ID, conn)

		ctx := r.Context()
		h.sendSnapshot(ctx, actor)

		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				h.logger.Debug("websocket client disconnected", zap.String("user_id", actor.ID), zap.Error(err))
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			if mt != websocket.TextMessage {
				continue
			}
			var req struct {
				Action string `json:"action"`
			}
			if err := json.Unmarshal(msg, &req); err == nil && req.Action == "get_balance" {
				h.sendSnapshot(ctx, actor)
			}
		}
	})(w, r)
}

func (h *EscrowRestHandler) sendSnapshot(ctx context.Context, actor domain.Actor) {
	wlt, err := h.walletUC.GetOrCreate(ctx, actor.ID)
	if err != nil {
		h.logger.Warn("websocket snapshot failed", zap.String("user_id", actor.ID), zap.Error(err))
		return
	}
	wlt, err = h.walletUC.Get(ctx, actor, wlt.ID)
	if err != nil {
		h.logger.Warn("websocket snapshot failed", zap.String("user_id", actor.ID), zap.Error(err))
		return
	}
	h.notifier.Send(actor.ID, pub.WSMessage{Type: "wallet_snapshot", Data: walletView(wlt)})
}
