package api

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/runforge/runforge/domain"
	"github.com/runforge/runforge/hub"
	"github.com/runforge/runforge/service"
)

// Live upgrades to a websocket subscription for one run's event stream.
// GET /v1/runs/:run_id/live
//
// The server first sends one batch message replaying recent durable events,
// then a stream of single-event messages in storage order. Delivery is
// best-effort; clients reconcile gaps through the history API.
func (h *Handler) Live(c echo.Context) error {
	runID := c.Param("run_id")

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("run_id", runID), zap.Error(err))
		return err
	}

	// Subscribe before fetching the replay: an event ingested while the batch
	// is being assembled then lands on the subscription instead of falling
	// between replay and stream.
	sub := h.svc.Hub().Subscribe(runID)

	items, err := h.svc.ReplayBatch(c.Request().Context(), runID)
	if err != nil {
		h.logger.Error("replay batch failed", zap.String("run_id", runID), zap.Error(err))
		h.svc.Hub().Unsubscribe(sub)
		ws.Close()
		return nil
	}
	if items == nil {
		items = []domain.Event{}
	}

	ws.SetWriteDeadline(time.Now().Add(h.config.Live.WriteTimeout))
	if err := ws.WriteJSON(service.LiveMessage{Type: "batch", Items: items, RunID: runID}); err != nil {
		h.svc.Hub().Unsubscribe(sub)
		ws.Close()
		return nil
	}

	go h.writePump(ws, sub)
	go h.readPump(ws, sub)
	return nil
}

// writePump moves hub messages onto the wire and keeps the connection alive
// with pings.
func (h *Handler) writePump(ws *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(h.config.Live.PingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.Send:
			ws.SetWriteDeadline(time.Now().Add(h.config.Live.WriteTimeout))
			if !ok {
				// Room was dropped or the subscriber was removed.
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(h.config.Live.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection for pongs and close frames; a subscriber
// sends nothing meaningful upstream.
func (h *Handler) readPump(ws *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		h.svc.Hub().Unsubscribe(sub)
		ws.Close()
	}()

	ws.SetReadLimit(1024)
	ws.SetReadDeadline(time.Now().Add(h.config.Live.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(h.config.Live.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", zap.String("run_id", sub.RunID), zap.Error(err))
			}
			return
		}
	}
}
