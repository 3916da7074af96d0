package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/services/notifier"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressHandler relays progress snapshots for one batch or request id
// over a websocket.
type ProgressHandler struct {
	log       logger.Logger
	source    interfaces.ProgressSource
	submitter interfaces.ValidationSubmitter
}

func NewProgressHandler(source interfaces.ProgressSource, submitter interfaces.ValidationSubmitter, log logger.Logger) *ProgressHandler {
	return &ProgressHandler{log: log, source: source, submitter: submitter}
}

func (h *ProgressHandler) Stream() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warnf("Websocket upgrade failed for %s: %v", id, err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		stream, err := h.source.Subscribe(ctx)
		if err != nil {
			h.log.Errorf("Unable to subscribe to progress updates: %v", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "progress unavailable"),
				time.Now().Add(writeWait))
			return
		}

		// the read loop only exists to notice the client going away
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		if status, err := h.submitter.Status(ctx, id); err == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		}

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-stream:
				if !ok {
					return
				}
				batchId, requestId := notifier.ProgressKey(payload)
				if batchId != id && requestId != id {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					h.log.Debugf("Progress stream for %s closed: %v", id, err)
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}
}
