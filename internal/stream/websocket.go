package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	v1 "github.com/beacon-lab/project-beacon/internal/api/v1"
	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
	"github.com/beacon-lab/project-beacon/internal/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send pongs and
	// close frames; anything larger is a protocol violation.
	maxMessageSize = 4 * 1024

	defaultReplay = 25
	maxReplay     = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dashboards connect cross-origin
}

// frame is the wire shape of every server-to-client message.
type frame struct {
	Type    string      `json:"type"` // connected | snapshot | event | lag
	Event   *v1.Event   `json:"event,omitempty"`
	Events  []*v1.Event `json:"events,omitempty"`
	Skipped int64       `json:"skipped,omitempty"`
	SubID   string      `json:"subscription_id,omitempty"`
}

// StreamHandler upgrades the connection and streams matching events until
// the client disconnects. Subscription scope comes from query parameters:
//
//	events       comma-separated allow-list ("" = all events)
//	environment  exact environment match ("" = all environments)
//	filter       repeated "key:operator[:value]" property predicates
//	replay       number of recent events snapshotted on connect
//
// A subscriber that reads too slowly loses the oldest queued events; the
// skipped count is delivered as a lag frame before the next event frame.
func (s *Service) StreamHandler(c *gin.Context) {
	sub, err := s.subscribeFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidSubscription,
			Message:   err.Error(),
		})
		return
	}

	replay, ok := intQuery(c, "replay", defaultReplay)
	if !ok {
		s.engine.Unsubscribe(sub.ID) //nolint:errcheck
		return
	}
	if replay < 0 || replay > maxReplay {
		s.engine.Unsubscribe(sub.ID) //nolint:errcheck
		writeParamError(c, fmt.Sprintf("replay must be between 0 and %d", maxReplay))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.engine.Unsubscribe(sub.ID) //nolint:errcheck
		slog.Error("[Stream] WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("[Stream] Subscriber connected",
		"subscription_id", sub.ID,
		"remote", conn.RemoteAddr().String(),
	)

	ctx, cancel := context.WithCancel(c.Request.Context())
	go s.readPump(conn, sub, cancel)
	s.writePump(ctx, conn, sub, replay)
}

// subscribeFromQuery builds the subscription from query parameters and
// registers it with the engine.
func (s *Service) subscribeFromQuery(c *gin.Context) (*realtime.Subscriber, error) {
	var sub realtime.Subscription

	if raw := c.Query("events"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sub.Events = append(sub.Events, name)
			}
		}
	}
	sub.Environment = c.Query("environment")

	for _, raw := range c.QueryArray("filter") {
		f, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		sub.Filters = append(sub.Filters, f)
	}

	return s.engine.Subscribe(sub)
}

// parseFilter parses one "key:operator[:value]" query value.
func parseFilter(raw string) (realtime.PropertyFilter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return realtime.PropertyFilter{}, fmt.Errorf("filter %q: want key:operator[:value]", raw)
	}
	f := realtime.PropertyFilter{
		Key:      parts[0],
		Operator: realtime.FilterOperator(parts[1]),
	}
	if len(parts) == 3 {
		f.Value = parts[2]
	}
	return f, nil
}

// readPump discards client messages and watches for disconnect. The engine
// subscription is torn down here, which in turn wakes the write pump.
func (s *Service) readPump(conn *websocket.Conn, sub *realtime.Subscriber, cancel context.CancelFunc) {
	defer func() {
		cancel()
		s.engine.Unsubscribe(sub.ID) //nolint:errcheck
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[Stream] Read error", "subscription_id", sub.ID, "error", err)
			}
			return
		}
	}
}

// writePump is the connection's single writer: the connected handshake, the
// replay snapshot, then the live delivery loop. Pings are interleaved by
// bounding each Receive with the ping period.
func (s *Service) writePump(ctx context.Context, conn *websocket.Conn, sub *realtime.Subscriber, replay int) {
	defer func() {
		s.engine.Unsubscribe(sub.ID) //nolint:errcheck
		conn.Close()
		slog.Info("[Stream] Subscriber disconnected", "subscription_id", sub.ID)
	}()

	if err := writeFrame(conn, frame{Type: "connected", SubID: sub.ID.String()}); err != nil {
		return
	}
	if replay > 0 {
		if err := writeFrame(conn, frame{Type: "snapshot", Events: s.engine.Recent(replay)}); err != nil {
			return
		}
	}

	for {
		recvCtx, cancel := context.WithTimeout(ctx, pingPeriod)
		d, err := sub.Receive(recvCtx)
		cancel()

		switch {
		case err == nil:
			// Lag rides as its own frame so clients can surface a gap
			// marker without inspecting event payloads.
			if d.Skipped > 0 {
				if err := writeFrame(conn, frame{Type: "lag", Skipped: d.Skipped}); err != nil {
					return
				}
			}
			if err := writeFrame(conn, frame{Type: "event", Event: d.Event}); err != nil {
				return
			}

		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case errors.Is(err, realtime.ErrClosed):
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
			return

		default:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	return conn.WriteJSON(f)
}
