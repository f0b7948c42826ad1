package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	ua "github.com/mssola/user_agent"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/live-tracking-backend/internal/broadcast"
)

const writeTimeout = 10 * time.Second

// clientMessage is what subscribers send: join or leave a route room.
type clientMessage struct {
	Action  string `json:"action"`
	RouteID string `json:"routeId"`
}

// serverEvent is the push frame: the event name plus the serialized
// VehicleUpdate exactly as returned on the HTTP paths.
type serverEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsClient adapts one websocket connection to the broadcast subscriber
// capability. Writes are serialized; the hub may deliver from many ingest
// goroutines at once.
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// ID implements broadcast.Subscriber
func (c *wsClient) ID() string { return c.id }

// Deliver implements broadcast.Subscriber
func (c *wsClient) Deliver(event string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(serverEvent{Event: event, Data: payload})
}

// WSHandler upgrades push-channel connections and manages room membership
type WSHandler struct {
	hub      *broadcast.Hub
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *broadcast.Hub, logger *logrus.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin checks belong to the CORS layer in front of us.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles a push-channel connection
// GET /ws
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &wsClient{id: uuid.New().String(), conn: conn}

	parser := ua.New(c.Request.UserAgent())
	browser, browserVersion := parser.Browser()
	h.logger.WithFields(logrus.Fields{
		"subscriber": client.id,
		"ip":         c.ClientIP(),
		"os":         parser.OS(),
		"browser":    browser + " " + browserVersion,
		"mobile":     parser.Mobile(),
	}).Info("Subscriber connected")

	defer func() {
		h.hub.LeaveAll(client)
		conn.Close()
		h.logger.WithField("subscriber", client.id).Info("Subscriber disconnected")
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("subscriber", client.id).Debug("Websocket read error")
			}
			return
		}

		switch msg.Action {
		case "subscribe:route":
			if msg.RouteID != "" {
				h.hub.Join(broadcast.RoomForRoute(msg.RouteID), client)
			}
		case "unsubscribe:route":
			if msg.RouteID != "" {
				h.hub.Leave(broadcast.RoomForRoute(msg.RouteID), client)
			}
		default:
			// Unknown actions are ignored rather than fatal; older clients
			// send ping frames as JSON.
		}
	}
}
