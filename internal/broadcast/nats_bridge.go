package broadcast

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const updateSubjectPrefix = "bus.update."

// envelope is the wire form of a cross-instance broadcast. The instance tag
// keeps a node from re-emitting its own messages.
type envelope struct {
	Instance string          `json:"instance"`
	RouteID  string          `json:"routeId"`
	Payload  json.RawMessage `json:"payload"`
}

// Bridge fans vehicle updates out across instances over NATS. Local emits go
// to the hub and are published on bus.update.<routeId>; updates published by
// other instances are re-emitted into the local hub so every node's rooms see
// every vehicle.
type Bridge struct {
	nc       *nats.Conn
	hub      *Hub
	logger   *logrus.Logger
	sub      *nats.Subscription
	instance string
}

// NewBridge connects to NATS and starts mirroring remote updates into the hub.
func NewBridge(url string, hub *Hub, logger *logrus.Logger) (*Bridge, error) {
	nc, err := nats.Connect(url,
		nats.Name("live-tracking-backend"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		nc:       nc,
		hub:      hub,
		logger:   logger,
		instance: uuid.New().String(),
	}

	sub, err := nc.Subscribe(updateSubjectPrefix+">", b.handleRemote)
	if err != nil {
		nc.Close()
		return nil, err
	}
	b.sub = sub
	return b, nil
}

// EmitVehicleUpdate emits locally and publishes for the other instances.
func (b *Bridge) EmitVehicleUpdate(routeID string, payload []byte) {
	b.hub.EmitVehicleUpdate(routeID, payload)

	env, err := json.Marshal(envelope{
		Instance: b.instance,
		RouteID:  routeID,
		Payload:  payload,
	})
	if err != nil {
		b.logger.WithError(err).Error("Failed to marshal broadcast envelope")
		return
	}
	if err := b.nc.Publish(updateSubjectPrefix+subjectToken(routeID), env); err != nil {
		b.logger.WithError(err).WithField("route_id", routeID).Warn("NATS publish failed")
	}
}

// Close drains the connection. Pending deliveries flush before shutdown.
func (b *Bridge) Close() {
	if b.nc != nil {
		b.nc.Drain()
		b.nc.Close()
	}
}

func (b *Bridge) handleRemote(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		b.logger.WithError(err).Warn("Dropping malformed broadcast envelope")
		return
	}
	if env.Instance == b.instance {
		return
	}
	b.hub.EmitVehicleUpdate(env.RouteID, env.Payload)
}

// subjectToken sanitizes an identifier for use as a NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
