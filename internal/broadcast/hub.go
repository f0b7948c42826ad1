package broadcast

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventVehicleUpdate is the event name pushed to subscribers.
const EventVehicleUpdate = "bus:update"

// RoomForRoute returns the room a route's updates are emitted to.
func RoomForRoute(routeID string) string {
	return "route:" + routeID
}

// Subscriber is the capability a push transport provides: deliver one event
// with its payload. Delivery is at-most-once; an error marks the subscriber
// dead and removes it from all rooms.
type Subscriber interface {
	ID() string
	Deliver(event string, payload []byte) error
}

// HubMetrics receives fan-out counters. Implementations must be safe for
// concurrent use.
type HubMetrics interface {
	BroadcastEmitted()
	SubscriberCount(n int)
}

// Hub tracks room membership and fans events out to current members.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Subscriber
	logger  *logrus.Logger
	metrics HubMetrics
}

// NewHub creates a new Hub. metrics may be nil.
func NewHub(logger *logrus.Logger, metrics HubMetrics) *Hub {
	return &Hub{
		rooms:   make(map[string]map[string]Subscriber),
		logger:  logger,
		metrics: metrics,
	}
}

// Join adds a subscriber to a room. Joining a room twice is a no-op.
func (h *Hub) Join(roomID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]Subscriber)
		h.rooms[roomID] = members
	}
	members[sub.ID()] = sub
	h.updateSubscriberCount()
}

// Leave removes a subscriber from a room.
func (h *Hub) Leave(roomID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(roomID, sub.ID())
	h.updateSubscriberCount()
}

// LeaveAll removes a subscriber from every room, used on disconnect.
func (h *Hub) LeaveAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.rooms {
		h.removeLocked(roomID, sub.ID())
	}
	h.updateSubscriberCount()
}

// RoomSize returns the number of subscribers currently joined to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Emit delivers the event to every current member of the room and returns
// the number of successful deliveries. Subscribers whose delivery fails are
// dropped from all rooms.
func (h *Hub) Emit(roomID, event string, payload []byte) int {
	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.rooms[roomID]))
	for _, sub := range h.rooms[roomID] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range members {
		if err := sub.Deliver(event, payload); err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"room":       roomID,
				"subscriber": sub.ID(),
			}).Warn("Dropping subscriber after failed delivery")
			h.LeaveAll(sub)
			continue
		}
		delivered++
	}

	if h.metrics != nil {
		h.metrics.BroadcastEmitted()
	}
	return delivered
}

// EmitVehicleUpdate emits a serialized VehicleUpdate to the route's room.
func (h *Hub) EmitVehicleUpdate(routeID string, payload []byte) {
	h.Emit(RoomForRoute(routeID), EventVehicleUpdate, payload)
}

// removeLocked deletes a member and prunes the room when it empties.
// Callers hold the write lock.
func (h *Hub) removeLocked(roomID, subID string) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, subID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) updateSubscriberCount() {
	if h.metrics == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, members := range h.rooms {
		for id := range members {
			seen[id] = struct{}{}
		}
	}
	h.metrics.SubscriberCount(len(seen))
}
