package websocket

import (
	"log"

	"github.com/booking-mirror/backend/internal/storage/models"
)

// EventBroadcaster publishes sync outcomes to connected clients. It
// satisfies the scheduler's Broadcaster interface.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a broadcaster over the given hub.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// SyncCompleted sends a sync.completed event. The full run result is
// the payload; it carries only summarized error text.
func (b *EventBroadcaster) SyncCompleted(result *models.SyncRunResult) {
	b.broadcast(NewMessage(TypeSyncCompleted, result))
}

// SyncError sends a sync.error event.
func (b *EventBroadcaster) SyncError(listingID, message string) {
	b.broadcast(NewMessage(TypeSyncError, SyncErrorPayload{
		ListingID: listingID,
		Message:   message,
	}))
}

// Notify sends a free-form notification.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}
