package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeUserDeleted = "identity.user.deleted"
)

// NewUserDeletedEvent is published right before a user's directory record
// is removed, whether by an explicit delete or by a reconciliation pass.
// Subscribers use it to tear down any live session for that identity.
func NewUserDeletedEvent(remoteID, localID, reason string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      TypeUserDeleted,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"remote_id": remoteID,
			"local_id":  localID,
			"reason":    reason,
		},
	}
}
