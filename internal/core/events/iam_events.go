package events

import (
	"time"

	"github.com/google/uuid"
)

const EventTypeAuditRecorded = "audit.recorded"

// AuditRecordedEvent carries one audit entry to the audit store subscriber.
type AuditRecordedEvent struct {
	BaseEvent
	Entry interface{} `json:"entry"`
}

func NewAuditRecordedEvent(entry interface{}) *AuditRecordedEvent {
	return &AuditRecordedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeAuditRecorded,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"entry": entry},
		},
		Entry: entry,
	}
}
