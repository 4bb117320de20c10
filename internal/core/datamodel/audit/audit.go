package audit

import "time"

type AuditLog struct {
	ID           int64     `gorm:"primaryKey" db:"id"`
	ActorID      *int64    `gorm:"column:actor_id;index" db:"actor_id"`
	Action       string    `gorm:"column:action;not null;index" db:"action"`
	ResourceType string    `gorm:"column:resource_type;not null" db:"resource_type"`
	ResourceID   string    `gorm:"column:resource_id" db:"resource_id"`
	Details      []byte    `gorm:"column:details" db:"details"`
	IPAddress    string    `gorm:"column:ip_address" db:"ip_address"`
	RequestID    string    `gorm:"column:request_id" db:"request_id"`
	CreatedAt    time.Time `gorm:"column:created_at;index" db:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
