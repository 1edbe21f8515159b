package models

import "time"

const EventTable = "kiosk_events"

// Event 记录审计信息：每条入站总线消息和每次库存状态迁移都会落一行。
type Event struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TS        time.Time `gorm:"index" json:"ts"`
	EventType string    `gorm:"size:120;index;not null" json:"event_type"`
	ActorType string    `gorm:"size:16;not null;default:'system'" json:"actor_type"` // user|system
	ActorID   *string   `gorm:"size:64" json:"actor_id,omitempty"`

	RequestID  *string `gorm:"size:120;index" json:"request_id,omitempty"`
	ToolItemID *string `gorm:"size:64;index" json:"tool_item_id,omitempty"`

	PayloadJSON string `gorm:"type:text;not null;default:'{}'" json:"payload_json"`
}

func (Event) TableName() string { return EventTable }
