package models

import "time"

const ToolModelTable = "kiosk_tool_models"
const ToolItemTable = "kiosk_tool_items"

// ToolModel is a catalog entry; policy caps are optional (nil = no cap).
type ToolModel struct {
	ID          string  `gorm:"primaryKey" json:"tool_model_id"`
	Name        string  `gorm:"size:200;not null" json:"name"`
	Description string  `gorm:"type:text" json:"description"`
	Category    *string `gorm:"size:120" json:"category,omitempty"`

	MaxLoanHours  *int `json:"max_loan_hours,omitempty"`   // cap on requested loan period
	MaxQtyPerUser *int `json:"max_qty_per_user,omitempty"` // cap on concurrent units per user
}

// ToolItem is one physical instance sitting in a kiosk slot.
type ToolItem struct {
	ID          string `gorm:"primaryKey" json:"tool_item_id"`
	ToolModelID string `gorm:"index;not null" json:"tool_model_id"`
	ToolTagID   string `gorm:"uniqueIndex;size:120;not null" json:"tool_tag_id"` // RFID tag on the tool
	SlotID      string `gorm:"index;size:64;not null" json:"slot_id"`
	Condition   string `gorm:"size:20;not null;default:'ok'" json:"condition_status"`
	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ToolModel) TableName() string { return ToolModelTable }
func (ToolItem) TableName() string  { return ToolItemTable }
