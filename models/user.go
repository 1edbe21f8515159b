package models

import "time"

const UserTable = "kiosk_users"

// User statuses. "banned" blocks every kiosk flow; anything else
// in AllowedUserStatuses may borrow.
const (
	UserStatusGood       = "good"
	UserStatusActive     = "active"
	UserStatusDelinquent = "delinquent"
	UserStatusBanned     = "banned"
)

var AllowedUserStatuses = []string{UserStatusGood, UserStatusActive, UserStatusDelinquent}

type User struct {
	ID            string  `gorm:"primaryKey" json:"user_id"`
	CardID        *string `gorm:"uniqueIndex;size:120" json:"card_id,omitempty"` // RFID card UID
	StudentNumber *string `gorm:"size:64" json:"student_number,omitempty"`
	FirstName     string  `gorm:"size:120" json:"first_name"`
	LastName      string  `gorm:"size:120" json:"last_name"`
	Role          string  `gorm:"size:20;not null;default:'student'" json:"role"` // student|staff|admin
	Status        string  `gorm:"size:20;not null;default:'good'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return UserTable }
