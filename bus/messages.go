package bus

// Stage names of a hardware operation's lifecycle.
const (
	StageAccepted   = "accepted"
	StageInProgress = "in_progress"
	StageSucceeded  = "succeeded"
	StageFailed     = "failed"
)

// CommandMsg is the envelope published on kiosk/cmd/* topics.
type CommandMsg struct {
	RequestID       string `json:"request_id"`
	Action          string `json:"action"` // dispense|return
	UserID          string `json:"user_id,omitempty"`
	ToolItemID      string `json:"tool_item_id,omitempty"`
	SlotID          string `json:"slot_id,omitempty"`
	LoanPeriodHours *int   `json:"loan_period_hours,omitempty"`
	TS              string `json:"ts,omitempty"`
}

// AdminTestCmdMsg exercises a single actuator without loan bookkeeping.
type AdminTestCmdMsg struct {
	RequestID string `json:"request_id"`
	MotorID   int    `json:"motor_id"`
	Action    string `json:"action"` // dispense|return
	TS        string `json:"ts,omitempty"`
}

// StageEventMsg is the envelope published on kiosk/evt/dispense and
// kiosk/evt/return.
type StageEventMsg struct {
	RequestID   string  `json:"request_id"`
	Event       string  `json:"event"` // "<action>_status"
	Stage       string  `json:"stage"`
	ErrorCode   *string `json:"error_code"`
	ErrorReason *string `json:"error_reason"`
	TS          string  `json:"ts"`
}

// AdminTestEventMsg is the stage event variant for the diagnostic topic.
type AdminTestEventMsg struct {
	RequestID   string  `json:"request_id"`
	MotorID     *int    `json:"motor_id,omitempty"`
	Action      string  `json:"action,omitempty"`
	Stage       string  `json:"stage"`
	ErrorCode   *string `json:"error_code"`
	ErrorReason *string `json:"error_reason"`
	TS          string  `json:"ts"`
}

// ScanMsg is published by the RFID reader service on card/tool scans.
type ScanMsg struct {
	ReaderID string `json:"reader_id"`
	TagID    string `json:"tag_id"`
	TS       string `json:"ts,omitempty"`
}
