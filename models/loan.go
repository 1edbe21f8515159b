package models

import "time"

const LoanRequestTable = "kiosk_loan_requests"
const LoanTable = "kiosk_loans"

// Hardware status of a loan request. Mirrors the bridge stage events,
// with terminal refinements per request type.
const (
	HwPending     = "pending"
	HwAccepted    = "accepted"
	HwInProgress  = "in_progress"
	HwDispensedOK = "dispensed_ok"
	HwReturnOK    = "return_ok"
	HwConfirmed   = "confirmed"
	HwFailed      = "failed"
)

const (
	RequestTypeDispense = "dispense"
	RequestTypeReturn   = "return"
)

const (
	LoanStatusUnconfirmed = "unconfirmed"
	LoanStatusActive      = "active"
	LoanStatusOverdue     = "overdue"
	LoanStatusReturned    = "returned"
	LoanStatusLost        = "lost"
	LoanStatusDamaged     = "damaged"
)

// OpenLoanStatuses are the statuses under which a tool item is still out.
// Unconfirmed counts: stock drops the moment hardware reports success.
var OpenLoanStatuses = []string{LoanStatusActive, LoanStatusOverdue, LoanStatusUnconfirmed}

// ReservedHwStatuses mark a dispense request as an in-flight reservation.
// dispensed_ok is included: hardware has released the tool but the loan row
// may not exist yet, and that window must stay reserved.
var ReservedHwStatuses = []string{HwPending, HwAccepted, HwInProgress, HwDispensedOK}

// LoanRequest is one line item of a dispense/return batch. Never deleted;
// rows double as the hardware audit trail.
type LoanRequest struct {
	RequestID   string `gorm:"primaryKey" json:"request_id"`
	BatchID     string `gorm:"index;not null" json:"batch_id"`
	RequestType string `gorm:"size:16;not null" json:"request_type"`

	UserID          string `gorm:"index;not null" json:"user_id"`
	ToolItemID      string `gorm:"index;not null" json:"tool_item_id"`
	SlotID          string `gorm:"size:64;not null" json:"slot_id"`
	LoanPeriodHours *int   `json:"loan_period_hours,omitempty"`

	HwStatus      string  `gorm:"size:20;not null;default:'pending'" json:"hw_status"`
	HwErrorCode   *string `gorm:"size:64" json:"hw_error_code,omitempty"`
	HwErrorReason *string `gorm:"type:text" json:"hw_error_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	HwUpdatedAt *time.Time `json:"hw_updated_at,omitempty"`
}

type Loan struct {
	ID         string `gorm:"primaryKey" json:"loan_id"`
	UserID     string `gorm:"index;not null" json:"user_id"`
	ToolItemID string `gorm:"index;not null" json:"tool_item_id"`

	IssuedAt    time.Time  `gorm:"index;not null" json:"issued_at"`
	DueAt       time.Time  `gorm:"not null" json:"due_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ReturnedAt  *time.Time `gorm:"index" json:"returned_at,omitempty"`

	Status string `gorm:"size:20;not null;default:'unconfirmed'" json:"status"`
}

func (LoanRequest) TableName() string { return LoanRequestTable }
func (Loan) TableName() string        { return LoanTable }
