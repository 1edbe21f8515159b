package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"toolkiosk/models"
)

const defaultLoanHours = 24

// StageUpdate is the consumer-side view of one bridge stage event.
type StageUpdate struct {
	RequestID   string
	Stage       string
	ErrorCode   *string
	ErrorReason *string
}

// ErrUnknownRequest marks a stage event whose request id has no matching
// loan request. The consumer logs and ignores it; it must never crash.
var ErrUnknownRequest = errors.New("unknown_request_id")

// ApplyDispenseEvent mirrors a dispense stage event onto the loan request
// and, on success, materializes the unconfirmed loan. The loan is created
// here, synchronously with the succeeded event, so the item stays
// unavailable from the moment hardware reports success. Idempotent: a
// replayed succeeded event finds the open loan and creates nothing.
func (r *Repo) ApplyDispenseEvent(ctx context.Context, up StageUpdate) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := findRequest(tx, up.RequestID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		switch up.Stage {
		case "accepted":
			req.HwStatus = models.HwAccepted
		case "in_progress":
			req.HwStatus = models.HwInProgress
		case "succeeded":
			req.HwStatus = models.HwDispensedOK
		case "failed":
			req.HwStatus = models.HwFailed
			req.HwErrorCode = up.ErrorCode
			req.HwErrorReason = up.ErrorReason
		default:
			return nil
		}
		req.HwUpdatedAt = &now
		if err := tx.Save(req).Error; err != nil {
			return err
		}

		if up.Stage != "succeeded" {
			return nil
		}

		// On mechanical success, create the unconfirmed loan unless an open
		// one already exists for this user+tool (replayed event, or the
		// confirmation path got there first).
		var n int64
		if err := tx.Model(&models.Loan{}).
			Where("user_id = ? AND tool_item_id = ? AND returned_at IS NULL", req.UserID, req.ToolItemID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		hours := defaultLoanHours
		if req.LoanPeriodHours != nil && *req.LoanPeriodHours > 0 {
			hours = *req.LoanPeriodHours
		}
		loan := &models.Loan{
			ID:         models.NewID("loan"),
			UserID:     req.UserID,
			ToolItemID: req.ToolItemID,
			IssuedAt:   now,
			DueAt:      now.Add(time.Duration(hours) * time.Hour),
			Status:     models.LoanStatusUnconfirmed,
		}
		if err := tx.Create(loan).Error; err != nil {
			return err
		}
		return logEvent(tx, "loan:created_unconfirmed", "system",
			strptr(req.UserID), strptr(req.RequestID), strptr(req.ToolItemID),
			map[string]string{"reason": "dispensed_ok_requires_confirm"})
	})
}

// ApplyReturnEvent mirrors a return stage event; on success it closes the
// user's open loan for the tool.
func (r *Repo) ApplyReturnEvent(ctx context.Context, up StageUpdate) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := findRequest(tx, up.RequestID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		switch up.Stage {
		case "accepted":
			req.HwStatus = models.HwAccepted
		case "in_progress":
			req.HwStatus = models.HwInProgress
		case "succeeded":
			req.HwStatus = models.HwReturnOK
		case "failed":
			req.HwStatus = models.HwFailed
			req.HwErrorCode = up.ErrorCode
			req.HwErrorReason = up.ErrorReason
		default:
			return nil
		}
		req.HwUpdatedAt = &now
		if err := tx.Save(req).Error; err != nil {
			return err
		}

		if up.Stage != "succeeded" {
			return nil
		}

		var loan models.Loan
		err = tx.Where("user_id = ? AND tool_item_id = ? AND returned_at IS NULL", req.UserID, req.ToolItemID).
			Order("issued_at DESC").
			First(&loan).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Nothing open: replayed event, or the loan was closed by staff.
			return nil
		}
		if err != nil {
			return err
		}

		loan.ReturnedAt = &now
		loan.Status = models.LoanStatusReturned
		if err := tx.Save(&loan).Error; err != nil {
			return err
		}
		return logEvent(tx, "loan:returned", "system",
			strptr(req.UserID), strptr(req.RequestID), strptr(req.ToolItemID), nil)
	})
}

// ConfirmToolReceipt promotes the unconfirmed loan to active once the
// tool's own tag is scanned by the borrowing user. If no unconfirmed loan
// exists (for example the process restarted between hardware success and
// loan creation), it falls back to the originating dispense request and
// synthesizes the loan there.
func (r *Repo) ConfirmToolReceipt(ctx context.Context, userID, toolTagID string) (string, error) {
	var loanID string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tool models.ToolItem
		if err := tx.First(&tool, "tool_tag_id = ?", toolTagID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownToolTag
			}
			return err
		}

		now := time.Now().UTC()

		var loan models.Loan
		err := tx.Where("user_id = ? AND tool_item_id = ? AND returned_at IS NULL AND status = ?",
			userID, tool.ID, models.LoanStatusUnconfirmed).
			Order("issued_at DESC").
			First(&loan).Error
		if err == nil {
			loan.Status = models.LoanStatusActive
			loan.ConfirmedAt = &now
			if err := tx.Save(&loan).Error; err != nil {
				return err
			}
			loanID = loan.ID
			return logEvent(tx, "loan:confirmed", "user",
				strptr(userID), nil, strptr(tool.ID), map[string]string{"source": "rfid_confirm"})
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Recovery path: locate the dispense request that succeeded.
		var req models.LoanRequest
		err = tx.Where("user_id = ? AND tool_item_id = ? AND request_type = ? AND hw_status = ?",
			userID, tool.ID, models.RequestTypeDispense, models.HwDispensedOK).
			Order("created_at DESC").
			First(&req).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoDispenseReq
		}
		if err != nil {
			return err
		}

		var existing models.Loan
		err = tx.Where("tool_item_id = ? AND returned_at IS NULL", tool.ID).
			Order("issued_at DESC").
			First(&existing).Error
		if err == nil {
			if existing.UserID != userID {
				return ErrToolLoaned
			}
			existing.Status = models.LoanStatusActive
			existing.ConfirmedAt = &now
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			loanID = existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hours := defaultLoanHours
		if req.LoanPeriodHours != nil && *req.LoanPeriodHours > 0 {
			hours = *req.LoanPeriodHours
		}
		loan = models.Loan{
			ID:          models.NewID("loan"),
			UserID:      userID,
			ToolItemID:  tool.ID,
			IssuedAt:    now,
			DueAt:       now.Add(time.Duration(hours) * time.Hour),
			ConfirmedAt: &now,
			Status:      models.LoanStatusActive,
		}
		if err := tx.Create(&loan).Error; err != nil {
			return err
		}
		loanID = loan.ID

		req.HwStatus = models.HwConfirmed
		req.HwUpdatedAt = &now
		return tx.Save(&req).Error
	})
	if err != nil {
		return "", err
	}
	return loanID, nil
}

// RecordBusEvent appends one raw inbound bus message to the audit trail.
func (r *Repo) RecordBusEvent(ctx context.Context, topic string, payload []byte) error {
	return r.DB.WithContext(ctx).Create(&models.Event{
		TS:          time.Now().UTC(),
		EventType:   "mqtt:" + topic,
		ActorType:   "system",
		PayloadJSON: string(payload),
	}).Error
}

func findRequest(tx *gorm.DB, requestID string) (*models.LoanRequest, error) {
	if requestID == "" {
		return nil, ErrUnknownRequest
	}
	var req models.LoanRequest
	if err := tx.First(&req, "request_id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownRequest
		}
		return nil, err
	}
	return &req, nil
}
