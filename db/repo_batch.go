package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"toolkiosk/models"
)

var (
	ErrNoItems         = errors.New("no_items")
	ErrInvalidQty      = errors.New("invalid_qty")
	ErrMissingModelID  = errors.New("missing_tool_model_id")
	ErrMissingItemID   = errors.New("missing_tool_item_id")
	ErrInvalidLoan     = errors.New("invalid_loan")
	ErrInvalidToolItem = errors.New("invalid_tool_item")
)

// NotEnoughItemsError fails a whole dispense batch when a model has no
// allocatable instance left.
type NotEnoughItemsError struct{ ToolModelID string }

func (e NotEnoughItemsError) Error() string {
	return "not_enough_available_items:" + e.ToolModelID
}

// QtyPolicyError rejects a batch that would push the user over the model's
// concurrent-units cap.
type QtyPolicyError struct {
	ToolModelID string
	MaxQty      int
}

func (e QtyPolicyError) Error() string {
	return fmt.Sprintf("max_qty_per_user_exceeded:%s:%d", e.ToolModelID, e.MaxQty)
}

// LoanPeriodError rejects a batch whose requested loan period exceeds the
// model's cap.
type LoanPeriodError struct {
	ToolModelID  string
	MaxLoanHours int
}

func (e LoanPeriodError) Error() string {
	return fmt.Sprintf("loan_period_over_cap:%s:%d", e.ToolModelID, e.MaxLoanHours)
}

// BatchLine is one requested line of a dispense batch.
type BatchLine struct {
	ToolModelID string `json:"tool_model_id"`
	Qty         int    `json:"qty"`
}

type BatchResult struct {
	BatchID    string   `json:"batch_id"`
	RequestIDs []string `json:"request_ids"`
}

// CreateDispenseBatch reserves one tool item per requested unit and records
// a pending loan request for each. Policy caps are checked for every line
// before any allocation happens; any failure rolls the whole batch back, so
// no partial reservation is ever persisted. The availability predicate and
// the inserts run in one transaction, which is what keeps allocation
// linearizable across concurrent batches.
func (r *Repo) CreateDispenseBatch(ctx context.Context, userID string, lines []BatchLine, loanPeriodHours int) (*BatchResult, error) {
	if len(lines) == 0 {
		return nil, ErrNoItems
	}

	var out BatchResult
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := txMustUserActive(tx, userID); err != nil {
			return err
		}

		// Policy pass: the whole batch must be admissible before the first
		// allocation.
		for _, line := range lines {
			if line.ToolModelID == "" {
				return ErrMissingModelID
			}
			if line.Qty < 1 {
				return ErrInvalidQty
			}
			if err := checkModelPolicy(tx, userID, line.ToolModelID, line.Qty, loanPeriodHours); err != nil {
				return err
			}
		}

		out.BatchID = models.NewID("batch")
		idx := 0
		for _, line := range lines {
			for q := 0; q < line.Qty; q++ {
				item, err := allocateToolItem(tx, line.ToolModelID)
				if err != nil {
					return err
				}
				if item == nil {
					return NotEnoughItemsError{ToolModelID: line.ToolModelID}
				}

				idx++
				rid := fmt.Sprintf("%s_item_%d", out.BatchID, idx)
				out.RequestIDs = append(out.RequestIDs, rid)

				hours := loanPeriodHours
				if err := tx.Create(&models.LoanRequest{
					RequestID:       rid,
					BatchID:         out.BatchID,
					RequestType:     models.RequestTypeDispense,
					UserID:          userID,
					ToolItemID:      item.ID,
					SlotID:          item.SlotID,
					LoanPeriodHours: &hours,
					HwStatus:        models.HwPending,
					CreatedAt:       time.Now().UTC(),
				}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateReturnBatch validates that the caller holds an open loan for each
// named tool item and records a pending return request against the item's
// current slot. No allocation happens on the return path.
func (r *Repo) CreateReturnBatch(ctx context.Context, userID string, toolItemIDs []string) (*BatchResult, error) {
	if len(toolItemIDs) == 0 {
		return nil, ErrNoItems
	}

	var out BatchResult
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := txMustUserActive(tx, userID); err != nil {
			return err
		}

		out.BatchID = models.NewID("retbatch")
		for idx, toolItemID := range toolItemIDs {
			if toolItemID == "" {
				return ErrMissingItemID
			}

			var n int64
			if err := tx.Model(&models.Loan{}).
				Where("user_id = ? AND tool_item_id = ? AND returned_at IS NULL AND status IN ?",
					userID, toolItemID, models.OpenLoanStatuses).
				Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrInvalidLoan
			}

			var item models.ToolItem
			if err := tx.First(&item, "id = ?", toolItemID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrInvalidToolItem
				}
				return err
			}

			rid := fmt.Sprintf("%s_item_%d", out.BatchID, idx+1)
			out.RequestIDs = append(out.RequestIDs, rid)

			if err := tx.Create(&models.LoanRequest{
				RequestID:   rid,
				BatchID:     out.BatchID,
				RequestType: models.RequestTypeReturn,
				UserID:      userID,
				ToolItemID:  toolItemID,
				SlotID:      item.SlotID,
				HwStatus:    models.HwPending,
				CreatedAt:   time.Now().UTC(),
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchStatus returns every loan request of a batch, for polling.
func (r *Repo) BatchStatus(ctx context.Context, batchID string) ([]models.LoanRequest, error) {
	var rows []models.LoanRequest
	err := r.DB.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("request_id ASC").
		Find(&rows).Error
	return rows, err
}

// FindRequest loads a loan request by id.
func (r *Repo) FindRequest(ctx context.Context, requestID string) (*models.LoanRequest, error) {
	var req models.LoanRequest
	if err := r.DB.WithContext(ctx).First(&req, "request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ActiveLoanRow joins a loan with its tool's catalog entry for display.
type ActiveLoanRow struct {
	LoanID       string     `json:"loan_id"`
	ToolItemID   string     `json:"tool_item_id"`
	ToolModelID  string     `json:"tool_model_id"`
	ToolName     string     `json:"tool_name"`
	ToolCategory *string    `json:"tool_category"`
	ToolTagID    string     `json:"tool_tag_id"`
	IssuedAt     time.Time  `json:"issued_at"`
	DueAt        time.Time  `json:"due_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at"`
	Status       string     `json:"status"`
}

// ListActiveLoans returns the user's open loans, newest first.
func (r *Repo) ListActiveLoans(ctx context.Context, userID string) ([]ActiveLoanRow, error) {
	var rows []ActiveLoanRow
	err := r.DB.WithContext(ctx).
		Table(models.LoanTable+" AS l").
		Select(`l.id AS loan_id, l.tool_item_id, ti.tool_model_id, tm.name AS tool_name,
		        tm.category AS tool_category, ti.tool_tag_id, l.issued_at, l.due_at,
		        l.confirmed_at, l.status`).
		Joins(fmt.Sprintf("JOIN %s AS ti ON ti.id = l.tool_item_id", models.ToolItemTable)).
		Joins(fmt.Sprintf("JOIN %s AS tm ON tm.id = ti.tool_model_id", models.ToolModelTable)).
		Where("l.user_id = ? AND l.returned_at IS NULL AND l.status IN ?", userID, models.OpenLoanStatuses).
		Order("l.issued_at DESC").
		Scan(&rows).Error
	return rows, err
}

func txMustUserActive(tx *gorm.DB, userID string) (*models.User, error) {
	var u models.User
	if err := tx.First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidUser
		}
		return nil, err
	}
	return checkUserStatus(&u)
}

// checkModelPolicy enforces the model's optional caps: requested loan
// period vs max_loan_hours, and the user's concurrent units (open loans
// plus in-flight dispense reservations) vs max_qty_per_user.
func checkModelPolicy(tx *gorm.DB, userID, toolModelID string, qty, loanPeriodHours int) error {
	var model models.ToolModel
	if err := tx.First(&model, "id = ?", toolModelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Unknown model: allocation below will report the shortage.
			return nil
		}
		return err
	}

	if model.MaxLoanHours != nil && loanPeriodHours > *model.MaxLoanHours {
		return LoanPeriodError{ToolModelID: toolModelID, MaxLoanHours: *model.MaxLoanHours}
	}

	if model.MaxQtyPerUser != nil {
		held, err := countUserHoldings(tx, userID, toolModelID)
		if err != nil {
			return err
		}
		if held+qty > *model.MaxQtyPerUser {
			return QtyPolicyError{ToolModelID: toolModelID, MaxQty: *model.MaxQtyPerUser}
		}
	}
	return nil
}

// countUserHoldings counts distinct tool items of the model the user either
// holds on an open loan or has reserved through an in-flight dispense
// request. Distinct items, so a dispensed_ok request whose loan already
// exists is not counted twice.
func countUserHoldings(tx *gorm.DB, userID, toolModelID string) (int, error) {
	held := map[string]struct{}{}

	var loanItems []string
	if err := tx.Model(&models.Loan{}).
		Joins(fmt.Sprintf("JOIN %s AS ti ON ti.id = %s.tool_item_id", models.ToolItemTable, models.LoanTable)).
		Where(models.LoanTable+".user_id = ? AND ti.tool_model_id = ? AND returned_at IS NULL AND status IN ?",
			userID, toolModelID, models.OpenLoanStatuses).
		Pluck(models.LoanTable+".tool_item_id", &loanItems).Error; err != nil {
		return 0, err
	}
	for _, id := range loanItems {
		held[id] = struct{}{}
	}

	var reqItems []string
	if err := tx.Model(&models.LoanRequest{}).
		Joins(fmt.Sprintf("JOIN %s AS ti ON ti.id = %s.tool_item_id", models.ToolItemTable, models.LoanRequestTable)).
		Where(models.LoanRequestTable+".user_id = ? AND ti.tool_model_id = ? AND request_type = ? AND hw_status IN ?",
			userID, toolModelID, models.RequestTypeDispense, models.ReservedHwStatuses).
		Pluck(models.LoanRequestTable+".tool_item_id", &reqItems).Error; err != nil {
		return 0, err
	}
	for _, id := range reqItems {
		held[id] = struct{}{}
	}

	return len(held), nil
}

// allocateToolItem picks the first available instance of a model, in stable
// ascending-id order. Available means: active, no open loan, and no
// in-flight dispense reservation (including dispensed_ok, which covers the
// window between mechanical success and loan creation).
func allocateToolItem(tx *gorm.DB, toolModelID string) (*models.ToolItem, error) {
	var candidates []models.ToolItem
	if err := lockForUpdate(tx).
		Where("tool_model_id = ? AND is_active = ?", toolModelID, true).
		Order("id ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	for i := range candidates {
		free, err := toolItemAvailable(tx, candidates[i].ID)
		if err != nil {
			return nil, err
		}
		if free {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func toolItemAvailable(tx *gorm.DB, toolItemID string) (bool, error) {
	var n int64
	if err := tx.Model(&models.Loan{}).
		Where("tool_item_id = ? AND returned_at IS NULL AND status IN ?", toolItemID, models.OpenLoanStatuses).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	if err := tx.Model(&models.LoanRequest{}).
		Where("tool_item_id = ? AND request_type = ? AND hw_status IN ?",
			toolItemID, models.RequestTypeDispense, models.ReservedHwStatuses).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n == 0, nil
}
