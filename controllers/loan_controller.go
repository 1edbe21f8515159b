package controllers

import (
	"net/http"
	"time"

	"toolkiosk/app"
	"toolkiosk/bus"
	"toolkiosk/db"
)

type LoanController struct{ *Srv }

func NewLoanController(s *Srv) *LoanController { return &LoanController{Srv: s} }

// Dispense creates a dispense batch (reserving tool items atomically) and
// publishes one hardware command per allocated request.
func (lc *LoanController) Dispense(c *app.Ctx) {
	var in struct {
		UserID          string         `json:"user_id" binding:"required"`
		Items           []db.BatchLine `json:"items" binding:"required"`
		LoanPeriodHours int            `json:"loan_period_hours"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.LoanPeriodHours <= 0 {
		in.LoanPeriodHours = 24
	}

	out, err := lc.Repo.CreateDispenseBatch(c.Request.Context(), in.UserID, in.Items, in.LoanPeriodHours)
	if err != nil {
		c.JSON(httpStatusFor(err), app.H{"error": err.Error()})
		return
	}

	lc.publishCommands(c, bus.TopicCmdDispense, out.RequestIDs)
	c.JSON(http.StatusCreated, out)
}

// Return creates a return batch and publishes the hardware commands.
func (lc *LoanController) Return(c *app.Ctx) {
	var in struct {
		UserID string   `json:"user_id" binding:"required"`
		Items  []string `json:"tool_item_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}

	out, err := lc.Repo.CreateReturnBatch(c.Request.Context(), in.UserID, in.Items)
	if err != nil {
		c.JSON(httpStatusFor(err), app.H{"error": err.Error()})
		return
	}

	lc.publishCommands(c, bus.TopicCmdReturn, out.RequestIDs)
	c.JSON(http.StatusCreated, out)
}

func (lc *LoanController) publishCommands(c *app.Ctx, topic string, requestIDs []string) {
	for _, rid := range requestIDs {
		req, err := lc.Repo.FindRequest(c.Request.Context(), rid)
		if err != nil {
			lc.Log.Errorw("load request for publish", "request_id", rid, "err", err)
			continue
		}
		lc.Bus.Publish(topic, bus.CommandMsg{
			RequestID:       req.RequestID,
			Action:          req.RequestType,
			UserID:          req.UserID,
			ToolItemID:      req.ToolItemID,
			SlotID:          req.SlotID,
			LoanPeriodHours: req.LoanPeriodHours,
			TS:              req.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

// BatchStatus returns the hardware status of every request in a batch.
func (lc *LoanController) BatchStatus(c *app.Ctx) {
	batchID := c.Param("batchId")
	rows, err := lc.Repo.BatchStatus(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"batch_id": batchID, "items": rows})
}

// MyLoans lists the caller's open loans.
func (lc *LoanController) MyLoans(c *app.Ctx) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing userId"})
		return
	}
	rows, err := lc.Repo.ListActiveLoans(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []db.ActiveLoanRow{}
	}
	c.JSON(http.StatusOK, app.H{"user_id": userID, "loans": rows})
}
