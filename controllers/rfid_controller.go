package controllers

import (
	"net/http"

	"toolkiosk/app"
	"toolkiosk/models"
	"toolkiosk/rfid"
	"toolkiosk/session"
)

type RfidController struct{ *Srv }

func NewRfidController(s *Srv) *RfidController { return &RfidController{Srv: s} }

// AuthCard resolves a scanned card to a user and opens a kiosk session.
func (rc *RfidController) AuthCard(c *app.Ctx) {
	var in struct {
		CardID   string `json:"card_id" binding:"required"`
		ReaderID string `json:"reader_id"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}

	u, err := rc.Repo.FindUserByCard(c.Request.Context(), in.CardID)
	if err != nil {
		c.JSON(httpStatusFor(err), app.H{"error": err.Error()})
		return
	}

	sid := models.NewID("sess")
	if err := rc.Sessions.Create(c.Request.Context(), sid, session.CardSession{
		UserID:   u.ID,
		Role:     u.Role,
		ReaderID: in.ReaderID,
	}); err != nil {
		rc.Log.Errorw("session create", "err", err)
		c.JSON(http.StatusInternalServerError, app.H{"error": "session_unavailable"})
		return
	}

	c.JSON(http.StatusOK, app.H{
		"session_id": sid,
		"user_id":    u.ID,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"role":       u.Role,
	})
}

// Whoami resolves an open kiosk session back to its user, for the UI to
// restore state after a page reload.
func (rc *RfidController) Whoami(c *app.Ctx) {
	cs, err := rc.Sessions.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "session_expired"})
		return
	}
	c.JSON(http.StatusOK, cs)
}

// Logout drops the kiosk session. Idempotent; logging out twice is fine.
func (rc *RfidController) Logout(c *app.Ctx) {
	if err := rc.Sessions.Delete(c.Request.Context(), c.Param("sessionId")); err != nil {
		rc.Log.Errorw("session delete", "err", err)
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// Confirm promotes an unconfirmed loan to active after the tool's own tag
// is scanned by the borrowing user.
func (rc *RfidController) Confirm(c *app.Ctx) {
	var in struct {
		UserID    string `json:"user_id" binding:"required"`
		ToolTagID string `json:"tool_tag_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}

	loanID, err := rc.Repo.ConfirmToolReceipt(c.Request.Context(), in.UserID, in.ToolTagID)
	if err != nil {
		c.JSON(httpStatusFor(err), app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"loan_id": loanID})
}

// InboxPeek returns the latest scan for a reader, if any.
func (rc *RfidController) InboxPeek(c *app.Ctx) {
	readerID := c.Param("readerId")
	kind := c.DefaultQuery("kind", rfid.KindCard)
	if kind != rfid.KindCard && kind != rfid.KindTool {
		c.JSON(http.StatusBadRequest, app.H{"error": "kind must be card or tool"})
		return
	}
	scan, ok := rc.Inbox.Peek(readerID, kind)
	if !ok {
		c.JSON(http.StatusOK, app.H{"scan": nil})
		return
	}
	c.JSON(http.StatusOK, app.H{"scan": scan})
}

// InboxClear drops the latest scan so the next poll starts fresh.
func (rc *RfidController) InboxClear(c *app.Ctx) {
	readerID := c.Param("readerId")
	kind := c.DefaultQuery("kind", rfid.KindCard)
	rc.Inbox.Clear(readerID, kind)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
