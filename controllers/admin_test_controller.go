package controllers

import (
	"net/http"
	"time"

	"toolkiosk/app"
	"toolkiosk/bus"
	"toolkiosk/diag"
	"toolkiosk/models"
)

type AdminTestController struct{ *Srv }

func NewAdminTestController(s *Srv) *AdminTestController { return &AdminTestController{Srv: s} }

// Start publishes a motor test command and seeds the diag store so the
// status endpoint answers even before the first stage event arrives.
func (ac *AdminTestController) Start(c *app.Ctx) {
	var in struct {
		MotorID *int   `json:"motor_id" binding:"required"`
		Action  string `json:"action"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.Action == "" {
		in.Action = "dispense"
	}
	if in.Action != "dispense" && in.Action != "return" {
		c.JSON(http.StatusBadRequest, app.H{"error": "action must be dispense or return"})
		return
	}

	rid := models.NewID("test")
	ac.Diag.Apply(rid, diag.Status{
		MotorID: in.MotorID,
		Action:  in.Action,
		Stage:   "pending",
	})
	ac.Bus.Publish(bus.TopicCmdAdminTest, bus.AdminTestCmdMsg{
		RequestID: rid,
		MotorID:   *in.MotorID,
		Action:    in.Action,
		TS:        time.Now().UTC().Format(time.RFC3339),
	})
	c.JSON(http.StatusAccepted, app.H{"request_id": rid})
}

// Status reports the merged stage view of one motor test.
func (ac *AdminTestController) Status(c *app.Ctx) {
	rid := c.Param("requestId")
	st, ok := ac.Diag.Get(rid)
	if !ok {
		c.JSON(http.StatusNotFound, app.H{"error": "unknown request_id"})
		return
	}
	c.JSON(http.StatusOK, st)
}
