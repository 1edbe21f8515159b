package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"toolkiosk/app"
	"toolkiosk/controllers"
	"toolkiosk/diag"
	"toolkiosk/rfid"
)

func RegisterRoutes(r *gin.Engine, a *app.App, inbox *rfid.Inbox, diagStore *diag.Store) {
	// 控制器与依赖
	s := controllers.NewSrv(a, inbox, diagStore)
	loanCtl := controllers.NewLoanController(s)
	rfidCtl := controllers.NewRfidController(s)
	testCtl := controllers.NewAdminTestController(s)

	r.GET("/healthz", func(c *app.Ctx) {
		c.JSON(http.StatusOK, app.H{"ok": true})
	})

	api := r.Group("/api")
	{
		api.POST("/auth/card", rfidCtl.AuthCard)
		api.GET("/auth/session/:sessionId", rfidCtl.Whoami)
		api.DELETE("/auth/session/:sessionId", rfidCtl.Logout)

		api.POST("/loans/dispense", loanCtl.Dispense)
		api.POST("/loans/return", loanCtl.Return)
		api.GET("/loans/batch/:batchId", loanCtl.BatchStatus)
		api.GET("/loans/mine", loanCtl.MyLoans)

		api.POST("/rfid/confirm", rfidCtl.Confirm)
		api.GET("/rfid/inbox/:readerId", rfidCtl.InboxPeek)
		api.DELETE("/rfid/inbox/:readerId", rfidCtl.InboxClear)

		api.POST("/admin/test", testCtl.Start)
		api.GET("/admin/test/:requestId", testCtl.Status)
	}
}
