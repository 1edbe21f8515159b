package controllers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"toolkiosk/app"
	"toolkiosk/bus"
	"toolkiosk/db"
	"toolkiosk/diag"
	"toolkiosk/rfid"
	"toolkiosk/session"
)

// Srv 聚合各控制器共享的依赖
type Srv struct {
	Repo     *db.Repo
	Bus      bus.Publisher
	Sessions *session.CardSessionStore
	Inbox    *rfid.Inbox
	Diag     *diag.Store
	Log      *zap.SugaredLogger
}

func NewSrv(a *app.App, inbox *rfid.Inbox, diagStore *diag.Store) *Srv {
	return &Srv{
		Repo:     db.NewRepo(a.DB),
		Bus:      a.Bus,
		Sessions: a.CardSessions(),
		Inbox:    inbox,
		Diag:     diagStore,
		Log:      a.Log,
	}
}

// httpStatusFor maps repo validation errors onto HTTP statuses. Allocation
// and policy faults are client errors; anything unrecognized is a 500.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrInvalidUser),
		errors.Is(err, db.ErrNoItems),
		errors.Is(err, db.ErrInvalidQty),
		errors.Is(err, db.ErrMissingModelID),
		errors.Is(err, db.ErrMissingItemID),
		errors.Is(err, db.ErrInvalidLoan),
		errors.Is(err, db.ErrInvalidToolItem),
		errors.Is(err, db.ErrUnknownToolTag),
		errors.Is(err, db.ErrNoDispenseReq):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrUserBanned):
		return http.StatusForbidden
	case errors.Is(err, db.ErrCardUnknown):
		return http.StatusForbidden
	case errors.Is(err, db.ErrToolLoaned):
		return http.StatusConflict
	}

	var notEnough db.NotEnoughItemsError
	var qtyCap db.QtyPolicyError
	var periodCap db.LoanPeriodError
	if errors.As(err, &notEnough) {
		return http.StatusConflict
	}
	if errors.As(err, &qtyCap) || errors.As(err, &periodCap) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
