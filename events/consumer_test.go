package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"toolkiosk/bus"
	"toolkiosk/db"
	"toolkiosk/diag"
	"toolkiosk/models"
	"toolkiosk/rfid"
)

type fixture struct {
	repo  *db.Repo
	diag  *diag.Store
	inbox *rfid.Inbox
	c     *Consumer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	f := &fixture{
		repo:  db.NewRepo(conn),
		diag:  diag.NewStore(),
		inbox: rfid.NewInbox(),
	}
	f.c = NewConsumer(f.repo, f.diag, f.inbox, zap.NewNop().Sugar())
	return f
}

func (f *fixture) seedDispenseRequest(t *testing.T) string {
	t.Helper()
	card := "card_u1"
	require.NoError(t, f.repo.DB.Create(&models.User{ID: "u1", CardID: &card, Status: models.UserStatusGood}).Error)
	require.NoError(t, f.repo.DB.Create(&models.ToolModel{ID: "m1", Name: "Driver"}).Error)
	require.NoError(t, f.repo.DB.Create(&models.ToolItem{
		ID: "i1", ToolModelID: "m1", ToolTagID: "tag_i1", SlotID: "A1", Condition: "ok", IsActive: true,
	}).Error)

	out, err := f.repo.CreateDispenseBatch(context.Background(), "u1",
		[]db.BatchLine{{ToolModelID: "m1", Qty: 1}}, 24)
	require.NoError(t, err)
	return out.RequestIDs[0]
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestDispenseEventAppliedAndAudited(t *testing.T) {
	f := newFixture(t)
	rid := f.seedDispenseRequest(t)

	f.c.handleDispenseEvt(marshal(t, bus.StageEventMsg{
		RequestID: rid, Event: "dispense_status", Stage: bus.StageSucceeded,
	}))

	req, err := f.repo.FindRequest(context.Background(), rid)
	require.NoError(t, err)
	assert.Equal(t, models.HwDispensedOK, req.HwStatus)

	var n int64
	require.NoError(t, f.repo.DB.Model(&models.Event{}).
		Where("event_type = ?", "mqtt:"+bus.TopicEvtDispense).Count(&n).Error)
	assert.EqualValues(t, 1, n, "raw payload is audited before applying")
}

func TestUnknownRequestEventIsIgnored(t *testing.T) {
	f := newFixture(t)

	// Must not panic or write loan state; the audit row still lands.
	f.c.handleDispenseEvt(marshal(t, bus.StageEventMsg{RequestID: "ghost", Stage: bus.StageSucceeded}))

	var n int64
	require.NoError(t, f.repo.DB.Model(&models.Loan{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestMalformedEventDropped(t *testing.T) {
	f := newFixture(t)
	rid := f.seedDispenseRequest(t)

	f.c.handleDispenseEvt([]byte("not json"))
	f.c.handleDispenseEvt(marshal(t, bus.StageEventMsg{RequestID: rid})) // no stage

	req, err := f.repo.FindRequest(context.Background(), rid)
	require.NoError(t, err)
	assert.Equal(t, models.HwPending, req.HwStatus)
}

func TestAdminTestEventUpdatesDiag(t *testing.T) {
	f := newFixture(t)
	motor := 5

	f.c.handleAdminTestEvt(marshal(t, bus.AdminTestEventMsg{
		RequestID: "t1", MotorID: &motor, Action: "dispense", Stage: bus.StageAccepted,
	}))
	f.c.handleAdminTestEvt(marshal(t, bus.AdminTestEventMsg{
		RequestID: "t1", Stage: bus.StageSucceeded,
	}))

	st, ok := f.diag.Get("t1")
	require.True(t, ok)
	assert.Equal(t, bus.StageSucceeded, st.Stage)
	require.NotNil(t, st.MotorID)
	assert.Equal(t, 5, *st.MotorID)
}

func TestScanEventsLandInInbox(t *testing.T) {
	f := newFixture(t)

	f.c.handleCardScan(marshal(t, bus.ScanMsg{ReaderID: "reader1", TagID: "card_abc"}))
	f.c.handleToolScan(marshal(t, bus.ScanMsg{TagID: "tag_i1"})) // reader omitted

	scan, ok := f.inbox.Peek("reader1", rfid.KindCard)
	require.True(t, ok)
	assert.Equal(t, "card_abc", scan.TagID)

	scan, ok = f.inbox.Peek("unknown", rfid.KindTool)
	require.True(t, ok, "missing reader id falls back to the unknown bucket")
	assert.Equal(t, "tag_i1", scan.TagID)

	// Tagless scans are noise.
	f.c.handleCardScan(marshal(t, bus.ScanMsg{ReaderID: "reader2"}))
	_, ok = f.inbox.Peek("reader2", rfid.KindCard)
	assert.False(t, ok)
}
