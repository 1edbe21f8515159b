// Package events consumes bridge and RFID events off the bus and applies
// them to durable loan state. Every handler is idempotent: QoS1 replays and
// late events must not double-apply side effects.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"toolkiosk/bus"
	"toolkiosk/db"
	"toolkiosk/diag"
	"toolkiosk/rfid"
)

const applyTimeout = 10 * time.Second

type Consumer struct {
	repo  *db.Repo
	diag  *diag.Store
	inbox *rfid.Inbox
	log   *zap.SugaredLogger
}

func NewConsumer(repo *db.Repo, diagStore *diag.Store, inbox *rfid.Inbox, log *zap.SugaredLogger) *Consumer {
	return &Consumer{repo: repo, diag: diagStore, inbox: inbox, log: log}
}

// Handlers is the topic registry wired to the bus at startup.
func (c *Consumer) Handlers() map[string]bus.Handler {
	return map[string]bus.Handler{
		bus.TopicEvtDispense:     c.handleDispenseEvt,
		bus.TopicEvtReturn:       c.handleReturnEvt,
		bus.TopicEvtAdminTest:    c.handleAdminTestEvt,
		bus.TopicEvtCardScan:     c.handleCardScan,
		bus.TopicEvtToolScan:     c.handleToolScan,
		bus.TopicEvtSystemFault:  c.handleSystemFault,
		bus.TopicEvtSystemStatus: c.handleSystemStatus,
	}
}

func (c *Consumer) handleDispenseEvt(payload []byte) {
	ctx, cancel := c.ctx()
	defer cancel()
	c.audit(ctx, bus.TopicEvtDispense, payload)

	ev, ok := c.parseStage(payload)
	if !ok {
		return
	}
	err := c.repo.ApplyDispenseEvent(ctx, db.StageUpdate{
		RequestID:   ev.RequestID,
		Stage:       ev.Stage,
		ErrorCode:   ev.ErrorCode,
		ErrorReason: ev.ErrorReason,
	})
	c.report("dispense", ev.RequestID, ev.Stage, err)
}

func (c *Consumer) handleReturnEvt(payload []byte) {
	ctx, cancel := c.ctx()
	defer cancel()
	c.audit(ctx, bus.TopicEvtReturn, payload)

	ev, ok := c.parseStage(payload)
	if !ok {
		return
	}
	err := c.repo.ApplyReturnEvent(ctx, db.StageUpdate{
		RequestID:   ev.RequestID,
		Stage:       ev.Stage,
		ErrorCode:   ev.ErrorCode,
		ErrorReason: ev.ErrorReason,
	})
	c.report("return", ev.RequestID, ev.Stage, err)
}

func (c *Consumer) handleAdminTestEvt(payload []byte) {
	ctx, cancel := c.ctx()
	defer cancel()
	c.audit(ctx, bus.TopicEvtAdminTest, payload)

	var ev bus.AdminTestEventMsg
	if err := json.Unmarshal(payload, &ev); err != nil || ev.RequestID == "" || ev.Stage == "" {
		c.log.Warnw("bad admin_test event", "err", err)
		return
	}
	c.diag.Apply(ev.RequestID, diag.Status{
		MotorID:     ev.MotorID,
		Action:      ev.Action,
		Stage:       ev.Stage,
		ErrorCode:   ev.ErrorCode,
		ErrorReason: ev.ErrorReason,
	})
}

func (c *Consumer) handleCardScan(payload []byte) {
	ctx, cancel := c.ctx()
	defer cancel()
	c.audit(ctx, bus.TopicEvtCardScan, payload)
	c.stashScan(rfid.KindCard, payload)
}

func (c *Consumer) handleToolScan(payload []byte) {
	ctx, cancel := c.ctx()
	defer cancel()
	c.audit(ctx, bus.TopicEvtToolScan, payload)
	c.stashScan(rfid.KindTool, payload)
}

func (c *Consumer) handleSystemFault(payload []byte) {
	ctx, cancel := c.ctx()
	defer cancel()
	c.audit(ctx, bus.TopicEvtSystemFault, payload)
	c.log.Warnw("hardware fault reported", "payload", string(payload))
}

func (c *Consumer) handleSystemStatus(payload []byte) {
	ctx, cancel := c.ctx()
	defer cancel()
	c.audit(ctx, bus.TopicEvtSystemStatus, payload)
}

func (c *Consumer) stashScan(kind string, payload []byte) {
	var scan bus.ScanMsg
	if err := json.Unmarshal(payload, &scan); err != nil || scan.TagID == "" {
		c.log.Warnw("bad scan event", "kind", kind, "err", err)
		return
	}
	readerID := scan.ReaderID
	if readerID == "" {
		readerID = "unknown"
	}
	c.inbox.Set(rfid.Scan{
		ReaderID: readerID,
		Kind:     kind,
		TagID:    scan.TagID,
		SeenAt:   time.Now().UTC(),
	})
}

func (c *Consumer) parseStage(payload []byte) (bus.StageEventMsg, bool) {
	var ev bus.StageEventMsg
	if err := json.Unmarshal(payload, &ev); err != nil || ev.RequestID == "" || ev.Stage == "" {
		c.log.Warnw("bad stage event", "err", err)
		return ev, false
	}
	return ev, true
}

func (c *Consumer) report(kind, requestID, stage string, err error) {
	switch {
	case err == nil:
		c.log.Infow("stage applied", "kind", kind, "request_id", requestID, "stage", stage)
	case errors.Is(err, db.ErrUnknownRequest):
		// No matching loan request. Logged and ignored.
		c.log.Warnw("stage event for unknown request", "kind", kind, "request_id", requestID)
	default:
		c.log.Errorw("stage apply failed", "kind", kind, "request_id", requestID, "err", err)
	}
}

func (c *Consumer) audit(ctx context.Context, topic string, payload []byte) {
	if err := c.repo.RecordBusEvent(ctx, topic, payload); err != nil {
		c.log.Errorw("audit write failed", "topic", topic, "err", err)
	}
}

func (c *Consumer) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), applyTimeout)
}
