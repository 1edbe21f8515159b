// Package bridge translates bus commands into hardware operations and
// decodes the controller's asynchronous replies back into lifecycle stage
// events. It is the only owner of in-flight hardware state; everything here
// is ephemeral and a restart simply times the in-flight operations out.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"toolkiosk/bus"
	"toolkiosk/wire"
)

// Actions tracked per pending operation.
const (
	ActionDispense  = "dispense"
	ActionReturn    = "return"
	ActionAdminTest = "admin_test"
)

// Synthesized failure codes for silent hardware.
const (
	ErrCodeTimeoutAck  = "TIMEOUT_ACK"
	ErrCodeTimeoutDone = "TIMEOUT_DONE"
)

const hwFailureReason = "hardware reported failure"

// Port sends encoded commands to the hardware. Replies arrive
// asynchronously through HandleReply, regardless of which encoding the
// port speaks.
type Port interface {
	Send(c wire.Command) error
}

type Config struct {
	AckTimeout  time.Duration
	DoneTimeout time.Duration
	DedupTTL    time.Duration
}

type Bridge struct {
	cfg     Config
	pub     bus.Publisher
	log     *zap.SugaredLogger
	tracker *Tracker
	dedup   *dedupWindow

	port Port       // nil in simulation mode
	sim  *Simulator // nil when a real port is attached

	now func() time.Time
}

// New builds a bridge over a real hardware port. Exactly one of port/sim
// drives the operations; both feed replies into the same HandleReply path.
func New(cfg Config, pub bus.Publisher, port Port, log *zap.SugaredLogger) *Bridge {
	b := &Bridge{
		cfg:   cfg,
		pub:   pub,
		log:   log,
		dedup: newDedupWindow(cfg.DedupTTL),
		port:  port,
		now:   time.Now,
	}
	b.tracker = NewTracker(cfg.AckTimeout, cfg.DoneTimeout, b.ackTimedOut, b.doneTimedOut)
	return b
}

// NewSimulated builds a bridge whose hardware is the simulated responder.
func NewSimulated(cfg Config, simCfg SimConfig, pub bus.Publisher, log *zap.SugaredLogger) *Bridge {
	b := New(cfg, pub, nil, log)
	b.sim = NewSimulator(simCfg, b.HandleReply)
	return b
}

// Handlers is the command registry wired to the bus at startup.
func (b *Bridge) Handlers() map[string]bus.Handler {
	return map[string]bus.Handler{
		bus.TopicCmdDispense:  b.handleDispense,
		bus.TopicCmdReturn:    b.handleReturn,
		bus.TopicCmdAdminTest: b.handleAdminTest,
	}
}

// Close cancels all outstanding timers without emitting events.
func (b *Bridge) Close() {
	b.tracker.Clear()
}

func (b *Bridge) handleDispense(payload []byte) { b.handleLoanCmd(ActionDispense, payload) }
func (b *Bridge) handleReturn(payload []byte)   { b.handleLoanCmd(ActionReturn, payload) }

func (b *Bridge) handleLoanCmd(action string, payload []byte) {
	var cmd bus.CommandMsg
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.log.Warnw("bad command payload", "action", action, "err", err)
		return
	}
	if cmd.RequestID == "" || cmd.SlotID == "" {
		b.log.Warnw("command missing request_id/slot_id", "action", action)
		return
	}
	if b.dedup.Seen(cmd.RequestID) {
		b.log.Infow("duplicate command ignored", "action", action, "request_id", cmd.RequestID)
		return
	}

	b.publishStage(action, cmd.RequestID, bus.StageAccepted, "", "")
	b.tracker.Start(action, cmd.RequestID)

	if b.sim != nil {
		b.sim.Run(action, cmd.RequestID)
		return
	}
	b.send(wire.Command{Verb: verbFor(action), RequestID: cmd.RequestID, Arg: cmd.SlotID})
}

func (b *Bridge) handleAdminTest(payload []byte) {
	var cmd bus.AdminTestCmdMsg
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.log.Warnw("bad admin_test payload", "err", err)
		return
	}
	if cmd.RequestID == "" || (cmd.Action != ActionDispense && cmd.Action != ActionReturn) {
		b.log.Warnw("admin_test missing request_id/action", "request_id", cmd.RequestID)
		return
	}
	if b.dedup.Seen(cmd.RequestID) {
		b.log.Infow("duplicate admin_test ignored", "request_id", cmd.RequestID)
		return
	}

	motorID := cmd.MotorID
	b.pub.Publish(bus.TopicEvtAdminTest, bus.AdminTestEventMsg{
		RequestID: cmd.RequestID,
		MotorID:   &motorID,
		Action:    cmd.Action,
		Stage:     bus.StageAccepted,
		TS:        b.ts(),
	})

	// Tracked as admin_test so replies and timeouts route to the
	// diagnostic topic instead of loan bookkeeping.
	b.tracker.Start(ActionAdminTest, cmd.RequestID)

	if b.sim != nil {
		b.sim.Run(cmd.Action, cmd.RequestID)
		return
	}
	b.send(wire.Command{
		Verb:      verbFor(cmd.Action),
		RequestID: cmd.RequestID,
		Arg:       fmt.Sprintf("%d", cmd.MotorID),
	})
}

// HandleReply is the single entry point for decoded hardware replies, from
// the serial reader and the simulator alike.
func (b *Bridge) HandleReply(r wire.Reply) {
	switch {
	case r.Tag == wire.TagAck:
		action, ok := b.tracker.MarkAcked(r.RequestID)
		if !ok {
			return
		}
		b.publishStage(action, r.RequestID, bus.StageInProgress, "", "")

	case r.Terminal():
		action, ok := b.tracker.Finish(r.RequestID)
		if !ok {
			// Late or duplicate terminal: the first transition already
			// removed the entry, so this publishes nothing.
			b.log.Debugw("terminal reply for unknown request", "tag", r.Tag, "request_id", r.RequestID)
			return
		}
		errCode := r.ErrCode
		if !r.OK() && errCode == "" {
			errCode = "UNKNOWN"
		}
		if r.OK() {
			b.publishStage(action, r.RequestID, bus.StageSucceeded, "", "")
		} else {
			b.publishStage(action, r.RequestID, bus.StageFailed, errCode, hwFailureReason)
		}

	default:
		b.log.Debugw("unrecognized reply tag", "tag", r.Tag)
	}
}

func (b *Bridge) ackTimedOut(action, requestID string) {
	b.publishStage(action, requestID, bus.StageFailed, ErrCodeTimeoutAck,
		fmt.Sprintf("no ACK within %dms", b.cfg.AckTimeout.Milliseconds()))
}

func (b *Bridge) doneTimedOut(action, requestID string) {
	b.publishStage(action, requestID, bus.StageFailed, ErrCodeTimeoutDone,
		fmt.Sprintf("no completion within %dms", b.cfg.DoneTimeout.Milliseconds()))
}

func (b *Bridge) publishStage(action, requestID, stage, errCode, errReason string) {
	var code, reason *string
	if errCode != "" {
		code = &errCode
	}
	if errReason != "" {
		reason = &errReason
	}

	if action == ActionAdminTest {
		b.pub.Publish(bus.TopicEvtAdminTest, bus.AdminTestEventMsg{
			RequestID:   requestID,
			Stage:       stage,
			ErrorCode:   code,
			ErrorReason: reason,
			TS:          b.ts(),
		})
		return
	}

	b.pub.Publish(evtTopicFor(action), bus.StageEventMsg{
		RequestID:   requestID,
		Event:       action + "_status",
		Stage:       stage,
		ErrorCode:   code,
		ErrorReason: reason,
		TS:          b.ts(),
	})
}

func (b *Bridge) send(c wire.Command) {
	if b.port == nil {
		b.log.Errorw("no hardware port attached", "verb", c.Verb, "request_id", c.RequestID)
		return
	}
	if err := b.port.Send(c); err != nil {
		b.log.Errorw("hardware write failed", "verb", c.Verb, "request_id", c.RequestID, "err", err)
	}
}

func (b *Bridge) ts() string {
	return b.now().UTC().Format("2006-01-02T15:04:05Z")
}

func verbFor(action string) string {
	if action == ActionReturn {
		return wire.VerbReturn
	}
	return wire.VerbDispense
}

func evtTopicFor(action string) string {
	switch action {
	case ActionReturn:
		return bus.TopicEvtReturn
	case ActionAdminTest:
		return bus.TopicEvtAdminTest
	default:
		return bus.TopicEvtDispense
	}
}
