package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolkiosk/bus"
	"toolkiosk/wire"
)

type published struct {
	topic string
	msg   any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(topic string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, msg: v})
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func (p *fakePublisher) stages(topic string) []bus.StageEventMsg {
	var out []bus.StageEventMsg
	for _, m := range p.all() {
		if m.topic != topic {
			continue
		}
		if ev, ok := m.msg.(bus.StageEventMsg); ok {
			out = append(out, ev)
		}
	}
	return out
}

type fakePort struct {
	mu   sync.Mutex
	sent []wire.Command
}

func (p *fakePort) Send(c wire.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, c)
	return nil
}

func (p *fakePort) all() []wire.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.Command(nil), p.sent...)
}

func testConfig() Config {
	return Config{
		AckTimeout:  time.Minute,
		DoneTimeout: time.Minute,
		DedupTTL:    time.Minute,
	}
}

func newTestBridge(t *testing.T) (*Bridge, *fakePublisher, *fakePort) {
	t.Helper()
	pub := &fakePublisher{}
	port := &fakePort{}
	b := New(testConfig(), pub, port, zap.NewNop().Sugar())
	t.Cleanup(b.Close)
	return b, pub, port
}

func dispensePayload(t *testing.T, rid, slot string) []byte {
	t.Helper()
	raw, err := json.Marshal(bus.CommandMsg{RequestID: rid, Action: "dispense", SlotID: slot})
	require.NoError(t, err)
	return raw
}

func TestDispenseCommandAcceptedAndSent(t *testing.T) {
	b, pub, port := newTestBridge(t)

	b.handleDispense(dispensePayload(t, "r1", "A3"))

	stages := pub.stages(bus.TopicEvtDispense)
	require.Len(t, stages, 1)
	assert.Equal(t, bus.StageAccepted, stages[0].Stage)
	assert.Equal(t, "dispense_status", stages[0].Event)

	sent := port.all()
	require.Len(t, sent, 1)
	assert.Equal(t, wire.Command{Verb: wire.VerbDispense, RequestID: "r1", Arg: "A3"}, sent[0])
	assert.Equal(t, 1, b.tracker.Len())
}

func TestDuplicateCommandIgnored(t *testing.T) {
	b, pub, port := newTestBridge(t)

	b.handleDispense(dispensePayload(t, "r1", "A3"))
	b.handleDispense(dispensePayload(t, "r1", "A3"))

	assert.Len(t, pub.stages(bus.TopicEvtDispense), 1)
	assert.Len(t, port.all(), 1)
}

func TestMalformedCommandDropped(t *testing.T) {
	b, pub, port := newTestBridge(t)

	b.handleDispense([]byte("not json"))
	b.handleDispense([]byte(`{"request_id":"r1"}`)) // missing slot
	b.handleDispense([]byte(`{"slot_id":"A3"}`))    // missing request id
	b.handleReturn([]byte(`{"request_id":"","slot_id":""}`))

	assert.Empty(t, pub.all())
	assert.Empty(t, port.all())
}

func TestReplyLifecycle(t *testing.T) {
	b, pub, _ := newTestBridge(t)

	b.handleDispense(dispensePayload(t, "r1", "A3"))
	b.HandleReply(wire.Reply{Tag: wire.TagAck, RequestID: "r1"})
	b.HandleReply(wire.Reply{Tag: wire.TagDispenseOK, RequestID: "r1"})

	stages := pub.stages(bus.TopicEvtDispense)
	require.Len(t, stages, 3)
	assert.Equal(t, bus.StageAccepted, stages[0].Stage)
	assert.Equal(t, bus.StageInProgress, stages[1].Stage)
	assert.Equal(t, bus.StageSucceeded, stages[2].Stage)
	assert.Equal(t, 0, b.tracker.Len())
}

func TestDuplicateTerminalPublishesOnce(t *testing.T) {
	b, pub, _ := newTestBridge(t)

	b.handleDispense(dispensePayload(t, "r1", "A3"))
	b.HandleReply(wire.Reply{Tag: wire.TagDispenseOK, RequestID: "r1"})
	b.HandleReply(wire.Reply{Tag: wire.TagDispenseOK, RequestID: "r1"})

	stages := pub.stages(bus.TopicEvtDispense)
	require.Len(t, stages, 2) // accepted + one succeeded
	assert.Equal(t, bus.StageSucceeded, stages[1].Stage)
}

func TestUnknownRequestTerminalPublishesNothing(t *testing.T) {
	b, pub, _ := newTestBridge(t)

	b.HandleReply(wire.Reply{Tag: wire.TagDispenseOK, RequestID: "ghost"})
	b.HandleReply(wire.Reply{Tag: wire.TagAck, RequestID: "ghost"})

	assert.Empty(t, pub.all())
}

func TestFailureReplyCarriesCodeAndReason(t *testing.T) {
	b, pub, _ := newTestBridge(t)

	b.handleDispense(dispensePayload(t, "r1", "A3"))
	b.HandleReply(wire.Reply{Tag: wire.TagDispenseFail, RequestID: "r1", ErrCode: "JAM_GANTRY"})

	stages := pub.stages(bus.TopicEvtDispense)
	require.Len(t, stages, 2)
	failed := stages[1]
	assert.Equal(t, bus.StageFailed, failed.Stage)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, "JAM_GANTRY", *failed.ErrorCode)
	require.NotNil(t, failed.ErrorReason)
	assert.Equal(t, "hardware reported failure", *failed.ErrorReason)
}

func TestFailureReplyWithoutCodeGetsUnknown(t *testing.T) {
	b, pub, _ := newTestBridge(t)

	b.handleDispense(dispensePayload(t, "r1", "A3"))
	b.HandleReply(wire.Reply{Tag: wire.TagDispenseFail, RequestID: "r1"})

	stages := pub.stages(bus.TopicEvtDispense)
	require.Len(t, stages, 2)
	require.NotNil(t, stages[1].ErrorCode)
	assert.Equal(t, "UNKNOWN", *stages[1].ErrorCode)
}

func TestAckTimeoutSynthesizesFailure(t *testing.T) {
	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.AckTimeout = 20 * time.Millisecond
	b := New(cfg, pub, &fakePort{}, zap.NewNop().Sugar())
	defer b.Close()

	b.handleDispense(dispensePayload(t, "r1", "A3"))

	require.Eventually(t, func() bool {
		return len(pub.stages(bus.TopicEvtDispense)) == 2
	}, time.Second, 5*time.Millisecond)

	failed := pub.stages(bus.TopicEvtDispense)[1]
	assert.Equal(t, bus.StageFailed, failed.Stage)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, ErrCodeTimeoutAck, *failed.ErrorCode)

	// A late terminal after the timeout must publish nothing more.
	b.HandleReply(wire.Reply{Tag: wire.TagDispenseOK, RequestID: "r1"})
	assert.Len(t, pub.stages(bus.TopicEvtDispense), 2)
}

func TestDoneTimeoutSynthesizesFailure(t *testing.T) {
	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.DoneTimeout = 30 * time.Millisecond
	b := New(cfg, pub, &fakePort{}, zap.NewNop().Sugar())
	defer b.Close()

	b.handleDispense(dispensePayload(t, "r1", "A3"))
	b.HandleReply(wire.Reply{Tag: wire.TagAck, RequestID: "r1"})

	require.Eventually(t, func() bool {
		return len(pub.stages(bus.TopicEvtDispense)) == 3
	}, time.Second, 5*time.Millisecond)

	failed := pub.stages(bus.TopicEvtDispense)[2]
	assert.Equal(t, bus.StageFailed, failed.Stage)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, ErrCodeTimeoutDone, *failed.ErrorCode)
}

func TestAdminTestRoutesToDiagnosticTopic(t *testing.T) {
	b, pub, port := newTestBridge(t)

	raw, err := json.Marshal(bus.AdminTestCmdMsg{RequestID: "t1", MotorID: 7, Action: "dispense"})
	require.NoError(t, err)
	b.handleAdminTest(raw)
	b.HandleReply(wire.Reply{Tag: wire.TagAck, RequestID: "t1"})
	b.HandleReply(wire.Reply{Tag: wire.TagDispenseOK, RequestID: "t1"})

	var evts []bus.AdminTestEventMsg
	for _, m := range pub.all() {
		require.Equal(t, bus.TopicEvtAdminTest, m.topic, "admin test must never hit loan topics")
		evts = append(evts, m.msg.(bus.AdminTestEventMsg))
	}
	require.Len(t, evts, 3)
	assert.Equal(t, bus.StageAccepted, evts[0].Stage)
	require.NotNil(t, evts[0].MotorID)
	assert.Equal(t, 7, *evts[0].MotorID)
	assert.Equal(t, bus.StageInProgress, evts[1].Stage)
	assert.Equal(t, bus.StageSucceeded, evts[2].Stage)

	sent := port.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "7", sent[0].Arg)
}

func TestSimulatedDispenseSucceeds(t *testing.T) {
	pub := &fakePublisher{}
	b := NewSimulated(testConfig(), SimConfig{
		FailRate: 0,
		MinCycle: time.Millisecond,
		MaxCycle: 5 * time.Millisecond,
		AckDelay: time.Millisecond,
	}, pub, zap.NewNop().Sugar())
	defer b.Close()

	b.handleDispense(dispensePayload(t, "r1", "A3"))

	require.Eventually(t, func() bool {
		stages := pub.stages(bus.TopicEvtDispense)
		return len(stages) == 3 && stages[2].Stage == bus.StageSucceeded
	}, time.Second, 5*time.Millisecond)
}

func TestSimulatedDispenseFailsWithKnownCode(t *testing.T) {
	pub := &fakePublisher{}
	b := NewSimulated(testConfig(), SimConfig{
		FailRate: 1,
		MinCycle: time.Millisecond,
		MaxCycle: 5 * time.Millisecond,
		AckDelay: time.Millisecond,
	}, pub, zap.NewNop().Sugar())
	defer b.Close()

	b.handleDispense(dispensePayload(t, "r1", "A3"))

	require.Eventually(t, func() bool {
		stages := pub.stages(bus.TopicEvtDispense)
		return len(stages) == 3 && stages[2].Stage == bus.StageFailed
	}, time.Second, 5*time.Millisecond)

	failed := pub.stages(bus.TopicEvtDispense)[2]
	require.NotNil(t, failed.ErrorCode)
	assert.Contains(t, simFailureCodes, *failed.ErrorCode)
}

func TestSimulatorCycleTimeDeterministic(t *testing.T) {
	s := NewSimulator(SimConfig{MinCycle: 400 * time.Millisecond, MaxCycle: 1500 * time.Millisecond}, nil)

	a := s.cycleTime("batch_x_item_1")
	b := s.cycleTime("batch_x_item_1")
	assert.Equal(t, a, b, "same request id, same cycle time")
	assert.GreaterOrEqual(t, a, 400*time.Millisecond)
	assert.Less(t, a, 1500*time.Millisecond)
}
