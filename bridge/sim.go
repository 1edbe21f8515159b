package bridge

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"toolkiosk/wire"
)

// Failure codes the hardware is known to report.
var simFailureCodes = []string{"JAM_GANTRY", "ENC_MISMATCH", "SENSOR_FAIL", "BUSY"}

type SimConfig struct {
	FailRate float64
	MinCycle time.Duration
	MaxCycle time.Duration
	AckDelay time.Duration
}

// Simulator synthesizes controller replies for environments without
// attached hardware. Replies re-enter the bridge through the same path as
// real serial input, so the two modes cannot diverge in behavior. The cycle
// time is derived from the request id, which keeps repeated test runs
// reproducible.
type Simulator struct {
	cfg     SimConfig
	deliver func(wire.Reply)

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(cfg SimConfig, deliver func(wire.Reply)) *Simulator {
	return &Simulator{
		cfg:     cfg,
		deliver: deliver,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run plays one full hardware cycle for the request in the background:
// ACK after a fixed delay, then OK or FAIL after the derived cycle time.
func (s *Simulator) Run(action, requestID string) {
	go func() {
		time.Sleep(s.cfg.AckDelay)
		s.deliver(wire.Reply{Tag: wire.TagAck, RequestID: requestID})

		time.Sleep(s.cycleTime(requestID))

		okTag, failTag := wire.TagDispenseOK, wire.TagDispenseFail
		if action == ActionReturn {
			okTag, failTag = wire.TagReturnOK, wire.TagReturnFail
		}
		if s.roll() {
			s.deliver(wire.Reply{Tag: okTag, RequestID: requestID})
			return
		}
		s.deliver(wire.Reply{Tag: failTag, RequestID: requestID, ErrCode: s.failureCode()})
	}()
}

// cycleTime maps the request id onto [MinCycle, MaxCycle] deterministically.
func (s *Simulator) cycleTime(requestID string) time.Duration {
	h := fnv.New32a()
	h.Write([]byte(requestID))
	frac := float64(h.Sum32()%1000) / 1000.0
	return s.cfg.MinCycle + time.Duration(frac*float64(s.cfg.MaxCycle-s.cfg.MinCycle))
}

func (s *Simulator) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() >= s.cfg.FailRate
}

func (s *Simulator) failureCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return simFailureCodes[s.rng.Intn(len(simFailureCodes))]
}
