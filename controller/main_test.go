package controller

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/widdakay/fan-controller/common"
	"github.com/widdakay/fan-controller/db"
	"github.com/widdakay/fan-controller/global"
	"github.com/widdakay/fan-controller/pkg/custype"
	"github.com/widdakay/fan-controller/telemetry"
)

func TestMain(m *testing.M) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	global.Init("../config.test.json")
	logger = zap.L()

	dir, err := os.MkdirTemp("", "fanctl")
	if err != nil {
		log.Fatal(err)
	}
	db.Init(filepath.Join(dir, "node.db"))

	nodeInfo = common.NodeInfoStruct{
		Identifier:  global.Config.Identifier,
		Session:     uuid.New(),
		ChipId:      "ab54c01fe2d3",
		Firmware:    global.FirmwareVersion,
		HealthItems: []string{"motor_temp_c", "rail_3v3"},
		HasFan:      true,
	}
	healthItems = []healthItem{
		{name: "motor_temp_c", read: readerFor("motor_temp_c")},
		{name: "rail_3v3", read: readerFor("rail_3v3")},
	}
	batch = telemetry.NewBatch(global.Config.Identifier, nodeInfo.ChipId, &captureSender{}, global.UptimeMs)

	rc := m.Run()
	db.Close()
	_ = os.RemoveAll(dir)
	os.Exit(rc)
}

// healthReadings backs the fixture health items; tests point entries at a
// value or nil to fake a pass.
var healthReadings = map[string]*float64{}

func readerFor(name string) func() *float64 {
	return func() *float64 { return healthReadings[name] }
}

// captureSender keeps flushed payloads for assertions.
type captureSender struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
}

func (s *captureSender) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("ingest unavailable")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.payloads = append(s.payloads, cp)
	return nil
}

func (s *captureSender) take() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.payloads
	s.payloads = nil
	return out
}

// fakeFan mirrors the bridge semantics without pins: direction changes zero
// the duty, stop wins over everything.
type fakeFan struct {
	mu       sync.Mutex
	duty     float64
	forward  bool
	enA, enB bool
	closed   bool
}

func (f *fakeFan) SetPower(power float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if power < 0 {
		power = 0
	} else if power > 1 {
		power = 1
	}
	f.duty = power
	return nil
}

func (f *fakeFan) SetDirection(forward bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if forward != f.forward {
		f.duty = 0
		f.forward = forward
	}
	return nil
}

func (f *fakeFan) EmergencyStop() error {
	return f.SetPower(0)
}

func (f *fakeFan) Apply(cmd common.FanCommandStruct) error {
	if cmd.Stop {
		return f.EmergencyStop()
	}
	if cmd.Forward != nil {
		if err := f.SetDirection(*cmd.Forward); err != nil {
			return err
		}
	}
	if cmd.Power != nil {
		return f.SetPower(*cmd.Power)
	}
	return nil
}

func (f *fakeFan) Duty() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duty
}

func (f *fakeFan) Status() common.FanStatusStruct {
	f.mu.Lock()
	defer f.mu.Unlock()
	return common.FanStatusStruct{
		Duty:        f.duty,
		Forward:     f.forward,
		EnA:         f.enA,
		EnB:         f.enB,
		Fault:       !f.enA || !f.enB,
		Millisecond: custype.ToTimeMillisecond(time.Now()),
	}
}

func (f *fakeFan) Close() { f.closed = true }

// stubInstrument is a minimal sensor.Instance for pass tests.
type stubInstrument struct {
	kind        string
	measurement string
	busId       uint8
	addr        uint16
	fail        bool
	reads       int
}

func (s *stubInstrument) Kind() string           { return s.kind }
func (s *stubInstrument) Measurement() string    { return s.measurement }
func (s *stubInstrument) BusID() uint8           { return s.busId }
func (s *stubInstrument) Address() uint16        { return s.addr }
func (s *stubInstrument) Serial() (uint64, bool) { return 0, false }
func (s *stubInstrument) Connected() bool        { return !s.fail }

func (s *stubInstrument) ReadRecord() (telemetry.Record, error) {
	s.reads++
	if s.fail {
		return telemetry.Record{}, errors.New("no ack")
	}
	rec := telemetry.Record{Measurement: s.measurement}
	rec.Fields.Float("temp_c", 21.5)
	return rec, nil
}
