package sensor

import (
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/widdakay/fan-controller/telemetry"
)

// AHT20 humidity/temperature sensor. Uncalibrated parts get the init command
// once; a part that still reports uncalibrated afterwards is not an AHT20.
const (
	aht20CmdStatus  = 0x71
	aht20StatusBusy = 0x80
	aht20StatusCal  = 0x08

	aht20InitWait    = 40 * time.Millisecond
	aht20MeasureWait = 80 * time.Millisecond
	aht20PollWait    = 10 * time.Millisecond
	aht20Deadline    = 200 * time.Millisecond
)

var (
	aht20CmdInit    = []byte{0xbe, 0x08, 0x00}
	aht20CmdMeasure = []byte{0xac, 0x33, 0x00}
)

type aht20 struct {
	identity
	dev i2c.Dev
}

func NewAht20(bus Bus, addr uint16) (Instance, error) {
	d := i2c.Dev{Bus: bus, Addr: addr}
	status, err := aht20Status(d)
	if err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{aht20CmdStatus}, Err: err}
	}
	if status&aht20StatusCal == 0 {
		if err = d.Tx(aht20CmdInit, nil); err != nil {
			return nil, &Error{Kind: ErrNotInitialized, Send: aht20CmdInit, Err: err}
		}
		time.Sleep(aht20InitWait)
		if status, err = aht20Status(d); err != nil {
			return nil, &Error{Kind: ErrNotInitialized, Send: []byte{aht20CmdStatus}, Err: err}
		}
		if status&aht20StatusCal == 0 {
			return nil, &Error{Kind: ErrInvalidData, Received: []byte{status}, Err: errNotThisPart}
		}
	}
	return &aht20{
		identity: identity{kind: "aht20", measurement: "aht20", busId: bus.BusID(), addr: addr},
		dev:      d,
	}, nil
}

func aht20Status(d i2c.Dev) (byte, error) {
	var st [1]byte
	if err := d.Tx([]byte{aht20CmdStatus}, st[:]); err != nil {
		return 0, err
	}
	return st[0], nil
}

func (a *aht20) Connected() bool {
	_, err := aht20Status(a.dev)
	return err == nil
}

func (a *aht20) ReadRecord() (telemetry.Record, error) {
	if err := a.dev.Tx(aht20CmdMeasure, nil); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: aht20CmdMeasure, Err: err}
	}
	time.Sleep(aht20MeasureWait)
	deadline := time.Now().Add(aht20Deadline)
	for {
		st, err := aht20Status(a.dev)
		if err != nil {
			return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: []byte{aht20CmdStatus}, Err: err}
		}
		if st&aht20StatusBusy == 0 {
			break
		}
		if time.Now().After(deadline) {
			return telemetry.Record{}, &Error{Kind: ErrTimeout, Received: []byte{st}}
		}
		time.Sleep(aht20PollWait)
	}
	var raw [6]byte
	if err := a.dev.Tx(nil, raw[:]); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Err: err}
	}
	if raw[0]&aht20StatusBusy != 0 {
		return telemetry.Record{}, &Error{Kind: ErrInvalidData, Received: raw[:]}
	}
	rawHum := uint32(raw[1])<<12 | uint32(raw[2])<<4 | uint32(raw[3])>>4
	rawTemp := uint32(raw[3]&0x0f)<<16 | uint32(raw[4])<<8 | uint32(raw[5])
	hum := float64(rawHum) * 100.0 / 1048576.0
	if hum < 0 {
		hum = 0
	} else if hum > 100 {
		hum = 100
	}
	temp := float64(rawTemp)*200.0/1048576.0 - 50.0

	rec := a.newRecord()
	rec.Fields.Float("temp_c", temp)
	rec.Fields.Float("humidity", hum)
	return rec, nil
}
