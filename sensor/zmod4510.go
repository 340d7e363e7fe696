package sensor

import (
	"periph.io/x/conn/v3/i2c"

	"github.com/widdakay/fan-controller/telemetry"
)

// ZMOD4510 air quality sensor. The gas algorithm is vendor-licensed firmware
// that is not reimplemented here, so instances only attest presence: records
// carry the identity tags and no fields. The part is still verified, serial
// numbered and liveness-checked like any other instrument.
const (
	zmod4510RegPid      = 0x00
	zmod4510RegTracking = 0x3a
	zmod4510Pid         = 0x6320
)

type zmod4510 struct {
	identity
	dev i2c.Dev
}

func NewZmod4510(bus Bus, addr uint16) (Instance, error) {
	d := i2c.Dev{Bus: bus, Addr: addr}
	var pid [2]byte
	if err := d.Tx([]byte{zmod4510RegPid}, pid[:]); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{zmod4510RegPid}, Err: err}
	}
	if got := uint16(pid[0])<<8 | uint16(pid[1]); got != zmod4510Pid {
		return nil, &Error{Kind: ErrInvalidData, Received: pid[:], Err: errNotThisPart}
	}
	z := &zmod4510{
		identity: identity{kind: "zmod4510", measurement: "zmod4510", busId: bus.BusID(), addr: addr},
		dev:      d,
	}
	var tr [6]byte
	if err := d.Tx([]byte{zmod4510RegTracking}, tr[:]); err == nil {
		var serial uint64
		for _, b := range tr {
			serial = serial<<8 | uint64(b)
		}
		z.identity.serial = serial
		z.identity.hasSerial = true
	}
	return z, nil
}

func (z *zmod4510) Connected() bool {
	var pid [2]byte
	return z.dev.Tx([]byte{zmod4510RegPid}, pid[:]) == nil
}

func (z *zmod4510) ReadRecord() (telemetry.Record, error) {
	var pid [2]byte
	if err := z.dev.Tx([]byte{zmod4510RegPid}, pid[:]); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: []byte{zmod4510RegPid}, Err: err}
	}
	return z.newRecord(), nil
}
