package sensor

import (
	"periph.io/x/conn/v3/i2c"

	"github.com/widdakay/fan-controller/telemetry"
)

// INA226 input power monitor across a 1 milliohm shunt. Identification reads
// the fixed manufacturer and die IDs, which also keeps this factory off the
// Si7021 sharing address 0x40.
const (
	ina226RegConfig      = 0x00
	ina226RegShunt       = 0x01
	ina226RegBus         = 0x02
	ina226RegPower       = 0x03
	ina226RegCurrent     = 0x04
	ina226RegCalibration = 0x05
	ina226RegMaskEnable  = 0x06
	ina226RegMfrId       = 0xfe
	ina226RegDieId       = 0xff

	ina226MfrId = 0x5449 // "TI"
	ina226DieId = 0x2260

	// 512-sample averaging, 1.1ms conversions, shunt+bus continuous.
	ina226ConfigValue = 0x4d27

	// cal = 0.00512 / (currentLSB * Rshunt) with 1mA LSB and 1 milliohm.
	ina226Calibration = 5120

	ina226OverflowBit = 0x0004

	ina226BusLsbVolts    = 0.00125
	ina226ShuntLsbMv     = 0.0025
	ina226CurrentLsbAmps = 0.001
	ina226PowerLsbWatts  = 0.025
)

type ina226 struct {
	identity
	dev i2c.Dev
}

func NewIna226(bus Bus, addr uint16) (Instance, error) {
	d := i2c.Dev{Bus: bus, Addr: addr}
	mfr, err := ina226ReadReg(d, ina226RegMfrId)
	if err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{ina226RegMfrId}, Err: err}
	}
	if mfr != ina226MfrId {
		return nil, &Error{Kind: ErrInvalidData, Received: []byte{byte(mfr >> 8), byte(mfr)}, Err: errNotThisPart}
	}
	die, err := ina226ReadReg(d, ina226RegDieId)
	if err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{ina226RegDieId}, Err: err}
	}
	if die != ina226DieId {
		return nil, &Error{Kind: ErrInvalidData, Received: []byte{byte(die >> 8), byte(die)}, Err: errNotThisPart}
	}
	if err = ina226WriteReg(d, ina226RegConfig, ina226ConfigValue); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{ina226RegConfig}, Err: err}
	}
	if err = ina226WriteReg(d, ina226RegCalibration, ina226Calibration); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{ina226RegCalibration}, Err: err}
	}
	return &ina226{
		identity: identity{kind: "ina226", measurement: "ina226", busId: bus.BusID(), addr: addr},
		dev:      d,
	}, nil
}

func ina226ReadReg(d i2c.Dev, reg byte) (uint16, error) {
	var buf [2]byte
	if err := d.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func ina226WriteReg(d i2c.Dev, reg byte, v uint16) error {
	return d.Tx([]byte{reg, byte(v >> 8), byte(v)}, nil)
}

func (n *ina226) Connected() bool {
	mfr, err := ina226ReadReg(n.dev, ina226RegMfrId)
	return err == nil && mfr == ina226MfrId
}

// Power reads one averaged sample of every measurement register.
func (n *ina226) Power() (PowerReading, error) {
	var r PowerReading
	busRaw, err := ina226ReadReg(n.dev, ina226RegBus)
	if err != nil {
		return r, &Error{Kind: ErrReadFailed, Send: []byte{ina226RegBus}, Err: err}
	}
	shuntRaw, err := ina226ReadReg(n.dev, ina226RegShunt)
	if err != nil {
		return r, &Error{Kind: ErrReadFailed, Send: []byte{ina226RegShunt}, Err: err}
	}
	currentRaw, err := ina226ReadReg(n.dev, ina226RegCurrent)
	if err != nil {
		return r, &Error{Kind: ErrReadFailed, Send: []byte{ina226RegCurrent}, Err: err}
	}
	powerRaw, err := ina226ReadReg(n.dev, ina226RegPower)
	if err != nil {
		return r, &Error{Kind: ErrReadFailed, Send: []byte{ina226RegPower}, Err: err}
	}
	mask, err := ina226ReadReg(n.dev, ina226RegMaskEnable)
	if err != nil {
		return r, &Error{Kind: ErrReadFailed, Send: []byte{ina226RegMaskEnable}, Err: err}
	}
	r.BusVolts = float64(busRaw) * ina226BusLsbVolts
	r.ShuntMillivolts = float64(int16(shuntRaw)) * ina226ShuntLsbMv
	r.CurrentAmps = float64(int16(currentRaw)) * ina226CurrentLsbAmps
	r.PowerWatts = float64(powerRaw) * ina226PowerLsbWatts
	r.Overflow = mask&ina226OverflowBit != 0
	return r, nil
}

func (n *ina226) ReadRecord() (telemetry.Record, error) {
	p, err := n.Power()
	if err != nil {
		return telemetry.Record{}, err
	}
	rec := n.newRecord()
	rec.Fields.Float("v_in", p.BusVolts)
	rec.Fields.Float("i_in", p.CurrentAmps)
	rec.Fields.Float("p_in", p.PowerWatts)
	rec.Fields.Float("v_shunt", p.ShuntMillivolts)
	rec.Fields.Bool("overflow", p.Overflow)
	return rec, nil
}
