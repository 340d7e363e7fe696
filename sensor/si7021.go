package sensor

import (
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/widdakay/fan-controller/telemetry"
)

// Si7021 humidity/temperature sensor. It shares address 0x40 with the INA226
// power monitor, so construction verifies the part before claiming it: after
// a reset the user register must read its documented default, which the
// INA226's register file never produces.
const (
	si7021CmdMeasureRh   = 0xf5 // no-hold master mode
	si7021CmdReadTemp    = 0xe0 // temperature from the last RH conversion
	si7021CmdReset       = 0xfe
	si7021CmdReadUserReg = 0xe7
	si7021UserRegDefault = 0x3a

	si7021ResetWait = 15 * time.Millisecond
	si7021ConvWait  = 25 * time.Millisecond
)

var (
	si7021CmdSerialA = []byte{0xfa, 0x0f}
	si7021CmdSerialB = []byte{0xfc, 0xc9}
)

type si7021 struct {
	identity
	dev i2c.Dev
}

func NewSi7021(bus Bus, addr uint16) (Instance, error) {
	d := i2c.Dev{Bus: bus, Addr: addr}
	if err := d.Tx([]byte{si7021CmdReset}, nil); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{si7021CmdReset}, Err: err}
	}
	time.Sleep(si7021ResetWait)
	var reg [1]byte
	if err := d.Tx([]byte{si7021CmdReadUserReg}, reg[:]); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{si7021CmdReadUserReg}, Err: err}
	}
	if reg[0] != si7021UserRegDefault {
		return nil, &Error{Kind: ErrInvalidData, Received: reg[:], Err: errNotThisPart}
	}
	s := &si7021{
		identity: identity{kind: "si7021", measurement: "si7021", busId: bus.BusID(), addr: addr},
		dev:      d,
	}
	if serial, err := s.readSerial(); err == nil {
		s.identity.serial = serial
		s.identity.hasSerial = true
	}
	return s, nil
}

// readSerial assembles the 64-bit electronic serial number from the two
// access commands. The first answer interleaves CRC bytes, the second packs
// two ID bytes per CRC.
func (s *si7021) readSerial() (uint64, error) {
	var a [8]byte
	if err := s.dev.Tx(si7021CmdSerialA, a[:]); err != nil {
		return 0, err
	}
	var b [6]byte
	if err := s.dev.Tx(si7021CmdSerialB, b[:]); err != nil {
		return 0, err
	}
	sna := uint64(a[0])<<24 | uint64(a[2])<<16 | uint64(a[4])<<8 | uint64(a[6])
	snb := uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[3])<<8 | uint64(b[4])
	return sna<<32 | snb, nil
}

func (s *si7021) Connected() bool {
	var reg [1]byte
	return s.dev.Tx([]byte{si7021CmdReadUserReg}, reg[:]) == nil
}

func (s *si7021) ReadRecord() (telemetry.Record, error) {
	if err := s.dev.Tx([]byte{si7021CmdMeasureRh}, nil); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: []byte{si7021CmdMeasureRh}, Err: err}
	}
	time.Sleep(si7021ConvWait)
	var raw [2]byte
	if err := s.dev.Tx(nil, raw[:]); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Err: err}
	}
	rhCode := uint16(raw[0])<<8 | uint16(raw[1])
	rh := 125.0*float64(rhCode)/65536.0 - 6.0
	if rh < 0 {
		rh = 0
	} else if rh > 100 {
		rh = 100
	}

	if err := s.dev.Tx([]byte{si7021CmdReadTemp}, raw[:]); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: []byte{si7021CmdReadTemp}, Err: err}
	}
	tCode := uint16(raw[0])<<8 | uint16(raw[1])
	tempC := 175.72*float64(tCode)/65536.0 - 46.85

	rec := s.newRecord()
	rec.Fields.Float("temp_c", tempC)
	rec.Fields.Float("humidity", rh)
	return rec, nil
}
