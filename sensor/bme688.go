package sensor

import (
	"math"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/widdakay/fan-controller/telemetry"
)

// BME688 environmental sensor: temperature, humidity, pressure and a heated
// gas resistance channel. Runs in forced mode with T x8 / P x4 / H x2
// oversampling, IIR filter 3 and one heater profile at 320C for 150ms.
const (
	bme688RegChipId     = 0xd0
	bme688RegReset      = 0xe0
	bme688RegCoeff1     = 0x89
	bme688RegCoeff2     = 0xe1
	bme688RegHeatVal    = 0x00
	bme688RegHeatRange  = 0x02
	bme688RegRangeSwErr = 0x04
	bme688RegCtrlGas1   = 0x71
	bme688RegCtrlHum    = 0x72
	bme688RegCtrlMeas   = 0x74
	bme688RegConfig     = 0x75
	bme688RegResHeat0   = 0x5a
	bme688RegGasWait0   = 0x64
	bme688RegMeasStatus = 0x1d

	bme688ChipId   = 0x61
	bme688CmdReset = 0xb6

	// osrs_t x8, osrs_p x4, forced mode.
	bme688CtrlMeasForced = 0x8d
	// osrs_h x2.
	bme688CtrlHumValue = 0x02
	// IIR filter coefficient 3.
	bme688ConfigValue = 0x08
	// run_gas, heater profile 0.
	bme688CtrlGasValue = 0x10
	// 150ms heater dwell (37 * 4ms multiplier).
	bme688GasWaitValue = 0x65

	bme688HeaterTargetC = 320.0
	bme688AmbientC      = 25.0
	bme688StatusNewData = 0x80
	bme688GasValidBit   = 0x20
	bme688HeatStableBit = 0x10

	bme688ResetWait   = 10 * time.Millisecond
	bme688MeasureWait = 200 * time.Millisecond
	bme688PollWait    = 10 * time.Millisecond
	bme688Deadline    = 500 * time.Millisecond
)

var (
	bme688LookupK1 = [16]float64{0, 0, 0, 0, 0, -1, 0, -0.8, 0, 0, -0.2, -0.5, 0, -1, 0, 0}
	bme688LookupK2 = [16]float64{0, 0, 0, 0, 0.1, 0.7, 0, -0.8, -0.1, 0, 0, 0, 0, 0, 0, 0}
)

type bme688Cal struct {
	t1         uint16
	t2         int16
	t3         int8
	p1         uint16
	p2         int16
	p3         int8
	p4, p5     int16
	p6, p7     int8
	p8, p9     int16
	p10        uint8
	h1, h2     uint16
	h3, h4, h5 int8
	h6         uint8
	h7         int8
	gh1        int8
	gh2        int16
	gh3        int8

	resHeatRange uint8
	resHeatVal   int8
	rangeSwErr   int8
}

type bme688 struct {
	identity
	dev i2c.Dev
	cal bme688Cal
}

func NewBme688(bus Bus, addr uint16) (Instance, error) {
	d := i2c.Dev{Bus: bus, Addr: addr}
	var id [1]byte
	if err := d.Tx([]byte{bme688RegChipId}, id[:]); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{bme688RegChipId}, Err: err}
	}
	if id[0] != bme688ChipId {
		return nil, &Error{Kind: ErrInvalidData, Received: id[:], Err: errNotThisPart}
	}
	if err := d.Tx([]byte{bme688RegReset, bme688CmdReset}, nil); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{bme688RegReset}, Err: err}
	}
	time.Sleep(bme688ResetWait)

	b := &bme688{
		identity: identity{kind: "bme688", measurement: "bme688", busId: bus.BusID(), addr: addr},
		dev:      d,
	}
	if err := b.readCalibration(); err != nil {
		return nil, err
	}
	if err := b.configure(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *bme688) readCalibration() error {
	var arr [41]byte
	if err := b.dev.Tx([]byte{bme688RegCoeff1}, arr[:25]); err != nil {
		return &Error{Kind: ErrNotInitialized, Send: []byte{bme688RegCoeff1}, Err: err}
	}
	if err := b.dev.Tx([]byte{bme688RegCoeff2}, arr[25:]); err != nil {
		return &Error{Kind: ErrNotInitialized, Send: []byte{bme688RegCoeff2}, Err: err}
	}
	c := &b.cal
	c.t1 = uint16(arr[34])<<8 | uint16(arr[33])
	c.t2 = int16(uint16(arr[2])<<8 | uint16(arr[1]))
	c.t3 = int8(arr[3])
	c.p1 = uint16(arr[6])<<8 | uint16(arr[5])
	c.p2 = int16(uint16(arr[8])<<8 | uint16(arr[7]))
	c.p3 = int8(arr[9])
	c.p4 = int16(uint16(arr[12])<<8 | uint16(arr[11]))
	c.p5 = int16(uint16(arr[14])<<8 | uint16(arr[13]))
	c.p6 = int8(arr[16])
	c.p7 = int8(arr[15])
	c.p8 = int16(uint16(arr[20])<<8 | uint16(arr[19]))
	c.p9 = int16(uint16(arr[22])<<8 | uint16(arr[21]))
	c.p10 = arr[23]
	c.h1 = uint16(arr[27])<<4 | uint16(arr[26])&0x0f
	c.h2 = uint16(arr[25])<<4 | uint16(arr[26])>>4
	c.h3 = int8(arr[28])
	c.h4 = int8(arr[29])
	c.h5 = int8(arr[30])
	c.h6 = arr[31]
	c.h7 = int8(arr[32])
	c.gh2 = int16(uint16(arr[36])<<8 | uint16(arr[35]))
	c.gh1 = int8(arr[37])
	c.gh3 = int8(arr[38])

	var reg [1]byte
	if err := b.dev.Tx([]byte{bme688RegHeatRange}, reg[:]); err != nil {
		return &Error{Kind: ErrNotInitialized, Send: []byte{bme688RegHeatRange}, Err: err}
	}
	c.resHeatRange = reg[0] >> 4 & 0x3
	if err := b.dev.Tx([]byte{bme688RegHeatVal}, reg[:]); err != nil {
		return &Error{Kind: ErrNotInitialized, Send: []byte{bme688RegHeatVal}, Err: err}
	}
	c.resHeatVal = int8(reg[0])
	if err := b.dev.Tx([]byte{bme688RegRangeSwErr}, reg[:]); err != nil {
		return &Error{Kind: ErrNotInitialized, Send: []byte{bme688RegRangeSwErr}, Err: err}
	}
	c.rangeSwErr = int8(reg[0]&0xf0) >> 4
	return nil
}

func (b *bme688) configure() error {
	steps := [][2]byte{
		{bme688RegCtrlHum, bme688CtrlHumValue},
		{bme688RegConfig, bme688ConfigValue},
		{bme688RegResHeat0, b.cal.resHeat(bme688HeaterTargetC, bme688AmbientC)},
		{bme688RegGasWait0, bme688GasWaitValue},
		{bme688RegCtrlGas1, bme688CtrlGasValue},
	}
	for _, s := range steps {
		if err := b.dev.Tx(s[:], nil); err != nil {
			return &Error{Kind: ErrNotInitialized, Send: s[:], Err: err}
		}
	}
	return nil
}

func (b *bme688) Connected() bool {
	var id [1]byte
	return b.dev.Tx([]byte{bme688RegChipId}, id[:]) == nil && id[0] == bme688ChipId
}

func (b *bme688) ReadRecord() (telemetry.Record, error) {
	// Forced mode runs one TPH+gas conversion and drops back to sleep.
	trigger := []byte{bme688RegCtrlMeas, bme688CtrlMeasForced}
	if err := b.dev.Tx(trigger, nil); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: trigger, Err: err}
	}
	time.Sleep(bme688MeasureWait)
	deadline := time.Now().Add(bme688Deadline)
	var st [1]byte
	for {
		if err := b.dev.Tx([]byte{bme688RegMeasStatus}, st[:]); err != nil {
			return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: []byte{bme688RegMeasStatus}, Err: err}
		}
		if st[0]&bme688StatusNewData != 0 {
			break
		}
		if time.Now().After(deadline) {
			return telemetry.Record{}, &Error{Kind: ErrTimeout, Received: st[:]}
		}
		time.Sleep(bme688PollWait)
	}

	var buf [15]byte
	if err := b.dev.Tx([]byte{bme688RegMeasStatus}, buf[:]); err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Send: []byte{bme688RegMeasStatus}, Err: err}
	}
	pressRaw := uint32(buf[2])<<12 | uint32(buf[3])<<4 | uint32(buf[4])>>4
	tempRaw := uint32(buf[5])<<12 | uint32(buf[6])<<4 | uint32(buf[7])>>4
	humRaw := uint32(buf[8])<<8 | uint32(buf[9])
	gasRaw := uint16(buf[13])<<2 | uint16(buf[14])>>6
	gasRange := buf[14] & 0x0f
	gasValid := buf[14]&bme688GasValidBit != 0 && buf[14]&bme688HeatStableBit != 0

	tempC, tFine := b.cal.compTemp(tempRaw)
	pressPa := b.cal.compPress(pressRaw, tFine)
	hum := b.cal.compHum(humRaw, tFine)
	gasOhms := math.NaN()
	if gasValid {
		gasOhms = b.cal.compGas(gasRaw, gasRange)
	}

	rec := b.newRecord()
	rec.Fields.Float("temp_c", tempC)
	rec.Fields.Float("humidity", hum)
	rec.Fields.Float("pressure_pa", pressPa)
	rec.Fields.Float("gas_resistance", gasOhms)
	return rec, nil
}

// Float compensation per the Bosch datasheet.

func (c *bme688Cal) compTemp(raw uint32) (tempC, tFine float64) {
	var1 := (float64(raw)/16384.0 - float64(c.t1)/1024.0) * float64(c.t2)
	half := float64(raw)/131072.0 - float64(c.t1)/8192.0
	var2 := half * half * float64(c.t3) * 16.0
	tFine = var1 + var2
	return tFine / 5120.0, tFine
}

func (c *bme688Cal) compPress(raw uint32, tFine float64) float64 {
	var1 := tFine/2.0 - 64000.0
	var2 := var1 * var1 * (float64(c.p6) / 131072.0)
	var2 += var1 * float64(c.p5) * 2.0
	var2 = var2/4.0 + float64(c.p4)*65536.0
	var1 = (float64(c.p3)*var1*var1/16384.0 + float64(c.p2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.p1)
	if var1 == 0 {
		return 0
	}
	press := 1048576.0 - float64(raw)
	press = (press - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.p9) * press * press / 2147483648.0
	var2 = press * (float64(c.p8) / 32768.0)
	cube := press / 256.0
	var3 := cube * cube * cube * (float64(c.p10) / 131072.0)
	return press + (var1+var2+var3+float64(c.p7)*128.0)/16.0
}

func (c *bme688Cal) compHum(raw uint32, tFine float64) float64 {
	tempC := tFine / 5120.0
	var1 := float64(raw) - (float64(c.h1)*16.0 + float64(c.h3)/2.0*tempC)
	var2 := var1 * (float64(c.h2) / 262144.0 *
		(1.0 + float64(c.h4)/16384.0*tempC + float64(c.h5)/1048576.0*tempC*tempC))
	var3 := float64(c.h6) / 16384.0
	var4 := float64(c.h7) / 2097152.0
	hum := var2 + (var3+var4*tempC)*var2*var2
	if hum > 100 {
		return 100
	}
	if hum < 0 {
		return 0
	}
	return hum
}

func (c *bme688Cal) compGas(raw uint16, gasRange byte) float64 {
	var1 := 1340.0 + 5.0*float64(c.rangeSwErr)
	var2 := var1 * (1.0 + bme688LookupK1[gasRange]/100.0)
	var3 := 1.0 + bme688LookupK2[gasRange]/100.0
	return 1.0 / (var3 * 0.000000125 * float64(uint32(1)<<gasRange) *
		((float64(raw)-512.0)/var2 + 1.0))
}

// resHeat converts a heater target temperature into the register setpoint
// using the per-die heater calibration.
func (c *bme688Cal) resHeat(targetC, ambientC float64) byte {
	var1 := float64(c.gh1)/16.0 + 49.0
	var2 := float64(c.gh2)/32768.0*0.0005 + 0.00235
	var3 := float64(c.gh3) / 1024.0
	var4 := var1 * (1.0 + var2*targetC)
	var5 := var4 + var3*ambientC
	return byte(3.4 * (var5*(4.0/(4.0+float64(c.resHeatRange)))*
		(1.0/(1.0+float64(c.resHeatVal)*0.002)) - 25.0))
}
