package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	"github.com/widdakay/fan-controller/pkg/thermistor"
	"github.com/widdakay/fan-controller/telemetry"
)

// ADS1115 four-channel ADC fronting the fan board's analog diagnostics: two
// NTC thermistor dividers and the divided 3V3/5V supply rails. The raw
// channels are published as-is; the usable numbers come from the derived
// instruments attached after construction.
const (
	adsChanMotorNtc = 0
	adsChanMcuNtc   = 1
	adsChanRail3v3  = 2
	adsChanRail5v   = 3

	adsRegConfig = 0x01

	// Both rails arrive through 1:2 resistive dividers.
	adsRailDividerRatio = 2.0
	// Assumed when the 3V3 reference channel cannot be read.
	adsFallbackSupply = 3.3
)

var adsChannels = [4]ads1x15.Channel{
	ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3,
}

var adsChannelFields = [4]string{
	"motor_ntc_volts", "mcu_ntc_volts", "rail_3v3_volts", "rail_5v_volts",
}

// Steinhart-Hart coefficients for the 10k NTCs populated on the board.
var adsNtcCurve = thermistor.NewCurve(10000, 8.688e-4, 2.547e-4, 1.781e-7)

type ads1115 struct {
	identity
	dev  i2c.Dev
	pins [4]ads1x15.PinADC
}

// NewAds1115 claims the device after reading its config register, then
// prepares one single-shot pin per channel at the 4.096V range.
func NewAds1115(bus Bus, addr uint16) (Instance, error) {
	probe := i2c.Dev{Bus: bus, Addr: addr}
	var cfg [2]byte
	if err := probe.Tx([]byte{adsRegConfig}, cfg[:]); err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Send: []byte{adsRegConfig}, Err: err}
	}
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
	if err != nil {
		return nil, &Error{Kind: ErrNotInitialized, Err: err}
	}
	a := &ads1115{
		identity: identity{kind: "ads1115", measurement: "ads1115", busId: bus.BusID(), addr: addr},
		dev:      probe,
	}
	for ch, channel := range adsChannels {
		pin, err := dev.PinForChannel(channel, 4096*physic.MilliVolt, 1*physic.Hertz, ads1x15.BestQuality)
		if err != nil {
			return nil, &Error{Kind: ErrNotInitialized, Err: err}
		}
		a.pins[ch] = pin
	}
	return a, nil
}

func (a *ads1115) Connected() bool {
	var cfg [2]byte
	return a.dev.Tx([]byte{adsRegConfig}, cfg[:]) == nil
}

// ReadVolts runs one conversion on a channel. Used by this instance's own
// record and by the derived instruments; every call is a live sample, never
// a cached one.
func (a *ads1115) ReadVolts(channel int) (float64, error) {
	if channel < 0 || channel >= len(a.pins) {
		return 0, &Error{Kind: ErrInvalidData, Err: fmt.Errorf("channel %d out of range", channel)}
	}
	sample, err := a.pins[channel].Read()
	if err != nil {
		return 0, &Error{Kind: ErrReadFailed, Err: err}
	}
	return float64(sample.V) / float64(physic.Volt), nil
}

func (a *ads1115) ReadRecord() (telemetry.Record, error) {
	rec := a.newRecord()
	for ch, name := range adsChannelFields {
		v, err := a.ReadVolts(ch)
		if err != nil {
			return telemetry.Record{}, err
		}
		rec.Fields.Float(name, v)
	}
	return rec, nil
}

// DerivedInstances attaches the virtual instruments computed from the raw
// channels. The parent stays in the collection ahead of them and owns the
// hardware; the children only hold a reference back.
func (a *ads1115) DerivedInstances() []Instance {
	return []Instance{
		newThermistor(a, "motor_ntc", adsChanMotorNtc, adsNtcCurve),
		newThermistor(a, "mcu_ntc", adsChanMcuNtc, adsNtcCurve),
		newRailMonitor(a, "3v3_rail", adsChanRail3v3, adsRailDividerRatio),
		newRailMonitor(a, "5v_rail", adsChanRail5v, adsRailDividerRatio),
	}
}
