package sensor

import (
	"github.com/widdakay/fan-controller/pkg/thermistor"
	"github.com/widdakay/fan-controller/telemetry"
)

// AnalogSource is the parent capability the derived instruments read
// through. The reference is non-owning: parents live in the instrument
// collection, which never drops entries while the node runs.
type AnalogSource interface {
	Instance
	ReadVolts(channel int) (float64, error)
}

// Temperatures outside this envelope are reported but flagged out of range.
const (
	thermistorMinC = 0.0
	thermistorMaxC = 100.0
)

// Thermistor converts one raw divider channel into a temperature. The
// divider supply is measured live from the parent's 3V3 channel (scaled back
// through its own divider) so rail sag does not skew the conversion.
type Thermistor struct {
	identity
	parent  AnalogSource
	name    string
	channel int
	curve   thermistor.Curve
}

func newThermistor(parent AnalogSource, name string, channel int, curve thermistor.Curve) *Thermistor {
	return &Thermistor{
		identity: identity{
			kind:        "ntc_thermistor",
			measurement: "thermistor",
			busId:       parent.BusID(),
			addr:        parent.Address(),
		},
		parent:  parent,
		name:    name,
		channel: channel,
		curve:   curve,
	}
}

// SensorName keeps sibling virtual instruments on one parent apart.
func (t *Thermistor) SensorName() string { return t.name }

func (t *Thermistor) Connected() bool { return t.parent.Connected() }

// supplyVolts reads the divided 3V3 rail and undoes the divider. The nominal
// rail stands in when the reference channel is unreadable.
func (t *Thermistor) supplyVolts() float64 {
	v, err := t.parent.ReadVolts(adsChanRail3v3)
	if err != nil || v <= 0.001 {
		return adsFallbackSupply
	}
	return v * adsRailDividerRatio
}

// Temperature runs one live conversion. Nothing is cached between calls.
func (t *Thermistor) Temperature() (TempReading, error) {
	v, err := t.parent.ReadVolts(t.channel)
	if err != nil {
		return TempReading{}, err
	}
	r := t.curve.ResistanceFromVolts(v, t.supplyVolts())
	tempC := t.curve.TempC(r)
	return TempReading{
		Volts:   v,
		Ohms:    r,
		TempC:   tempC,
		InRange: thermistor.InRange(tempC, thermistorMinC, thermistorMaxC),
	}, nil
}

func (t *Thermistor) ReadRecord() (telemetry.Record, error) {
	tr, err := t.Temperature()
	if err != nil {
		return telemetry.Record{}, err
	}
	rec := t.newRecord()
	rec.Tags.Add("sensor_name", t.name)
	rec.Fields.Float("temp_c", tr.TempC)
	rec.Fields.Float("resistance", tr.Ohms)
	rec.Fields.Float("voltage", tr.Volts)
	rec.Fields.Bool("in_range", tr.InRange)
	return rec, nil
}

// RailMonitor reports one supply rail sampled through a resistive divider.
type RailMonitor struct {
	identity
	parent  AnalogSource
	name    string
	channel int
	ratio   float64
}

func newRailMonitor(parent AnalogSource, name string, channel int, ratio float64) *RailMonitor {
	return &RailMonitor{
		identity: identity{
			kind:        "voltage_rail",
			measurement: "voltage_rail",
			busId:       parent.BusID(),
			addr:        parent.Address(),
		},
		parent:  parent,
		name:    name,
		channel: channel,
		ratio:   ratio,
	}
}

func (r *RailMonitor) SensorName() string { return r.name }

func (r *RailMonitor) Connected() bool { return r.parent.Connected() }

// Volts returns the rail voltage with the divider undone.
func (r *RailMonitor) Volts() (float64, error) {
	v, err := r.parent.ReadVolts(r.channel)
	if err != nil {
		return 0, err
	}
	return v * r.ratio, nil
}

func (r *RailMonitor) ReadRecord() (telemetry.Record, error) {
	v, err := r.parent.ReadVolts(r.channel)
	if err != nil {
		return telemetry.Record{}, err
	}
	rec := r.newRecord()
	rec.Tags.Add("sensor_name", r.name)
	rec.Fields.Float("voltage", v*r.ratio)
	rec.Fields.Float("pin_volts", v)
	return rec, nil
}
