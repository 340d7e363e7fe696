// Package sensor implements the instrument layer: a catalog of supported
// I2C sensor kinds, one-shot discovery across the multiplexed buses, per-kind
// drivers behind a uniform instance abstraction, and virtual instruments
// derived from raw analog channels.
package sensor

import (
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/i2c"

	"github.com/widdakay/fan-controller/telemetry"
)

// Bus is the logical bus handle a factory receives: periph's i2c.Bus plus
// the logical bus id stamped into record tags.
type Bus interface {
	i2c.Bus
	BusID() uint8
}

// Instance is one discovered or derived instrument.
type Instance interface {
	// Kind names the driver; Measurement names the series records are
	// filed under.
	Kind() string
	Measurement() string
	BusID() uint8
	Address() uint16
	// Serial reports the factory serial number when the part exposes one.
	Serial() (uint64, bool)
	// Connected is a cheap liveness check, not a full measurement.
	Connected() bool
	// ReadRecord runs a full measurement and formats it as a record.
	ReadRecord() (telemetry.Record, error)
}

// PostProcessor is implemented by drivers that spawn virtual instruments
// from their raw channels right after construction.
type PostProcessor interface {
	DerivedInstances() []Instance
}

// Named is implemented by derived instruments that need a sensor_name tag to
// keep siblings on one parent apart.
type Named interface {
	SensorName() string
}

// TempReading is one thermistor conversion with its intermediate values.
type TempReading struct {
	Volts   float64
	Ohms    float64
	TempC   float64
	InRange bool
}

// TemperatureSource is a derived instrument that yields a temperature.
type TemperatureSource interface {
	Instance
	Named
	Temperature() (TempReading, error)
}

// VoltageSource is a derived instrument that yields a rail voltage.
type VoltageSource interface {
	Instance
	Named
	Volts() (float64, error)
}

// PowerReading is one input power monitor sample.
type PowerReading struct {
	BusVolts        float64
	ShuntMillivolts float64
	CurrentAmps     float64
	PowerWatts      float64
	Overflow        bool
}

// PowerSource is an instrument that monitors the supply input.
type PowerSource interface {
	Instance
	Power() (PowerReading, error)
}

// identity carries the naming every instance shares.
type identity struct {
	kind        string
	measurement string
	busId       uint8
	addr        uint16
	serial      uint64
	hasSerial   bool
}

func (d identity) Kind() string        { return d.kind }
func (d identity) Measurement() string { return d.measurement }
func (d identity) BusID() uint8        { return d.busId }
func (d identity) Address() uint16     { return d.addr }

func (d identity) Serial() (uint64, bool) {
	return d.serial, d.hasSerial
}

// newRecord starts a record carrying the instance's identity tags.
func (d identity) newRecord() telemetry.Record {
	rec := telemetry.Record{Measurement: d.measurement}
	rec.Tags.Add("bus_id", strconv.Itoa(int(d.busId)))
	if d.hasSerial {
		rec.Tags.Add("serial", strconv.FormatUint(d.serial, 16))
	}
	return rec
}

// ItemName derives the stable key an instrument is tracked under in the
// status log and over the command link. Bus-attached parts key on bus and
// address; bus-less parts (OneWire) key on their serial; derived instruments
// append their sensor name.
func ItemName(inst Instance) string {
	var name string
	if serial, ok := inst.Serial(); ok && inst.Address() == 0 {
		name = fmt.Sprintf("%s_%x", inst.Kind(), serial)
	} else {
		name = fmt.Sprintf("%s_b%d_a%02x", inst.Kind(), inst.BusID(), inst.Address())
	}
	if n, ok := inst.(Named); ok {
		name += "_" + n.SensorName()
	}
	return name
}
