package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yryz/ds18b20"

	"github.com/widdakay/fan-controller/telemetry"
)

// DS18B20 OneWire probes enumerated through the kernel w1 subsystem. They
// live outside the multiplexed I2C address space, so their discovery is a
// directory listing rather than a probe sweep.

const w1DevicesPath = "/sys/bus/w1/devices"

// Readings at the DS18B20 power-on default or outside the deployment's
// plausible span are rejected.
const (
	ds18b20MinC = -40.0
	ds18b20MaxC = 125.0
)

type ds18b20Probe struct {
	identity
	id string // kernel device id, e.g. 28-0316a4d51933
}

// DiscoverOneWire lists the DS18B20 probes the kernel currently exposes.
func DiscoverOneWire() ([]Instance, error) {
	ids, err := ds18b20.Sensors()
	if err != nil {
		return nil, err
	}
	var out []Instance
	for _, id := range ids {
		p := &ds18b20Probe{
			identity: identity{kind: "ds18b20", measurement: "onewire_temp"},
			id:       id,
		}
		if i := strings.IndexByte(id, '-'); i >= 0 {
			if serial, err := strconv.ParseUint(id[i+1:], 16, 64); err == nil {
				p.identity.serial = serial
				p.identity.hasSerial = true
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Connected checks the sysfs node instead of running a conversion; a full
// read blocks for most of a second.
func (p *ds18b20Probe) Connected() bool {
	_, err := os.Stat(w1DevicesPath + "/" + p.id)
	return err == nil
}

func (p *ds18b20Probe) ReadRecord() (telemetry.Record, error) {
	t, err := ds18b20.Temperature(p.id)
	if err != nil {
		return telemetry.Record{}, &Error{Kind: ErrReadFailed, Err: err}
	}
	if t <= ds18b20MinC || t >= ds18b20MaxC {
		return telemetry.Record{}, &Error{Kind: ErrInvalidData, Err: fmt.Errorf("reading %.1fC outside plausible range", t)}
	}
	rec := p.newRecord()
	rec.Fields.Float("temp_c", t)
	return rec, nil
}
