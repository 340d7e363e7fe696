package busmux

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3/sysfs"
)

// PinMapping ties one pin pair to the kernel adapter that serves it. Every
// usable pair is an i2c-gpio overlay instance, so "rewiring the transceiver"
// means closing the current adapter and opening the mapped one.
type PinMapping struct {
	SDA int
	SCL int
	Bus int // /dev/i2c-<Bus>
}

type sysfsTransceiver struct {
	mappings []PinMapping
	cur      *sysfs.I2C
}

// NewSysfsTransceiver returns a Transceiver backed by kernel i2c-dev
// adapters.
func NewSysfsTransceiver(mappings []PinMapping) Transceiver {
	return &sysfsTransceiver{mappings: mappings}
}

func (t *sysfsTransceiver) Configure(sda, scl int, clock physic.Frequency) error {
	num := -1
	for _, m := range t.mappings {
		if m.SDA == sda && m.SCL == scl {
			num = m.Bus
			break
		}
	}
	if num < 0 {
		return fmt.Errorf("busmux: no i2c adapter mapped for sda=%d scl=%d", sda, scl)
	}
	if t.cur != nil {
		_ = t.cur.Close()
		t.cur = nil
	}
	bus, err := sysfs.NewI2C(num)
	if err != nil {
		return err
	}
	// The adapter clock is usually fixed by its device-tree node; refusing
	// a speed change is not fatal.
	_ = bus.SetSpeed(clock)
	t.cur = bus
	return nil
}

func (t *sysfsTransceiver) Tx(addr uint16, w, r []byte) error {
	if t.cur == nil {
		return errors.New("busmux: transceiver not configured")
	}
	return t.cur.Tx(addr, w, r)
}

func (t *sysfsTransceiver) Close() error {
	if t.cur == nil {
		return nil
	}
	err := t.cur.Close()
	t.cur = nil
	return err
}
