// Package busmux multiplexes several logical I2C buses onto one shared
// transceiver. The hardware only gets rewired when consecutive transactions
// target a different pin pair or clock, so repeated traffic on one bus costs
// nothing extra.
package busmux

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Transceiver is the single physical I2C peripheral behind all logical
// buses. Configure rewires it to a pin pair and clock; Tx runs one
// transaction against the currently configured pair. A Tx with empty write
// and read buffers is a zero-length write, used as a presence probe.
type Transceiver interface {
	Configure(sda, scl int, clock physic.Frequency) error
	Tx(addr uint16, w, r []byte) error
	Close() error
}

// BusConfig describes one logical bus: the pin pair and clock the shared
// transceiver must adopt before transactions for this bus id may run.
type BusConfig struct {
	ID    uint8
	SDA   int
	SCL   int
	Clock physic.Frequency
}

type active struct {
	sda, scl int
	clock    physic.Frequency
	valid    bool
}

// Switch owns the transceiver and tracks its active configuration. Not safe
// for concurrent use; callers serialize all bus work.
type Switch struct {
	tr      Transceiver
	buses   []BusConfig
	current active
}

func NewSwitch(tr Transceiver, buses []BusConfig) (*Switch, error) {
	seen := make(map[uint8]struct{}, len(buses))
	for _, b := range buses {
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("busmux: duplicate bus id %d", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return &Switch{tr: tr, buses: buses}, nil
}

// Buses returns the logical bus configurations in declaration order.
func (s *Switch) Buses() []BusConfig {
	return s.buses
}

// Use points the transceiver at the given pin pair and clock. No-op when the
// requested configuration matches the active one. A failed reconfiguration
// invalidates the cached state so the next Use retries.
func (s *Switch) Use(sda, scl int, clock physic.Frequency) error {
	if s.current.valid && s.current.sda == sda && s.current.scl == scl && s.current.clock == clock {
		return nil
	}
	if err := s.tr.Configure(sda, scl, clock); err != nil {
		s.current.valid = false
		return err
	}
	s.current = active{sda: sda, scl: scl, clock: clock, valid: true}
	return nil
}

// SelectBus switches the transceiver to the named logical bus.
func (s *Switch) SelectBus(id uint8) error {
	for _, b := range s.buses {
		if b.ID == id {
			return s.Use(b.SDA, b.SCL, b.Clock)
		}
	}
	return fmt.Errorf("busmux: unknown bus id %d", id)
}

// Probe issues a zero-length write on the named bus and reports whether the
// address acked.
func (s *Switch) Probe(id uint8, addr uint16) bool {
	if err := s.SelectBus(id); err != nil {
		return false
	}
	return s.tr.Tx(addr, nil, nil) == nil
}

// On returns the handle for a logical bus. Handles from different buses may
// be interleaved freely; each transaction re-selects its bus first.
func (s *Switch) On(id uint8) Bus {
	return Bus{sw: s, id: id}
}

// Close releases the transceiver.
func (s *Switch) Close() error {
	return s.tr.Close()
}

// Bus is a logical bus handle bound to a Switch. It implements i2c.Bus so
// periph device drivers run on top of the mux unchanged.
type Bus struct {
	sw *Switch
	id uint8
}

func (b Bus) BusID() uint8 {
	return b.id
}

func (b Bus) String() string {
	return fmt.Sprintf("busmux%d", b.id)
}

// Tx selects the logical bus, then runs the transaction on the shared
// transceiver.
func (b Bus) Tx(addr uint16, w, r []byte) error {
	if err := b.sw.SelectBus(b.id); err != nil {
		return err
	}
	return b.sw.tr.Tx(addr, w, r)
}

// SetSpeed changes the logical bus clock; it takes effect on the next
// transaction that selects this bus.
func (b Bus) SetSpeed(f physic.Frequency) error {
	for i := range b.sw.buses {
		if b.sw.buses[i].ID == b.id {
			b.sw.buses[i].Clock = f
			return nil
		}
	}
	return fmt.Errorf("busmux: unknown bus id %d", b.id)
}
