package sensor

import (
	"github.com/widdakay/fan-controller/common"
)

// Factory attempts to bring the device at addr on bus up as a working
// instance. An error means "not this kind": the orchestrator tries the next
// candidate. Factories must verify the part before configuring it and leave
// no partial hardware state behind when they decline.
type Factory func(bus Bus, addr uint16) (Instance, error)

// Descriptor declares one supported sensor kind.
type Descriptor struct {
	Kind           string
	Measurement    string
	Addresses      []uint16
	PostProcessing bool
	New            Factory
}

func (d Descriptor) matches(addr uint16) bool {
	for _, a := range d.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}

// Catalog is the ordered registry of sensor kinds. Registration order is the
// priority when several kinds list the same candidate address.
type Catalog struct {
	descriptors []Descriptor
}

func NewCatalog(descriptors ...Descriptor) *Catalog {
	c := new(Catalog)
	for _, d := range descriptors {
		c.Register(d)
	}
	return c
}

// Register appends a descriptor. A registration that can never work is a
// programming error, not a runtime condition.
func (c *Catalog) Register(d Descriptor) {
	if d.Kind == "" || d.New == nil {
		panic("sensor: descriptor needs a kind and a factory")
	}
	if common.ContainsIllegalCharacter(d.Kind) || common.ContainsIllegalCharacter(d.Measurement) {
		panic("sensor: descriptor names must match [0-9a-z_]: " + d.Kind)
	}
	c.descriptors = append(c.descriptors, d)
}

// Descriptors returns the registration-ordered list.
func (c *Catalog) Descriptors() []Descriptor {
	return c.descriptors
}

// FindByAddress returns every descriptor listing addr as a candidate, in
// registration order.
func (c *Catalog) FindByAddress(addr uint16) []Descriptor {
	var out []Descriptor
	for _, d := range c.descriptors {
		if d.matches(addr) {
			out = append(out, d)
		}
	}
	return out
}

// DefaultCatalog lists every kind this node supports. Order matters: the
// si7021 and ina226 both answer 0x40, and the first whose identification
// handshake passes claims the device.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Descriptor{Kind: "si7021", Measurement: "si7021", Addresses: []uint16{0x40}, New: NewSi7021},
		Descriptor{Kind: "aht20", Measurement: "aht20", Addresses: []uint16{0x38}, New: NewAht20},
		Descriptor{Kind: "zmod4510", Measurement: "zmod4510", Addresses: []uint16{0x32}, New: NewZmod4510},
		Descriptor{Kind: "bme688", Measurement: "bme688", Addresses: []uint16{0x76, 0x77}, New: NewBme688},
		Descriptor{Kind: "ina226", Measurement: "ina226", Addresses: []uint16{0x40, 0x41, 0x44, 0x45}, New: NewIna226},
		Descriptor{Kind: "ads1115", Measurement: "ads1115", Addresses: []uint16{0x48, 0x49, 0x4a, 0x4b}, PostProcessing: true, New: NewAds1115},
	)
}
