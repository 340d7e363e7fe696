package sensor

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/widdakay/fan-controller/busmux"
)

// 7-bit address space minus the reserved general-call and 10-bit ranges.
const (
	probeAddrFirst = 0x01
	probeAddrLast  = 0x7e
)

// Discover walks every logical bus once, probes the address space with
// zero-length writes, and constructs an instance for each responding device
// the catalog recognizes. Derived instruments land right after their parent,
// so parents always precede their children in the result. Runs once at boot;
// an empty result is a valid deployment, not an error.
func Discover(sw *busmux.Switch, cat *Catalog) []Instance {
	logger := zap.L()
	var instruments []Instance
	for _, bc := range sw.Buses() {
		if err := sw.SelectBus(bc.ID); err != nil {
			logger.Error("bus select failed, skipping bus",
				zap.Uint8("bus_id", bc.ID), zap.Error(err))
			continue
		}
		handle := sw.On(bc.ID)
		responding := 0
		for addr := uint16(probeAddrFirst); addr <= probeAddrLast; addr++ {
			if !sw.Probe(bc.ID, addr) {
				continue
			}
			responding++
			descs := cat.FindByAddress(addr)
			if len(descs) == 0 {
				logger.Info("unknown device",
					zap.Uint8("bus_id", bc.ID), zap.String("addr", hexAddr(addr)))
				continue
			}
			inst := construct(handle, addr, descs, logger)
			if inst == nil {
				continue
			}
			instruments = append(instruments, inst)
			if pp, ok := inst.(PostProcessor); ok {
				derived := pp.DerivedInstances()
				instruments = append(instruments, derived...)
				logger.Info("derived instruments attached",
					zap.String("kind", inst.Kind()),
					zap.Uint8("bus_id", bc.ID), zap.Int("count", len(derived)))
			}
		}
		logger.Info("bus scan complete",
			zap.Uint8("bus_id", bc.ID), zap.Int("responding", responding))
	}
	return instruments
}

// construct tries the candidates in registration order; the first factory
// whose handshake succeeds claims the device and later candidates are never
// tried.
func construct(bus Bus, addr uint16, descs []Descriptor, logger *zap.Logger) Instance {
	for _, d := range descs {
		inst, err := d.New(bus, addr)
		if err != nil {
			logger.Debug("factory declined device", zap.String("kind", d.Kind),
				zap.Uint8("bus_id", bus.BusID()), zap.String("addr", hexAddr(addr)), zap.Error(err))
			continue
		}
		logger.Info("instrument online", zap.String("kind", d.Kind),
			zap.Uint8("bus_id", bus.BusID()), zap.String("addr", hexAddr(addr)))
		return inst
	}
	logger.Warn("device acked probe but no factory claimed it",
		zap.Uint8("bus_id", bus.BusID()), zap.String("addr", hexAddr(addr)))
	return nil
}

func hexAddr(addr uint16) string {
	return "0x" + strconv.FormatUint(uint64(addr), 16)
}
