// Package controller wires the node together: instrument discovery over the
// multiplexed buses, the cron measurement passes, the local history database,
// the telemetry batch, the fan bridge and the command link to the server.
package controller

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/warthog618/gpiod"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"github.com/widdakay/fan-controller/busmux"
	"github.com/widdakay/fan-controller/common"
	"github.com/widdakay/fan-controller/db"
	"github.com/widdakay/fan-controller/fan"
	"github.com/widdakay/fan-controller/global"
	"github.com/widdakay/fan-controller/pkg"
	"github.com/widdakay/fan-controller/pkg/project"
	"github.com/widdakay/fan-controller/pkg/pubsub"
	"github.com/widdakay/fan-controller/sensor"
	"github.com/widdakay/fan-controller/telemetry"
)

var (
	// passMu serializes everything that touches the shared transceiver, the
	// database or the batch: the cron passes, the link catch-up and the
	// remote console. The bus tolerates exactly one transaction at a time.
	passMu sync.Mutex

	dataPubSub = pubsub.NewPubSub()
	logger     = zap.L()

	nodeInfo    common.NodeInfoStruct
	instruments []sensor.Instance
	healthItems []healthItem

	busSwitch *busmux.Switch
	fanCtl    fanDriver
	leds      *fan.Leds
	batch     *telemetry.Batch

	linkUp atomic.Bool
)

// fanDriver is what the tasks, the console and the command link need from
// the fan. The indirection keeps the bridge hardware out of the tests.
type fanDriver interface {
	SetPower(power float64) error
	SetDirection(forward bool) error
	EmergencyStop() error
	Apply(cmd common.FanCommandStruct) error
	Duty() float64
	Status() common.FanStatusStruct
	Close()
}

// healthItem is one node health series: a stable history table name plus a
// live reader. A nil reading means the series is unusable this cycle.
type healthItem struct {
	name string
	read func() *float64
}

var itemsStatus = make(map[string]common.StatusChangeStruct)

func Init() {
	logger = zap.L()

	db.Init(global.Config.Db.Dsn)
	project.RegisterReleaseFunc(db.Close)

	nodeInfo.Identifier = global.Config.Identifier
	nodeInfo.Session = uuid.New()
	nodeInfo.ChipId = global.ChipId()
	nodeInfo.Firmware = global.FirmwareVersion

	addInstruments()
	addFan()
	addHealthItems()

	ds, err := db.GetItemsLatestStatus()
	if err != nil {
		logger.Fatal("failed to get latest item status", zap.Error(err))
	}
	for _, itemStatus := range ds {
		itemsStatus[itemStatus.ItemName] = itemStatus.StatusChangeStruct
	}

	batch = telemetry.NewBatch(global.Config.Identifier, global.ChipId(),
		telemetry.NewHTTPSender(global.Config.Api.Telemetry), global.UptimeMs)

	bootReport()
	scheduleTasks()
	registerDebugHandlers()

	if global.Config.Server != "" {
		go func() {
			for {
				client(dataPubSub)
				time.Sleep(3 * time.Second)
			}
		}()
	}
}

func addInstruments() {
	conf := global.Config.I2c
	if len(conf.Buses) > 0 {
		mappings := make([]busmux.PinMapping, 0, len(conf.PinMap))
		for _, m := range conf.PinMap {
			mappings = append(mappings, busmux.PinMapping{SDA: m.Sda, SCL: m.Scl, Bus: m.Bus})
		}
		buses := make([]busmux.BusConfig, 0, len(conf.Buses))
		for _, b := range conf.Buses {
			clock := physic.Frequency(b.ClockKhz) * physic.KiloHertz
			if b.ClockKhz <= 0 {
				clock = 100 * physic.KiloHertz
			}
			buses = append(buses, busmux.BusConfig{ID: b.Id, SDA: b.Sda, SCL: b.Scl, Clock: clock})
		}
		sw, err := busmux.NewSwitch(busmux.NewSysfsTransceiver(mappings), buses)
		if err != nil {
			logger.Fatal("bad bus layout", zap.Error(err))
		}
		busSwitch = sw
		project.RegisterReleaseFunc(func() { _ = busSwitch.Close() })
		instruments = sensor.Discover(busSwitch, sensor.DefaultCatalog())
	}
	if global.Config.OneWire {
		probes, err := sensor.DiscoverOneWire()
		if err != nil {
			logger.Error("onewire enumeration failed", zap.Error(err))
		} else {
			instruments = append(instruments, probes...)
		}
	}

	// check duplicate; a colliding name would corrupt the status log
	var tmp = make(map[string]struct{}, len(instruments))
	kept := instruments[:0]
	for _, inst := range instruments {
		name := sensor.ItemName(inst)
		if common.ContainsIllegalCharacter(name) {
			logger.Fatal("illegal item name",
				zap.String("item_name", name), zap.String("allowed_chars", "[0-9a-z_]"))
		}
		if _, dup := tmp[name]; dup {
			logger.Warn("duplicate item name, instrument dropped", zap.String("item_name", name))
			continue
		}
		tmp[name] = struct{}{}
		kept = append(kept, inst)

		info := common.InstrumentInfoStruct{
			ItemName:    name,
			Kind:        inst.Kind(),
			Measurement: inst.Measurement(),
			BusId:       inst.BusID(),
			Address:     inst.Address(),
		}
		if serial, ok := inst.Serial(); ok {
			info.Serial = strconv.FormatUint(serial, 16)
		}
		_, info.Derived = inst.(sensor.Named)
		nodeInfo.Instruments = append(nodeInfo.Instruments, info)
	}
	instruments = kept
	logger.Info("discovery complete", zap.Int("instruments", len(instruments)))
}

// addFan brings up the bridge and the status LEDs. Both are optional and
// neither failure is fatal: a node without a fan still measures and reports.
func addFan() {
	conf := global.Config.Fan
	if conf.Chip == "" {
		logger.Info("no fan configured")
	} else if chip, err := gpiod.NewChip(conf.Chip, gpiod.WithConsumer("fan-controller")); err != nil {
		logger.Error("gpio chip unavailable, fan disabled",
			zap.String("chip", conf.Chip), zap.Error(err))
	} else if ctl, err := fan.New(chip, fan.Config{
		InA: conf.InA, InB: conf.InB, EnA: conf.EnA, EnB: conf.EnB,
		PwmChip: conf.PwmChip, PwmChannel: conf.PwmChan, PwmFreqHz: conf.PwmFreqHz,
	}); err != nil {
		logger.Error("fan bring-up failed", zap.Error(err))
	} else {
		fanCtl = ctl
		project.RegisterReleaseFunc(ctl.Close)
	}
	nodeInfo.HasFan = fanCtl != nil

	lc := global.Config.Leds
	if lc.Chip == "" {
		return
	}
	chip, err := gpiod.NewChip(lc.Chip, gpiod.WithConsumer("fan-controller-leds"))
	if err != nil {
		logger.Warn("led chip unavailable", zap.Error(err))
		return
	}
	l, err := fan.NewLeds(chip, fan.LedPins{Green: lc.Green, Orange: lc.Orange, Red: lc.Red, Blue: lc.Blue})
	if err != nil {
		logger.Warn("led bring-up failed", zap.Error(err))
		return
	}
	leds = l
	project.RegisterReleaseFunc(leds.Close)
}

// healthSeries maps a derived instrument's sensor name onto the history
// series it feeds. Series names double as sqlite table names, so they must
// start with a letter.
var healthSeries = map[string]string{
	"motor_ntc": "motor_temp_c",
	"mcu_ntc":   "mcu_temp_c",
	"3v3_rail":  "rail_3v3",
	"5v_rail":   "rail_5v",
}

func addHealthItems() {
	seen := make(map[string]struct{})
	add := func(name string, read func() *float64) {
		if _, dup := seen[name]; dup {
			logger.Warn("duplicate health series, skipped", zap.String("item_name", name))
			return
		}
		seen[name] = struct{}{}
		healthItems = append(healthItems, healthItem{name: name, read: read})
	}

	for _, inst := range instruments {
		switch src := inst.(type) {
		case sensor.TemperatureSource:
			if name, ok := healthSeries[src.SensorName()]; ok {
				add(name, readTemperature(src))
			}
		case sensor.VoltageSource:
			if name, ok := healthSeries[src.SensorName()]; ok {
				add(name, readVoltage(src))
			}
		case sensor.PowerSource:
			add("input_power_w", readPower(src))
		}
	}
	if _, err := cpuTemp(); err == nil {
		add("cpu_temp", func() *float64 {
			t, err := cpuTemp()
			if err != nil {
				return nil
			}
			return &t
		})
	}
	if fanCtl != nil {
		add("fan_duty", func() *float64 {
			d := fanCtl.Duty()
			return &d
		})
	}

	for _, item := range healthItems {
		if common.ContainsIllegalCharacter(item.name) {
			logger.Fatal("illegal health series name", zap.String("item_name", item.name))
		}
		pkg.Must(db.MakeSureTableExist(item.name))
		nodeInfo.HealthItems = append(nodeInfo.HealthItems, item.name)
	}
}

func readTemperature(src sensor.TemperatureSource) func() *float64 {
	return func() *float64 {
		r, err := src.Temperature()
		if err != nil || !r.InRange {
			return nil
		}
		return &r.TempC
	}
}

func readVoltage(src sensor.VoltageSource) func() *float64 {
	return func() *float64 {
		v, err := src.Volts()
		if err != nil {
			return nil
		}
		return &v
	}
}

func readPower(src sensor.PowerSource) func() *float64 {
	return func() *float64 {
		p, err := src.Power()
		if err != nil || p.Overflow {
			return nil
		}
		return &p.PowerWatts
	}
}
