package controller

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/widdakay/fan-controller/common"
	"github.com/widdakay/fan-controller/db"
	"github.com/widdakay/fan-controller/fan"
	"github.com/widdakay/fan-controller/global"
	"github.com/widdakay/fan-controller/pkg"
	"github.com/widdakay/fan-controller/pkg/custype"
	"github.com/widdakay/fan-controller/sensor"
	"github.com/widdakay/fan-controller/telemetry"
)

func scheduleTasks() {
	scheduleRetention()
	addTask("sensor_read", global.Config.Cron.SensorRead, sensorReadTask)
	addTask("health", global.Config.Cron.Health, healthTask)
	if fanCtl != nil {
		addTask("fan_status", global.Config.Cron.FanStatus, fanStatusTask)
	}
}

// addTask registers a cron job with an overrun guard: a pass still running
// when the next one fires is logged and the new one skipped.
func addTask(name, spec string, job func()) {
	var inQuery atomic.Bool
	pkg.Must2(global.CronJob.AddFunc(spec, func() {
		if !inQuery.CompareAndSwap(false, true) {
			logger.Warn("previous pass still running, skipped", zap.String("task", name))
			return
		}
		defer inQuery.Store(false)
		job()
	}))
}

// sensorReadTask is one measurement pass: every instrument read once in
// discovery order, each record appended to the batch, the batch flushed at
// the end. One failing instrument never blocks the rest of the pass.
func sensorReadTask() {
	passMu.Lock()
	defer passMu.Unlock()
	leds.Toggle(fan.LedGreen)
	now := custype.ToTimeMillisecond(time.Now())
	failures := 0
	for _, inst := range instruments {
		name := sensor.ItemName(inst)
		rec, err := inst.ReadRecord()
		if err != nil {
			failures++
			setItemStatus(name, common.Abnormal, now)
			logger.Warn("instrument read failed", zap.String("item_name", name), zap.Error(err))
			continue
		}
		setItemStatus(name, common.Normal, now)
		batch.Append(rec)
	}
	leds.Set(fan.LedRed, failures > 0)
	batch.Flush()
}

// healthTask samples the node's own vitals: the derived board series, cpu
// temperature, fan state, heap and link. Values land in three places at
// once: the telemetry batch, the local history tables and the live feed.
func healthTask() {
	passMu.Lock()
	defer passMu.Unlock()

	now := custype.ToTimeMillisecond(time.Now())
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	var health common.NodeHealthStruct
	health.FreeHeap = ms.HeapIdle

	rec := telemetry.Record{Measurement: "node_health"}
	for _, item := range healthItems {
		v := item.read()
		if v != nil {
			rec.Fields.Float(item.name, *v)
			switch item.name {
			case "cpu_temp":
				health.CpuTemp = *v
			case "fan_duty":
				health.FanDuty = *v
			}
		}
		saveHealthValue(item.name, v, now)
	}
	if fanCtl != nil {
		st := fanCtl.Status()
		rec.Fields.Int("fan_forward", boolToInt(st.Forward))
		rec.Fields.Int("fan_en_a", boolToInt(st.EnA))
		rec.Fields.Int("fan_en_b", boolToInt(st.EnB))
		rec.Fields.Int("fan_fault", boolToInt(st.Fault))
	}
	rec.Fields.Uint("heap_alloc", ms.HeapAlloc)
	rec.Fields.Uint("heap_sys", ms.HeapSys)
	rec.Fields.Int("link_up", boolToInt(linkUp.Load()))
	batch.Append(rec)
	batch.Flush()

	if err := dataPubSub.Publish(common.SendMsgStruct{
		Type: common.MsgNodeHealth,
		Body: common.NodeHealthTimeStruct{NodeHealthStruct: health, Millisecond: now},
	}, nil); err != nil {
		logger.Error("failed to publish node health message", zap.Error(err))
	}
}

// saveHealthValue records one health reading: status transition, local
// history row, live feed message. A nil value marks the series abnormal and
// stores nothing.
func saveHealthValue(itemName string, v *float64, now custype.TimeMillisecond) {
	if v == nil {
		setItemStatus(itemName, common.Abnormal, now)
		return
	}
	setItemStatus(itemName, common.Normal, now)
	if err := db.SaveData(itemName, *v, now.ToInt64()); err != nil {
		logger.Error("failed to save data",
			zap.String("item_name", itemName), zap.Float64("value", *v), zap.Error(err))
	}
	if err := dataPubSub.Publish(common.SendMsgStruct{
		Type: common.MsgData,
		Body: common.ItemNameDataTimeStruct{
			ItemName:       itemName,
			DataTimeStruct: common.DataTimeStruct{Value: *v, Millisecond: now},
		},
	}, nil); err != nil {
		logger.Error("failed to publish data message",
			zap.String("item_name", itemName), zap.Error(err))
	}
}

// setItemStatus tracks per-item state and persists only the transitions, so
// the status log stays a change log rather than a heartbeat table.
func setItemStatus(itemName string, status common.Status, now custype.TimeMillisecond) {
	if itemsStatus[itemName].Status == status {
		return
	}
	itemsStatus[itemName] = common.StatusChangeStruct{Status: status, ChangedAt: now}
	rowId, err := db.SaveItemStatusLog(itemName, status, now.ToInt64())
	if err != nil {
		logger.Error("failed to save item status log",
			zap.String("item_name", itemName), zap.String("status", status), zap.Error(err))
		return
	}
	if err = dataPubSub.Publish(common.SendMsgStruct{
		Type: common.MsgItemStatus,
		Body: common.RowIdItemStatusStruct{
			RowId: rowId,
			ItemStatusStruct: common.ItemStatusStruct{
				ItemName:           itemName,
				StatusChangeStruct: common.StatusChangeStruct{Status: status, ChangedAt: now},
			},
		},
	}, nil); err != nil {
		logger.Error("failed to publish item status message",
			zap.String("item_name", itemName), zap.String("status", status), zap.Error(err))
	}
}

// fanStatusTask reads the bridge diagnostics and feeds the live channel. The
// blue LED tracks whether the motor is being driven.
func fanStatusTask() {
	st := fanCtl.Status()
	leds.Set(fan.LedBlue, st.Duty > 0.01)
	if st.Fault {
		logger.Warn("fan bridge fault", zap.Bool("en_a", st.EnA), zap.Bool("en_b", st.EnB))
	}
	if err := dataPubSub.Publish(common.SendMsgStruct{Type: common.MsgFanStatus, Body: st}, nil); err != nil {
		logger.Error("failed to publish fan status message", zap.Error(err))
	}
}

// bootReport queues the one-shot boot record: identity, reset reason and the
// discovered topology. Flushed immediately so a crash loop stays visible on
// the server even when no measurement pass ever completes.
func bootReport() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rec := telemetry.Record{Measurement: "boot"}
	rec.Fields.Str("firmware", global.FirmwareVersion)
	rec.Fields.Str("go_version", runtime.Version())
	rec.Fields.Str("reset_reason", global.ResetReason())
	if t, ok := global.LastAborted(); ok {
		rec.Fields.Int("last_active_unix", t.Unix())
	}
	rec.Fields.Str("session", nodeInfo.Session.String())
	if size, err := binarySize(); err == nil {
		rec.Fields.Int("binary_size", size)
	}
	rec.Fields.Uint("heap_alloc", ms.HeapAlloc)
	rec.Fields.Uint("heap_sys", ms.HeapSys)
	rec.Fields.Int("buses", int64(len(global.Config.I2c.Buses)))
	rec.Fields.Int("instruments", int64(len(instruments)))
	rec.Fields.Bool("has_fan", fanCtl != nil)
	batch.Append(rec)
	batch.Flush()
}

func binarySize() (int64, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(exe)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// scheduleRetention archives raw health history into hourly means and drops
// anything past the retention horizon. Runs once at boot, then daily.
func scheduleRetention() {
	retentionJob := func() {
		passMu.Lock()
		defer passMu.Unlock()
		db.ArchiveHourly(time.Now().Add(-time.Duration(global.Config.Db.ArchiveDays) * 24 * time.Hour).UnixMilli())
		db.CleanDBData(time.Now().Add(-time.Duration(global.Config.Db.HistoryDays) * 24 * time.Hour).UnixMilli())
	}
	retentionJob()
	pkg.Must2(global.CronJob.AddFunc(global.Config.Cron.Clean, retentionJob))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
