package global

import (
	"encoding/json"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"log"
	"os"
)

// FirmwareVersion is reported in the boot record and the link hello.
const FirmwareVersion = "2.1.0"

var Config struct {
	LogLevel   string `json:"log_level"`
	Listen     string `json:"listen"`
	Server     string `json:"server"`
	Identifier string `json:"identifier"`
	Api        struct {
		Telemetry string `json:"telemetry"`
	} `json:"api"`
	Db struct {
		Dsn         string `json:"dsn"`
		ArchiveDays int    `json:"archive_days"`
		HistoryDays int    `json:"history_days"`
	} `json:"db"`
	I2c struct {
		// PinMap ties each usable pin pair to the kernel adapter that
		// serves it (one i2c-gpio overlay instance per pair).
		PinMap []struct {
			Sda int `json:"sda"`
			Scl int `json:"scl"`
			Bus int `json:"bus"`
		} `json:"pin_map"`
		Buses []struct {
			Id       uint8 `json:"id"`
			Sda      int   `json:"sda"`
			Scl      int   `json:"scl"`
			ClockKhz int   `json:"clock_khz"`
		} `json:"buses"`
	} `json:"i2c"`
	OneWire bool `json:"onewire"`
	Fan     struct {
		Chip      string `json:"chip"`
		InA       int    `json:"in_a"`
		InB       int    `json:"in_b"`
		EnA       int    `json:"en_a"`
		EnB       int    `json:"en_b"`
		PwmChip   string `json:"pwm_chip"`
		PwmChan   int    `json:"pwm_channel"`
		PwmFreqHz int    `json:"pwm_freq_hz"`
	} `json:"fan"`
	Leds struct {
		Chip   string `json:"chip"`
		Green  int    `json:"green"`
		Orange int    `json:"orange"`
		Red    int    `json:"red"`
		Blue   int    `json:"blue"`
	} `json:"leds"`
	Cron struct {
		SensorRead string `json:"sensor_read"`
		Health     string `json:"health"`
		FanStatus  string `json:"fan_status"`
		Clean      string `json:"clean"`
	} `json:"cron"`
}

var CronJob *cron.Cron

func Init(name string) {
	b, err := os.ReadFile(name)
	if err != nil {
		log.Fatal(err)
	}
	if err = json.Unmarshal(b, &Config); err != nil {
		log.Fatal(err)
	}
	applyDefaults()
	initLogger()
	CronJob = cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	CronJob.Start()
}

// Task cadences mirror the fan controller firmware: sensors and health every
// 5s, fan status every 10s.
func applyDefaults() {
	if Config.Cron.SensorRead == "" {
		Config.Cron.SensorRead = "@every 5s"
	}
	if Config.Cron.Health == "" {
		Config.Cron.Health = "@every 5s"
	}
	if Config.Cron.FanStatus == "" {
		Config.Cron.FanStatus = "@every 10s"
	}
	if Config.Cron.Clean == "" {
		Config.Cron.Clean = "@daily"
	}
	if Config.Db.ArchiveDays <= 0 {
		Config.Db.ArchiveDays = 7
	}
	if Config.Db.HistoryDays <= 0 {
		Config.Db.HistoryDays = 30
	}
	// Hourly rollups must outlive the raw rows they are folded from.
	if Config.Db.HistoryDays <= Config.Db.ArchiveDays {
		Config.Db.HistoryDays = Config.Db.ArchiveDays * 2
	}
	if Config.Fan.PwmFreqHz <= 0 {
		Config.Fan.PwmFreqHz = 25000
	}
}

func initLogger() {
	cfg := zap.NewDevelopmentConfig()
	if lvl, err := zapcore.ParseLevel(Config.LogLevel); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatal(err)
	}
	zap.ReplaceGlobals(logger)
}
