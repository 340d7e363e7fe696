package main

import (
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof"

	"go.uber.org/zap"

	"github.com/widdakay/fan-controller/controller"
	"github.com/widdakay/fan-controller/global"
	"github.com/widdakay/fan-controller/pkg/project"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	cfgName := flag.String("config", "config.json", "Config file")
	flag.Parse()

	global.Init(*cfgName)

	project.Run(start, stop, global.MarkAborted)
}

func start() {
	controller.Init()
	if global.Config.Listen != "" {
		// pprof and the live data tap
		go func() {
			err := http.ListenAndServe(global.Config.Listen, nil)
			zap.L().Error("debug listener exited", zap.Error(err))
		}()
	}
}

func stop() {
	global.CronJob.Stop()
	project.CallReleaseFunc()
	_ = zap.L().Sync()
}
