package controller

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Swapped for a fixture file in tests.
var thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// cpuTemp reads the SoC temperature: vcgencmd first since it reports the
// firmware's own reading on a Pi, then the generic thermal zone.
func cpuTemp() (float64, error) {
	if t, err := vcgencmdTemp(); err == nil {
		return t, nil
	}
	return readThermalZone()
}

func vcgencmdTemp() (float64, error) {
	b, err := exec.Command("vcgencmd", "measure_temp").Output()
	if err != nil {
		return 0, err
	}
	var temp float64
	//temp=45.7'C\n
	if _, err = fmt.Sscanf(string(b), "temp=%f'C\n", &temp); err != nil {
		return 0, err
	}
	return temp, nil
}

func readThermalZone() (float64, error) {
	b, err := os.ReadFile(thermalZonePath)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(milli) / 1000, nil
}
