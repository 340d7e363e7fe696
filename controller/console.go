package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/widdakay/fan-controller/global"
	"github.com/widdakay/fan-controller/sensor"
)

// The remote console. The server relays one line at a time over a terminal
// stream and prints the reply verbatim.

type consoleCommand struct {
	name  string
	usage string
	run   func(args []string) (string, error)
}

var consoleCommands []consoleCommand

// Filled here rather than in the var block; help walks the table, and that
// self-reference would otherwise be an initialization cycle.
func init() {
	consoleCommands = []consoleCommand{
		{"status", "status", consoleStatus},
		{"instruments", "instruments", consoleInstruments},
		{"duty", "duty <0..1>", consoleDuty},
		{"dir", "dir <forward|reverse>", consoleDir},
		{"stop", "stop", consoleStop},
		{"flush", "flush", consoleFlush},
		{"uptime", "uptime", consoleUptime},
		{"help", "help", consoleHelp},
	}
}

func runConsoleCommand(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "empty command, try help"
	}
	for _, cmd := range consoleCommands {
		if cmd.name != fields[0] {
			continue
		}
		out, err := cmd.run(fields[1:])
		if err != nil {
			return "error: " + err.Error()
		}
		return out
	}
	return "unknown command " + fields[0] + ", try help"
}

var errNoFan = errors.New("no fan present")

func consoleStatus([]string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "identifier: %s\n", global.Config.Identifier)
	fmt.Fprintf(&b, "firmware: %s\n", global.FirmwareVersion)
	fmt.Fprintf(&b, "uptime: %s\n", time.Duration(global.UptimeMs())*time.Millisecond)
	fmt.Fprintf(&b, "instruments: %d\n", len(instruments))
	link := "down"
	if linkUp.Load() {
		link = "up"
	}
	fmt.Fprintf(&b, "link: %s\n", link)
	if fanCtl == nil {
		b.WriteString("fan: not present")
		return b.String(), nil
	}
	st := fanCtl.Status()
	fmt.Fprintf(&b, "fan: duty=%.2f forward=%v fault=%v", st.Duty, st.Forward, st.Fault)
	return b.String(), nil
}

func consoleInstruments([]string) (string, error) {
	passMu.Lock()
	defer passMu.Unlock()
	if len(instruments) == 0 {
		return "no instruments discovered", nil
	}
	var b strings.Builder
	for _, inst := range instruments {
		fmt.Fprintf(&b, "%-40s bus=%d addr=0x%02x connected=%v\n",
			sensor.ItemName(inst), inst.BusID(), inst.Address(), inst.Connected())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func consoleDuty(args []string) (string, error) {
	if fanCtl == nil {
		return "", errNoFan
	}
	if len(args) != 1 {
		return "", errors.New("usage: duty <0..1>")
	}
	power, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return "", err
	}
	if power < 0 || power > 1 {
		return "", errors.New("duty out of range [0,1]")
	}
	if err = fanCtl.SetPower(power); err != nil {
		return "", err
	}
	return fmt.Sprintf("duty set to %.2f", power), nil
}

func consoleDir(args []string) (string, error) {
	if fanCtl == nil {
		return "", errNoFan
	}
	if len(args) != 1 {
		return "", errors.New("usage: dir <forward|reverse>")
	}
	var forward bool
	switch args[0] {
	case "forward":
		forward = true
	case "reverse":
	default:
		return "", errors.New("usage: dir <forward|reverse>")
	}
	if err := fanCtl.SetDirection(forward); err != nil {
		return "", err
	}
	return "direction set to " + args[0] + ", duty is 0", nil
}

func consoleStop([]string) (string, error) {
	if fanCtl == nil {
		return "", errNoFan
	}
	if err := fanCtl.EmergencyStop(); err != nil {
		return "", err
	}
	return "fan stopped", nil
}

func consoleFlush([]string) (string, error) {
	passMu.Lock()
	defer passMu.Unlock()
	n := batch.Len()
	batch.Flush()
	return fmt.Sprintf("flushed %d queued records", n), nil
}

func consoleUptime([]string) (string, error) {
	ms := global.UptimeMs()
	return fmt.Sprintf("%s (%d ms)", time.Duration(ms)*time.Millisecond, ms), nil
}

func consoleHelp([]string) (string, error) {
	var b strings.Builder
	for _, cmd := range consoleCommands {
		b.WriteString(cmd.usage)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
