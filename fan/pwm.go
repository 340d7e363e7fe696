package fan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Swapped for a temporary directory in tests.
var pwmBasePath = "/sys/class/pwm"

type pwmChannel struct {
	dir    string
	period int64 // nanoseconds
}

// exportPwm exports one channel of the named pwmchip and programs the
// carrier: period set, zero duty, output enabled.
func exportPwm(chip string, channel, freqHz int) (*pwmChannel, error) {
	chipDir := filepath.Join(pwmBasePath, chip)
	p := &pwmChannel{
		dir:    filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel)),
		period: int64(time.Second) / int64(freqHz),
	}
	if _, err := os.Stat(p.dir); err != nil {
		if err = os.WriteFile(filepath.Join(chipDir, "export"), []byte(strconv.Itoa(channel)), 0644); err != nil {
			return nil, fmt.Errorf("export pwm%d: %w", channel, err)
		}
		// The udev rule needs a moment to fix the channel permissions.
		time.Sleep(50 * time.Millisecond)
	}
	if err := p.write("period", p.period); err != nil {
		return nil, err
	}
	if err := p.write("duty_cycle", 0); err != nil {
		return nil, err
	}
	if err := p.write("enable", 1); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pwmChannel) write(name string, v int64) error {
	if err := os.WriteFile(filepath.Join(p.dir, name), []byte(strconv.FormatInt(v, 10)), 0644); err != nil {
		return fmt.Errorf("pwm %s: %w", name, err)
	}
	return nil
}

// setDuty programs the duty cycle as a fraction of the period.
func (p *pwmChannel) setDuty(duty float64) error {
	return p.write("duty_cycle", int64(duty*float64(p.period)))
}

func (p *pwmChannel) close() error {
	if err := p.write("duty_cycle", 0); err != nil {
		return err
	}
	return p.write("enable", 0)
}
