// Package fan drives the cooling fan through an H-bridge: two direction pins,
// a sysfs PWM channel for the duty cycle and two diagnostic inputs the bridge
// pulls low on overcurrent or thermal shutdown.
package fan

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/gpiod"

	"github.com/widdakay/fan-controller/common"
	"github.com/widdakay/fan-controller/pkg/custype"
)

// The bridge needs both legs off before the direction pins may flip.
const directionDeadTime = 2 * time.Millisecond

// Config names the chip offsets and the PWM channel wired to the bridge.
type Config struct {
	InA, InB   int
	EnA, EnB   int
	PwmChip    string
	PwmChannel int
	PwmFreqHz  int
}

type outputLine interface {
	SetValue(int) error
	Close() error
}

type diagLine interface {
	Value() (int, error)
	Close() error
}

// Controller serializes all bridge operations behind one mutex; commands
// arrive from the cron tasks and the command link concurrently.
type Controller struct {
	mu      sync.Mutex
	inA     outputLine
	inB     outputLine
	enA     diagLine
	enB     diagLine
	pwm     *pwmChannel
	duty    float64
	forward bool
}

// New claims the bridge pins and brings the fan up stopped, in reverse, with
// the PWM carrier running at zero duty.
func New(chip *gpiod.Chip, conf Config) (*Controller, error) {
	c := &Controller{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()
	inA, err := chip.RequestLine(conf.InA, gpiod.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request in_a %d: %w", conf.InA, err)
	}
	c.inA = inA
	inB, err := chip.RequestLine(conf.InB, gpiod.AsOutput(1))
	if err != nil {
		return nil, fmt.Errorf("request in_b %d: %w", conf.InB, err)
	}
	c.inB = inB
	enA, err := chip.RequestLine(conf.EnA, gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request en_a %d: %w", conf.EnA, err)
	}
	c.enA = enA
	enB, err := chip.RequestLine(conf.EnB, gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request en_b %d: %w", conf.EnB, err)
	}
	c.enB = enB
	if c.pwm, err = exportPwm(conf.PwmChip, conf.PwmChannel, conf.PwmFreqHz); err != nil {
		return nil, err
	}
	ok = true
	return c, nil
}

// SetPower commands a duty cycle, clamped to [0,1].
func (c *Controller) SetPower(power float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPower(power)
}

func (c *Controller) setPower(power float64) error {
	if power < 0 {
		power = 0
	} else if power > 1 {
		power = 1
	}
	if err := c.pwm.setDuty(power); err != nil {
		return err
	}
	c.duty = power
	return nil
}

// SetDirection stops the motor and waits out the bridge dead time before the
// pins flip. The previous duty is not restored; the caller commands power
// again once the new direction stands.
func (c *Controller) SetDirection(forward bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setDirection(forward)
}

func (c *Controller) setDirection(forward bool) error {
	if forward == c.forward {
		return nil
	}
	if err := c.setPower(0); err != nil {
		return err
	}
	time.Sleep(directionDeadTime)
	a, b := 0, 1
	if forward {
		a, b = 1, 0
	}
	if err := c.inA.SetValue(a); err != nil {
		return err
	}
	if err := c.inB.SetValue(b); err != nil {
		return err
	}
	c.forward = forward
	return nil
}

func (c *Controller) EmergencyStop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPower(0)
}

// Apply executes one remote command. Stop wins over everything else; power
// lands after direction so a reversal leaves the commanded duty on.
func (c *Controller) Apply(cmd common.FanCommandStruct) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cmd.Stop {
		return c.setPower(0)
	}
	if cmd.Forward != nil {
		if err := c.setDirection(*cmd.Forward); err != nil {
			return err
		}
	}
	if cmd.Power != nil {
		return c.setPower(*cmd.Power)
	}
	return nil
}

func (c *Controller) Duty() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duty
}

// Status reads the diagnostic inputs and snapshots the commanded state. The
// bridge pulls a leg's input low on overcurrent or thermal shutdown, so
// either leg reading low is a fault.
func (c *Controller) Status() common.FanStatusStruct {
	c.mu.Lock()
	defer c.mu.Unlock()
	enA := readDiag(c.enA)
	enB := readDiag(c.enB)
	return common.FanStatusStruct{
		Duty:        c.duty,
		Forward:     c.forward,
		EnA:         enA,
		EnB:         enB,
		Fault:       !enA || !enB,
		Millisecond: custype.ToTimeMillisecond(time.Now()),
	}
}

// readDiag treats an unreadable diagnostic input as faulted.
func readDiag(l diagLine) bool {
	v, err := l.Value()
	return err == nil && v != 0
}

// Close stops the fan and releases the pins.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pwm != nil {
		_ = c.pwm.close()
		c.pwm = nil
	}
	for _, l := range []outputLine{c.inA, c.inB} {
		if l != nil {
			_ = l.SetValue(0)
			_ = l.Close()
		}
	}
	for _, l := range []diagLine{c.enA, c.enB} {
		if l != nil {
			_ = l.Close()
		}
	}
	c.inA, c.inB, c.enA, c.enB = nil, nil, nil, nil
}
