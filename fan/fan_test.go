package fan

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/widdakay/fan-controller/common"
)

// fakeLine stands in for a gpiod line on both the output and the diagnostic
// side of the bridge.
type fakeLine struct {
	v      int
	sets   []int
	err    error
	closed bool
}

func (l *fakeLine) SetValue(v int) error {
	if l.err != nil {
		return l.err
	}
	l.v = v
	l.sets = append(l.sets, v)
	return nil
}

func (l *fakeLine) Value() (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	return l.v, nil
}

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

// testController builds a Controller over fake lines and a temp-dir PWM
// channel, in the same state New leaves the hardware: stopped, reverse.
func testController(t *testing.T) (*Controller, *fakeLine, *fakeLine, *fakeLine, *fakeLine, string) {
	t.Helper()
	pwmDir := testPwmDir(t, "pwmchip0", 0)
	p, err := exportPwm("pwmchip0", 0, 25000)
	require.NoError(t, err)
	inA, inB := &fakeLine{}, &fakeLine{v: 1}
	enA, enB := &fakeLine{v: 1}, &fakeLine{v: 1}
	c := &Controller{inA: inA, inB: inB, enA: enA, enB: enB, pwm: p}
	return c, inA, inB, enA, enB, pwmDir
}

func TestSetPowerClamps(t *testing.T) {
	c, _, _, _, _, pwmDir := testController(t)

	require.NoError(t, c.SetPower(1.5))
	assert.Equal(t, 1.0, c.Duty())
	assert.Equal(t, "40000", readPwmFile(t, pwmDir, "duty_cycle"))

	require.NoError(t, c.SetPower(-0.1))
	assert.Equal(t, 0.0, c.Duty())
	assert.Equal(t, "0", readPwmFile(t, pwmDir, "duty_cycle"))
}

func TestSetDirection(t *testing.T) {
	c, inA, inB, _, _, _ := testController(t)
	require.NoError(t, c.SetPower(0.8))

	start := time.Now()
	require.NoError(t, c.SetDirection(true))
	assert.GreaterOrEqual(t, time.Since(start), directionDeadTime)

	// a reversal zeroes the duty and flips the pins
	assert.Equal(t, 0.0, c.Duty())
	assert.Equal(t, 1, inA.v)
	assert.Equal(t, 0, inB.v)

	// same direction again is a no-op
	pinWrites := len(inA.sets)
	require.NoError(t, c.SetDirection(true))
	assert.Equal(t, pinWrites, len(inA.sets))
}

func TestApply(t *testing.T) {
	c, _, _, _, _, _ := testController(t)

	power, forward := 0.7, true
	require.NoError(t, c.Apply(common.FanCommandStruct{Power: &power, Forward: &forward}))
	assert.Equal(t, 0.7, c.Duty())
	assert.True(t, c.forward)

	// stop wins even when power rides along
	require.NoError(t, c.Apply(common.FanCommandStruct{Power: &power, Stop: true}))
	assert.Equal(t, 0.0, c.Duty())
	assert.True(t, c.forward)
}

func TestStatusFault(t *testing.T) {
	c, _, _, enA, enB, _ := testController(t)

	st := c.Status()
	assert.False(t, st.Fault)
	assert.True(t, st.EnA)
	assert.True(t, st.EnB)
	assert.NotZero(t, st.Millisecond)

	// the bridge pulled one leg low
	enA.v = 0
	st = c.Status()
	assert.True(t, st.Fault)
	assert.False(t, st.EnA)
	assert.True(t, st.EnB)

	// an unreadable input counts as faulted too
	enA.v = 1
	enB.err = errors.New("line gone")
	st = c.Status()
	assert.True(t, st.Fault)
	assert.False(t, st.EnB)
}

func TestClose(t *testing.T) {
	c, inA, inB, enA, enB, pwmDir := testController(t)
	require.NoError(t, c.SetPower(0.5))

	c.Close()
	assert.Equal(t, "0", readPwmFile(t, pwmDir, "duty_cycle"))
	assert.Equal(t, "0", readPwmFile(t, pwmDir, "enable"))
	assert.Equal(t, 0, inA.v)
	assert.Equal(t, 0, inB.v)
	for _, l := range []*fakeLine{inA, inB, enA, enB} {
		assert.True(t, l.closed)
	}
}
