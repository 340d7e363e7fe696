package thermistor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Coefficients fitted for the 10k NTC populated on the controller board.
var curve = NewCurve(10000, 8.688e-4, 2.547e-4, 1.781e-7)

func TestResistanceFromVolts(t *testing.T) {
	// Midpoint at half the supply means R equals the series resistor.
	assert.InDelta(t, 10000, curve.ResistanceFromVolts(1.65, 3.3), 0.01)
	// 1/3 of supply across the NTC leg.
	assert.InDelta(t, 5000, curve.ResistanceFromVolts(1.1, 3.3), 0.01)
}

func TestResistanceFromVoltsDegenerate(t *testing.T) {
	assert.True(t, math.IsNaN(curve.ResistanceFromVolts(0, 3.3)))
	assert.True(t, math.IsNaN(curve.ResistanceFromVolts(0.0005, 3.3)))
	assert.True(t, math.IsNaN(curve.ResistanceFromVolts(3.3, 3.3)))
	assert.True(t, math.IsNaN(curve.ResistanceFromVolts(3.4, 3.3)))
	assert.True(t, math.IsNaN(curve.ResistanceFromVolts(1.65, 0)))
}

func TestTempC(t *testing.T) {
	// The nominal resistance of this part is 10k at 25 degrees.
	assert.InDelta(t, 25.0, curve.TempC(10000), 0.1)
	// Monotonic: hotter means lower resistance.
	assert.Greater(t, curve.TempC(5000), curve.TempC(10000))
	assert.Less(t, curve.TempC(20000), curve.TempC(10000))
}

func TestTempCInvalidResistance(t *testing.T) {
	assert.True(t, math.IsNaN(curve.TempC(0)))
	assert.True(t, math.IsNaN(curve.TempC(-5)))
	assert.True(t, math.IsNaN(curve.TempC(math.NaN())))
}

func TestTempCFromVolts(t *testing.T) {
	assert.InDelta(t, 25.0, curve.TempCFromVolts(1.65, 3.3), 0.1)
	assert.True(t, math.IsNaN(curve.TempCFromVolts(0, 3.3)))
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(25, 0, 100))
	assert.True(t, InRange(0, 0, 100))
	assert.True(t, InRange(100, 0, 100))
	assert.False(t, InRange(-0.5, 0, 100))
	assert.False(t, InRange(130, 0, 100))
	assert.False(t, InRange(math.NaN(), 0, 100))
	assert.False(t, InRange(math.Inf(1), 0, 100))
}
