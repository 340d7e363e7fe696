// Package thermistor converts NTC voltage-divider readings into temperatures
// using the Steinhart-Hart equation.
package thermistor

import "math"

const kelvinOffset = 273.15

// Curve holds the three fitted Steinhart-Hart coefficients and the fixed
// series resistor the NTC is measured against.
type Curve struct {
	SeriesOhms float64
	A, B, C    float64
}

func NewCurve(seriesOhms, a, b, c float64) Curve {
	return Curve{SeriesOhms: seriesOhms, A: a, B: b, C: c}
}

// ResistanceFromVolts computes the NTC resistance from the divider midpoint
// voltage and the divider supply voltage. Returns NaN when the midpoint sits
// at ground or at/above the supply, where the divider equation degenerates.
func (c Curve) ResistanceFromVolts(vPin, vSupply float64) float64 {
	if vPin <= 0.001 || vSupply <= 0.001 || vPin >= vSupply {
		return math.NaN()
	}
	return c.SeriesOhms * vPin / (vSupply - vPin)
}

// TempC evaluates 1/T = A + B*ln(R) + C*ln(R)^3 for a resistance in ohms.
func (c Curve) TempC(r float64) float64 {
	if !(r > 0) {
		return math.NaN()
	}
	lnR := math.Log(r)
	invT := c.A + c.B*lnR + c.C*lnR*lnR*lnR
	return 1.0/invT - kelvinOffset
}

func (c Curve) TempCFromVolts(vPin, vSupply float64) float64 {
	return c.TempC(c.ResistanceFromVolts(vPin, vSupply))
}

// InRange reports whether t is finite and inside [min, max].
func InRange(t, min, max float64) bool {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return false
	}
	return t >= min && t <= max
}
